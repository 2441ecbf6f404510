package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
)

var testID = UnitID{Module: "library_sample_shared", Name: "0012_auto_20230929_1053"}

func TestNewUnit(t *testing.T) {
	cases := []struct {
		name string
		ops  []Operation
		deps []UnitID
		keys []string
	}{
		{
			name: "accepts a nullable SET_NULL foreign key",
			ops: []Operation{AddField{
				Model: "libraryprotocol", Name: "nucleic_acid_type",
				Field: Field{Type: ForeignKey, Null: true, To: "sample.nucleicacidtype", OnDelete: SetNull},
			}},
		},
		{
			name: "rejects SET_NULL on a non-nullable field",
			ops: []Operation{AlterField{
				Model: "indexpair", Name: "index1",
				Field: Field{Type: ForeignKey, To: "library_sample_shared.indexi7", OnDelete: SetNull},
			}},
			keys: []string{"Operations.0.field.null"},
		},
		{
			name: "rejects a char field without max length",
			ops: []Operation{AddField{
				Model: "flowcell", Name: "run_name",
				Field: Field{Type: CharField, Default: "run_name"},
			}},
			keys: []string{"Operations.0.field.max_length"},
		},
		{
			name: "rejects a default longer than max length",
			ops: []Operation{AddField{
				Model: "libraryprotocol", Name: "type",
				Field: Field{Type: CharField, MaxLength: 3, Default: "DNAX"},
			}},
			keys: []string{"Operations.0.field.default"},
		},
		{
			name: "rejects a default outside of the choices",
			ops: []Operation{AlterField{
				Model: "libraryprotocol", Name: "type",
				Field: Field{Type: CharField, MaxLength: 3, Default: "XNA", Choices: []Choice{{Value: "DNA"}, {Value: "RNA"}}},
			}},
			keys: []string{"Operations.0.field.default"},
		},
		{
			name: "rejects a negative default on positive fields",
			ops: []Operation{AddField{
				Model: "flowcell", Name: "read1_cycles",
				Field: Field{Type: PositiveSmallIntegerField, Default: -1},
			}},
			keys: []string{"Operations.0.field.default"},
		},
		{
			name: "rejects foreign key attributes on plain fields",
			ops: []Operation{AddField{
				Model: "flowcell", Name: "lanes",
				Field: Field{Type: IntegerField, To: "flowcell.lane"},
			}},
			keys: []string{"Operations.0.field.to"},
		},
		{
			name: "rejects a foreign key constraint without policy",
			ops:  []Operation{AddForeignKey{Model: "indexpair", Name: "index1", To: "indexi7"}},
			keys: []string{"Operations.0.on_delete"},
		},
		{
			name: "rejects auto fields that are not primary keys",
			ops:  []Operation{AlterField{Model: "indexi7", Name: "id", Field: Field{Type: BigAutoField}}},
			keys: []string{"Operations.0.field.primary_key"},
		},
		{
			name: "rejects bad identifiers",
			ops: []Operation{AddField{
				Model: "flow cell", Name: "run_name",
				Field: Field{Type: TextField, Null: true},
			}},
			keys: []string{"Operations.0.model"},
		},
		{
			name: "rejects empty units",
			keys: []string{"Operations"},
		},
		{
			name: "rejects missing operations",
			ops:  []Operation{nil},
			keys: []string{"Operations.0"},
		},
		{
			name: "rejects a missing operation between valid ones",
			ops: []Operation{
				AddField{Model: "flowcell", Name: "notes", Field: Field{Type: TextField, Null: true}},
				nil,
			},
			keys: []string{"Operations.1"},
		},
		{
			name: "rejects self dependencies",
			ops:  []Operation{AddField{Model: "flowcell", Name: "notes", Field: Field{Type: TextField, Null: true}}},
			deps: []UnitID{testID},
			keys: []string{"Dependencies"},
		},
		{
			name: "rejects duplicated dependencies",
			ops:  []Operation{AddField{Model: "flowcell", Name: "notes", Field: Field{Type: TextField, Null: true}}},
			deps: []UnitID{
				{Module: "sample", Name: "0007_auto_20230929_1053"},
				{Module: "sample", Name: "0007_auto_20230929_1053"},
			},
			keys: []string{"Dependencies"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			u, err := NewUnit(testID, tc.deps, tc.ops...)
			if len(tc.keys) == 0 {
				require.NoError(t, err)
				require.NotNil(t, u)
				return
			}

			require.Error(t, err)
			require.True(t, errors.Is(err, cerrors.ErrConfiguration), err.Error())

			keys := []string{}
			for _, fe := range cerrors.FieldErrors(err) {
				keys = append(keys, fe.Key)
			}
			require.Equal(t, tc.keys, keys)
		})
	}
}

func TestUnitIsImmutable(t *testing.T) {
	ops := []Operation{AddField{Model: "flowcell", Name: "notes", Field: Field{Type: TextField, Null: true}}}
	u, err := NewUnit(testID, nil, ops...)
	require.NoError(t, err)

	ops[0] = AddField{Model: "flowcell", Name: "other", Field: Field{Type: TextField, Null: true}}
	require.Equal(t, "notes", u.Operations[0].FieldName())
}

func TestChecksum(t *testing.T) {
	build := func(def interface{}) *Unit {
		return MustUnit(testID, nil, AddField{
			Model: "flowcell", Name: "index1_cycles",
			Field: Field{Type: PositiveSmallIntegerField, Default: def},
		})
	}

	t.Run("is stable for the same definition", func(t *testing.T) {
		require.Equal(t, build(1).Checksum(), build(1).Checksum())
		require.Len(t, build(1).Checksum(), 64)
	})

	t.Run("changes with the definition", func(t *testing.T) {
		require.NotEqual(t, build(1).Checksum(), build(2).Checksum())
	})

	t.Run("distinguishes operation kinds", func(t *testing.T) {
		field := Field{Type: TextField, Null: true}
		add := MustUnit(testID, nil, AddField{Model: "flowcell", Name: "notes", Field: field})
		alter := MustUnit(testID, nil, AlterField{Model: "flowcell", Name: "notes", Field: field})
		require.NotEqual(t, add.Checksum(), alter.Checksum())
	})

	t.Run("units declared as literals hash like built ones", func(t *testing.T) {
		built := build(1)
		literal := &Unit{ID: built.ID, Operations: built.Operations}
		require.Equal(t, built.Checksum(), literal.Checksum())
	})

	t.Run("missing operations have no checksum", func(t *testing.T) {
		literal := &Unit{ID: testID, Operations: []Operation{nil}}
		require.NotPanics(t, func() {
			require.Empty(t, literal.Checksum())
		})
	})

	t.Run("NewUnit rejects missing operations", func(t *testing.T) {
		require.NotPanics(t, func() {
			_, err := NewUnit(testID, nil, nil)
			require.True(t, errors.Is(err, cerrors.ErrConfiguration))
		})
	})
}

func TestParseUnitID(t *testing.T) {
	id, err := ParseUnitID("flowcell.0006_auto_20230702_1816")
	require.NoError(t, err)
	require.Equal(t, UnitID{Module: "flowcell", Name: "0006_auto_20230702_1816"}, id)
	require.Equal(t, "flowcell.0006_auto_20230702_1816", id.String())

	_, err = ParseUnitID("flowcell")
	require.Error(t, err)
}

func TestEffectiveDefault(t *testing.T) {
	cases := []struct {
		name     string
		field    Field
		expected interface{}
		ok       bool
	}{
		{"explicit default", Field{Type: PositiveSmallIntegerField, Default: 1}, 1, true},
		{"blank char field", Field{Type: CharField, MaxLength: 200, Blank: true}, "", true},
		{"nullable blank char field", Field{Type: CharField, MaxLength: 200, Blank: true, Null: true}, nil, false},
		{"no default", Field{Type: IntegerField}, nil, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, ok := tc.field.EffectiveDefault()
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.expected, value)
		})
	}
}

func TestNaming(t *testing.T) {
	require.Equal(t, "flowcell_sequencer", Table("flowcell", "sequencer"))
	require.Equal(t, "sample_nucleicacidtype", Table("library_sample_shared", "sample.nucleicacidtype"))
	require.Equal(t, "nucleic_acid_type_id", Column("nucleic_acid_type", ForeignKey))
	require.Equal(t, "run_name", Column("run_name", CharField))
	require.Equal(t, "index1_id", ColumnOf(AddForeignKey{Model: "indexpair", Name: "index1"}))
}
