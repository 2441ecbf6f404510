package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contiamo/schema-migrator/pkg/schema"
)

func TestRender(t *testing.T) {
	cases := []struct {
		name     string
		module   string
		op       schema.Operation
		expected []string
		err      string
	}{
		{
			name:   "add field backfills and drops the default",
			module: "flowcell",
			op: schema.AddField{
				Model: "flowcell", Name: "index1_cycles",
				Field: schema.Field{Type: schema.PositiveSmallIntegerField, Default: 1},
			},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "flowcell_flowcell" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "flowcell_flowcell" ADD COLUMN "index1_cycles" smallint DEFAULT 1 NOT NULL`,
				`ALTER TABLE "flowcell_flowcell" ALTER COLUMN "index1_cycles" DROP DEFAULT`,
				`ALTER TABLE "flowcell_flowcell" ADD CONSTRAINT "flowcell_flowcell_index1_cycles_check" CHECK ("index1_cycles" >= 0)`,
			},
		},
		{
			name:   "add field keeps a preserved default",
			module: "flowcell",
			op: schema.AddField{
				Model: "sequencer", Name: "instrument_type", PreserveDefault: true,
				Field: schema.Field{Type: schema.CharField, MaxLength: 50, Default: "NextSeq"},
			},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "flowcell_sequencer" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "flowcell_sequencer" ADD COLUMN "instrument_type" varchar(50) DEFAULT 'NextSeq' NOT NULL`,
			},
		},
		{
			name:   "blank text fields are filled with empty strings",
			module: "flowcell",
			op: schema.AddField{
				Model: "flowcell", Name: "library_prep_kits", PreserveDefault: true,
				Field: schema.Field{Type: schema.CharField, MaxLength: 200, Blank: true},
			},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "flowcell_flowcell" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "flowcell_flowcell" ADD COLUMN "library_prep_kits" varchar(200) DEFAULT '' NOT NULL`,
				`ALTER TABLE "flowcell_flowcell" ALTER COLUMN "library_prep_kits" DROP DEFAULT`,
			},
		},
		{
			name:   "nullable foreign keys reference the qualified entity",
			module: "library_sample_shared",
			op: schema.AddField{
				Model: "libraryprotocol", Name: "nucleic_acid_type", PreserveDefault: true,
				Field: schema.Field{Type: schema.ForeignKey, Null: true, To: "sample.nucleicacidtype", OnDelete: schema.SetNull},
			},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "library_sample_shared_libraryprotocol" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" ADD COLUMN "nucleic_acid_type_id" bigint`,
				`CREATE TABLE IF NOT EXISTS "sample_nucleicacidtype" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" DROP CONSTRAINT IF EXISTS "library_sample_shared_libraryprotocol_nucleic_acid_type_id_fk"`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" ADD CONSTRAINT "library_sample_shared_libraryprotocol_nucleic_acid_type_id_fk" FOREIGN KEY ("nucleic_acid_type_id") REFERENCES "sample_nucleicacidtype" ("id") ON DELETE SET NULL DEFERRABLE INITIALLY DEFERRED`,
			},
		},
		{
			name:   "alter field of a primary key only changes the type",
			module: "library_sample_shared",
			op: schema.AlterField{
				Model: "indexi7", Name: "id", PreserveDefault: true,
				Field: schema.Field{Type: schema.BigAutoField, PrimaryKey: true, AutoCreated: true},
			},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "library_sample_shared_indexi7" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "library_sample_shared_indexi7" DROP CONSTRAINT IF EXISTS "library_sample_shared_indexi7_id_fk"`,
				`ALTER TABLE "library_sample_shared_indexi7" ALTER COLUMN "id" TYPE bigint USING "id"::bigint`,
				`ALTER TABLE "library_sample_shared_indexi7" DROP CONSTRAINT IF EXISTS "library_sample_shared_indexi7_id_check"`,
				`ALTER TABLE "library_sample_shared_indexi7" DROP CONSTRAINT IF EXISTS "library_sample_shared_indexi7_id_uniq"`,
			},
		},
		{
			name:   "alter field backfills NULL values and keeps the default",
			module: "library_sample_shared",
			op: schema.AlterField{
				Model: "libraryprotocol", Name: "type", PreserveDefault: true,
				Field: schema.Field{Type: schema.CharField, MaxLength: 3, Default: "DNA"},
			},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "library_sample_shared_libraryprotocol" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" DROP CONSTRAINT IF EXISTS "library_sample_shared_libraryprotocol_type_fk"`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" ALTER COLUMN "type" TYPE varchar(3) USING "type"::varchar(3)`,
				`UPDATE "library_sample_shared_libraryprotocol" SET "type" = 'DNA' WHERE "type" IS NULL`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" ALTER COLUMN "type" SET NOT NULL`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" ALTER COLUMN "type" SET DEFAULT 'DNA'`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" DROP CONSTRAINT IF EXISTS "library_sample_shared_libraryprotocol_type_check"`,
				`ALTER TABLE "library_sample_shared_libraryprotocol" DROP CONSTRAINT IF EXISTS "library_sample_shared_libraryprotocol_type_uniq"`,
			},
		},
		{
			name:   "add foreign key only adds the constraint",
			module: "library_sample_shared",
			op:     schema.AddForeignKey{Model: "indexpair", Name: "index1", To: "indexi7", OnDelete: schema.Protect},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "library_sample_shared_indexpair" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`CREATE TABLE IF NOT EXISTS "library_sample_shared_indexi7" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "library_sample_shared_indexpair" DROP CONSTRAINT IF EXISTS "library_sample_shared_indexpair_index1_id_fk"`,
				`ALTER TABLE "library_sample_shared_indexpair" ADD CONSTRAINT "library_sample_shared_indexpair_index1_id_fk" FOREIGN KEY ("index1_id") REFERENCES "library_sample_shared_indexi7" ("id") ON DELETE RESTRICT DEFERRABLE INITIALLY DEFERRED`,
			},
		},
		{
			name:   "quotes string literals",
			module: "sample",
			op: schema.AddField{
				Model: "organism", Name: "label", PreserveDefault: true,
				Field: schema.Field{Type: schema.TextField, Null: true, Default: "Homo sapiens'"},
			},
			expected: []string{
				`CREATE TABLE IF NOT EXISTS "sample_organism" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY)`,
				`ALTER TABLE "sample_organism" ADD COLUMN "label" text DEFAULT 'Homo sapiens'''`,
			},
		},
		{
			name:   "unsupported defaults fail",
			module: "sample",
			op: schema.AddField{
				Model: "organism", Name: "tags", Field: schema.Field{Type: schema.TextField, Default: []string{"a"}},
			},
			err: "unsupported default [a] of type []string",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stmts, err := Render(tc.module, tc.op)
			if tc.err != "" {
				require.EqualError(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, stmts)
		})
	}
}

func TestRenameColumn(t *testing.T) {
	stmts, err := renameColumn("sample_sample", "organism_id", "organism")
	require.NoError(t, err)
	require.Equal(t, []string{
		`ALTER TABLE "sample_sample" DROP CONSTRAINT IF EXISTS "sample_sample_organism_id_fk"`,
		`ALTER TABLE "sample_sample" DROP CONSTRAINT IF EXISTS "sample_sample_organism_id_check"`,
		`ALTER TABLE "sample_sample" DROP CONSTRAINT IF EXISTS "sample_sample_organism_id_uniq"`,
		`ALTER TABLE "sample_sample" RENAME COLUMN "organism_id" TO "organism"`,
	}, stmts)
}

func TestColumnType(t *testing.T) {
	cases := []struct {
		field    schema.Field
		expected string
	}{
		{schema.Field{Type: schema.AutoField}, "integer"},
		{schema.Field{Type: schema.BigAutoField}, "bigint"},
		{schema.Field{Type: schema.CharField, MaxLength: 12}, "varchar(12)"},
		{schema.Field{Type: schema.TextField}, "text"},
		{schema.Field{Type: schema.PositiveIntegerField}, "integer"},
		{schema.Field{Type: schema.SmallIntegerField}, "smallint"},
		{schema.Field{Type: schema.BooleanField}, "boolean"},
		{schema.Field{Type: schema.DateTimeField}, "timestamp with time zone"},
		{schema.Field{Type: schema.ForeignKey}, "bigint"},
	}

	for _, tc := range cases {
		t.Run(string(tc.field.Type), func(t *testing.T) {
			typ, err := columnType(tc.field)
			require.NoError(t, err)
			require.Equal(t, tc.expected, typ)
		})
	}

	_, err := columnType(schema.Field{Type: "JSONField"})
	require.EqualError(t, err, `unsupported field type "JSONField"`)
}

func TestLiteral(t *testing.T) {
	cases := []struct {
		value    interface{}
		expected string
	}{
		{nil, "NULL"},
		{"DNA", "'DNA'"},
		{true, "TRUE"},
		{false, "FALSE"},
		{3, "3"},
		{int64(-2), "-2"},
		{uint8(7), "7"},
		{1.5, "1.5"},
	}

	for _, tc := range cases {
		value, err := literal(tc.value)
		require.NoError(t, err)
		require.Equal(t, tc.expected, value)
	}
}
