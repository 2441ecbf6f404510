package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaxonomy(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		sentinel error
		message  string
	}{
		{
			name:     "cycle error lists the units",
			err:      CycleError{Units: []string{"app.a", "app.b", "app.a"}},
			sentinel: ErrCycle,
			message:  "migration dependencies contain a cycle: app.a -> app.b -> app.a",
		},
		{
			name:     "cycle error without units",
			err:      CycleError{},
			sentinel: ErrCycle,
			message:  "migration dependencies contain a cycle",
		},
		{
			name: "integrity error names the unit and operation",
			err: IntegrityError{
				Unit:      "flowcell.0006_auto_20230702_1816",
				Operation: "add field flowcell.run_name",
				Reason:    "table has rows",
			},
			sentinel: ErrIntegrity,
			message:  "integrity error in flowcell.0006_auto_20230702_1816: add field flowcell.run_name: table has rows",
		},
		{
			name:     "configuration error wraps the cause",
			err:      NewConfigurationError("sample.0001_initial", errors.New("bad field")),
			sentinel: ErrConfiguration,
			message:  "invalid migration definition sample.0001_initial: bad field",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.True(t, errors.Is(tc.err, tc.sentinel))
			require.Equal(t, tc.message, tc.err.Error())
		})
	}

	t.Run("sentinels do not match each other", func(t *testing.T) {
		require.False(t, errors.Is(CycleError{}, ErrIntegrity))
		require.False(t, errors.Is(IntegrityError{}, ErrConfiguration))
	})

	t.Run("nil cause produces no configuration error", func(t *testing.T) {
		require.NoError(t, NewConfigurationError("sample.0001_initial", nil))
	})
}

func TestFieldErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		expected []FieldError
	}{
		{
			name: "returns nothing for nil",
		},
		{
			name:     "plain errors have an empty key",
			err:      errors.New("boom"),
			expected: []FieldError{{Message: "boom"}},
		},
		{
			name: "nested validation errors are flattened and sorted",
			err: NewConfigurationError("library_sample_shared.0007_dj32_upgrade", ValidationErrors{
				"operations": ValidationErrors{
					"1": ValidationErrors{
						"field": ValidationErrors{
							"null": errors.New("must be true when on_delete is SET_NULL"),
						},
					},
					"0": ValidationErrors{
						"model": errors.New("cannot be blank"),
					},
				},
				"name":  errors.New("cannot be blank"),
				"empty": nil,
			}),
			expected: []FieldError{
				{Key: "name", Message: "cannot be blank"},
				{Key: "operations.0.model", Message: "cannot be blank"},
				{Key: "operations.1.field.null", Message: "must be true when on_delete is SET_NULL"},
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, FieldErrors(tc.err))
		})
	}
}
