package db

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/contiamo/schema-migrator/pkg/validation"
)

func TestGenerateSQLName(t *testing.T) {
	first, second := GenerateSQLName(), GenerateSQLName()
	require.NotEqual(t, first, second)
	require.Len(t, first, 33)
	require.NoError(t, validation.SQLIdentifier(first))
}
