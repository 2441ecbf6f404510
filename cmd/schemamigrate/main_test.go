package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func setupCommand(t *testing.T) *bytes.Buffer {
	t.Setenv("SCHEMA_DEFINITIONS", "../../pkg/definitions/testdata")
	t.Setenv("SCHEMA_LOG_LEVEL", "fatal")

	buf := &bytes.Buffer{}
	prev := stdout
	stdout = buf
	t.Cleanup(func() { stdout = prev })
	return buf
}

func TestRun(t *testing.T) {
	cases := []struct {
		name string
		args []string
		code int
	}{
		{name: "no command", args: nil, code: 1},
		{name: "unknown command", args: []string{"rollback"}, code: 1},
		{name: "help", args: []string{"help"}, code: 0},
		{name: "version", args: []string{"version"}, code: 0},
		{name: "bad flag", args: []string{"migrate", "--force"}, code: 1},
		{name: "bad target", args: []string{"migrate", "--target", "flowcell"}, code: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setupCommand(t)
			require.Equal(t, tc.code, run(tc.args))
		})
	}
}

func TestSQL(t *testing.T) {
	ctx := context.Background()

	t.Run("prints the statements of a unit", func(t *testing.T) {
		out := setupCommand(t)

		err := runSQL(ctx, []string{"flowcell.0006_auto_20230702_1816"})
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(out.String()), "\n")
		require.Equal(t, "-- flowcell.0006_auto_20230702_1816", lines[0])
		require.Equal(t, `CREATE TABLE IF NOT EXISTS "flowcell_flowcell" ("id" integer GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY);`, lines[1])
		require.Equal(t, `ALTER TABLE "flowcell_flowcell" ADD COLUMN "index1_cycles" smallint DEFAULT 1 NOT NULL;`, lines[2])
		require.Equal(t, `ALTER TABLE "flowcell_flowcell" ALTER COLUMN "index1_cycles" DROP DEFAULT;`, lines[3])
	})

	t.Run("fails for an unknown unit", func(t *testing.T) {
		setupCommand(t)

		err := runSQL(ctx, []string{"flowcell.0099_missing"})
		require.EqualError(t, err, "unit flowcell.0099_missing is not defined in ../../pkg/definitions/testdata")
	})

	t.Run("requires a unit", func(t *testing.T) {
		setupCommand(t)

		err := runSQL(ctx, nil)
		require.EqualError(t, err, "sql requires exactly one unit")
	})

	t.Run("fails for a missing definitions directory", func(t *testing.T) {
		setupCommand(t)
		t.Setenv("SCHEMA_DEFINITIONS", "./testdata/missing")

		err := runSQL(ctx, []string{"flowcell.0006_auto_20230702_1816"})
		require.Error(t, err)
	})
}

func TestVersion(t *testing.T) {
	out := setupCommand(t)
	require.NoError(t, runVersion(context.Background(), nil))
	require.Equal(t, "dev\n", out.String())
}
