// schemamigrate applies the unit files of a definitions directory to a
// PostgreSQL database. It is configured with the SCHEMA_* environment variables.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/contiamo/schema-migrator/pkg/contexts"
)

var version = "dev"

// stdout receives the command output, logs go to stderr
var stdout io.Writer = os.Stdout

var commands = map[string]func(context.Context, []string) error{
	"migrate": runMigrate,
	"status":  runStatus,
	"sql":     runSQL,
	"version": runVersion,
}

func usage() {
	fmt.Fprintf(os.Stderr, `schemamigrate - schema migration applier (version %s)

Usage:
  schemamigrate <command> [options]

Commands:
  migrate   Apply the pending units, optionally up to --target module.name
  status    List the units and whether they are applied
  sql       Print the statements of a unit without a database
  version   Print the version

The configuration is read from the SCHEMA_* environment variables, e.g.
SCHEMA_DEFINITIONS, SCHEMA_DB_HOST and SCHEMA_LOG_LEVEL.

Run 'schemamigrate <command> -h' for the options of a command.
`, version)
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 1
	}

	cmd := args[0]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		usage()
		return 0
	}

	fn, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		return 1
	}

	ctx, cancel := contexts.WithSignals(context.Background())
	defer cancel()

	if err := fn(ctx, args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runVersion(_ context.Context, _ []string) error {
	fmt.Fprintln(stdout, version)
	return nil
}
