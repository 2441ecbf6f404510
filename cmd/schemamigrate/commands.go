package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	// postgres driver
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/contiamo/schema-migrator/pkg/config"
	"github.com/contiamo/schema-migrator/pkg/db"
	"github.com/contiamo/schema-migrator/pkg/definitions"
	"github.com/contiamo/schema-migrator/pkg/migrations"
	"github.com/contiamo/schema-migrator/pkg/schema"
	"github.com/contiamo/schema-migrator/pkg/state/postgres"
	"github.com/contiamo/schema-migrator/pkg/tracing"
)

// environment is what every command needs: the configuration and the unit set
type environment struct {
	cfg   config.Migrator
	units []*schema.Unit

	closers []io.Closer
}

func setup(ctx context.Context) (*environment, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	err = config.Logging(cfg.Log)
	if err != nil {
		return nil, err
	}

	closer, err := tracing.InitJaeger(cfg.Tracing)
	if err != nil {
		return nil, err
	}
	env := &environment{cfg: cfg, closers: []io.Closer{closer}}

	units, err := definitions.NewLoader(http.Dir(cfg.Definitions)).Load(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.units = units

	return env, nil
}

// applier connects to the database and returns an applier on its record
func (e *environment) applier(ctx context.Context) (*migrations.Applier, error) {
	conn, err := db.Open(ctx, e.cfg.Database)
	if err != nil {
		return nil, errors.Wrap(err, "can not connect to the database")
	}
	e.closers = append(e.closers, conn)

	store := postgres.New(conn, postgres.Options{RecordTable: e.cfg.RecordTable})
	return migrations.NewApplier(store, migrations.Options{
		StrictDependencies: e.cfg.StrictDependencies,
		LockTimeout:        e.cfg.LockTimeout,
	}), nil
}

// Close releases the database connection and flushes the spans
func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		err := e.closers[i].Close()
		if err != nil {
			logrus.WithError(err).Warn("failed to close")
		}
	}
}

func runMigrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	target := fs.String("target", "", "Apply only this unit and its prerequisites, as module.name")
	dryRun := fs.Bool("dry-run", false, "Print the pending units and their statements without applying them")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: schemamigrate migrate [options]\n\nApply the pending units in dependency order.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	var targetID schema.UnitID
	if *target != "" {
		var err error
		targetID, err = schema.ParseUnitID(*target)
		if err != nil {
			return err
		}
	}

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	applier, err := env.applier(ctx)
	if err != nil {
		return err
	}

	if *dryRun {
		units := env.units
		if *target != "" {
			units, err = schema.Closure(units, targetID)
			if err != nil {
				return err
			}
		}
		pending, err := applier.Plan(ctx, units)
		if err != nil {
			return err
		}
		return printPlan(stdout, pending)
	}

	start := time.Now()
	var report migrations.Report
	if *target != "" {
		report, err = applier.ApplyTarget(ctx, env.units, targetID)
	} else {
		report, err = applier.Apply(ctx, env.units)
	}
	for _, id := range report.Applied {
		fmt.Fprintf(stdout, "applied %s\n", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "%d applied, %d already applied in %s\n",
		len(report.Applied), len(report.Skipped), time.Since(start).Round(time.Millisecond))
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	pending := fs.Bool("pending", false, "List only the units that are not applied")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: schemamigrate status [options]\n\nList the units in apply order.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	applier, err := env.applier(ctx)
	if err != nil {
		return err
	}

	statuses, err := applier.Status(ctx, env.units)
	if err != nil {
		return err
	}

	if *pending {
		filtered := statuses[:0]
		for _, s := range statuses {
			if !s.Applied {
				filtered = append(filtered, s)
			}
		}
		statuses = filtered
	}
	return printStatus(stdout, statuses)
}

func runSQL(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sql", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: schemamigrate sql <module.name>\n\nPrint the statements of a unit for an empty database.\n")
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("sql requires exactly one unit")
	}

	id, err := schema.ParseUnitID(fs.Arg(0))
	if err != nil {
		return err
	}

	env, err := setup(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	for _, u := range env.units {
		if u.ID == id {
			return printUnit(stdout, u)
		}
	}
	return fmt.Errorf("unit %s is not defined in %s", id, env.cfg.Definitions)
}

func printPlan(w io.Writer, pending []*schema.Unit) error {
	if len(pending) == 0 {
		fmt.Fprintln(w, "nothing to apply")
		return nil
	}
	for _, u := range pending {
		if err := printUnit(w, u); err != nil {
			return err
		}
	}
	return nil
}

func printUnit(w io.Writer, u *schema.Unit) error {
	fmt.Fprintf(w, "-- %s\n", u.ID)
	for i, op := range u.Operations {
		stmts, err := postgres.Render(u.ID.Module, op)
		if err != nil {
			return errors.Wrapf(err, "%s failed at operation %d", u.ID, i)
		}
		for _, stmt := range stmts {
			fmt.Fprintf(w, "%s;\n", stmt)
		}
	}
	return nil
}

func printStatus(w io.Writer, statuses []migrations.UnitStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tSTATUS\tAPPLIED AT")
	for _, s := range statuses {
		appliedAt := "-"
		if s.Applied {
			appliedAt = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, statusLabel(s), appliedAt)
	}
	return tw.Flush()
}

func statusLabel(s migrations.UnitStatus) string {
	switch {
	case s.Orphaned:
		return "orphaned"
	case s.Modified:
		return "modified"
	case s.Applied:
		return "applied"
	}
	return "pending"
}
