/*
Package migrations applies migration units to a schema state.

A unit is a named, ordered batch of schema operations with explicit
prerequisites (see package schema). The Applier validates a unit set, orders it
so every prerequisite runs first and applies each unit that is not in the
applied record yet, in its own transaction:

	store := postgres.New(db, postgres.Options{})
	applier := migrations.NewApplier(store, migrations.Options{})

	report, err := applier.Apply(ctx, units)
	if err != nil {
		// errors.Is(err, cerrors.ErrCycle), ErrIntegrity or ErrConfiguration
		return err
	}

Failures abort the run. The failing unit leaves neither the schema nor the
applied record changed, every unit applied before it stays applied. Running the
same unit set again applies nothing.

Only one applier may run against a store at a time, Apply holds the store lock
for the whole run.
*/
package migrations
