// Package state defines the capability the migration applier uses to mutate
// the persistent schema state and the record of applied units.
//
// Implementations must apply the operations and the record of a unit in one
// transaction: after a failed unit neither the schema nor the record show it.
package state

import (
	"context"
	"time"

	"github.com/contiamo/schema-migrator/pkg/schema"
)

// Record is an entry of the applied record
type Record struct {
	ID        schema.UnitID
	Checksum  string
	AppliedAt time.Time
}

// Store is a schema state together with its applied record
type Store interface {
	// Lock blocks until the caller is the only writer of the store or ctx is done.
	// The returned function releases the lock.
	Lock(ctx context.Context) (unlock func() error, err error)
	// Applied returns the applied record ordered by UnitID
	Applied(ctx context.Context) ([]Record, error)
	// Begin starts the transaction of a single unit
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the transaction a unit is applied in
type Tx interface {
	// Apply applies one operation of the unit to the schema state
	Apply(ctx context.Context, unit schema.UnitID, op schema.Operation) error
	// Record adds the unit to the applied record
	Record(ctx context.Context, unit *schema.Unit) error
	// Commit makes the changes of the transaction visible
	Commit() error
	// Rollback discards the changes of the transaction, it is a noop after Commit
	Rollback() error
}

// AppliedSet indexes records by unit id
func AppliedSet(records []Record) map[schema.UnitID]Record {
	out := make(map[schema.UnitID]Record, len(records))
	for _, r := range records {
		out[r.ID] = r
	}
	return out
}
