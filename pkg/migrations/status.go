package migrations

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/contiamo/schema-migrator/pkg/schema"
	"github.com/contiamo/schema-migrator/pkg/state"
)

// UnitStatus is the state of a single unit in the applied record
type UnitStatus struct {
	ID schema.UnitID
	// Applied is true when the unit is in the applied record
	Applied bool
	// AppliedAt is zero for pending units
	AppliedAt time.Time
	// Modified is true when the recorded checksum differs from the definition
	Modified bool
	// Orphaned is true for recorded units that are not part of the unit set
	Orphaned bool
}

// Status returns the state of every unit in apply order, followed by the
// recorded units that are not part of the set
func (a *Applier) Status(ctx context.Context, units []*schema.Unit) (out []UnitStatus, err error) {
	span, ctx := a.StartSpan(ctx, "Status")
	defer func() {
		a.FinishSpan(span, err)
	}()

	plan, err := a.prepare(ctx, units)
	if err != nil {
		return nil, err
	}

	records, err := a.store.Applied(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "can not read the applied record")
	}
	applied := state.AppliedSet(records)

	out = make([]UnitStatus, 0, len(plan))
	defined := make(map[schema.UnitID]bool, len(plan))
	for _, u := range plan {
		defined[u.ID] = true

		status := UnitStatus{ID: u.ID}
		if record, ok := applied[u.ID]; ok {
			status.Applied = true
			status.AppliedAt = record.AppliedAt
			status.Modified = record.Checksum != u.Checksum()
		}
		out = append(out, status)
	}

	orphans := []UnitStatus{}
	for _, record := range records {
		if defined[record.ID] {
			continue
		}
		orphans = append(orphans, UnitStatus{
			ID:        record.ID,
			Applied:   true,
			AppliedAt: record.AppliedAt,
			Orphaned:  true,
		})
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].ID.Less(orphans[j].ID) })

	return append(out, orphans...), nil
}
