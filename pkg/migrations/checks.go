package migrations

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/contiamo/schema-migrator/pkg/schema"
)

type reference struct {
	unit   *schema.Unit
	column string
}

// checkPrimaryKeyReferences logs the foreign keys to an altered primary key
// that are declared in a unit which is neither the altering unit nor one of
// its prerequisites. Such references are not updated together with the key.
func checkPrimaryKeyReferences(ctx context.Context, plan []*schema.Unit) {
	references := map[string][]reference{}
	for _, u := range plan {
		for _, op := range u.Operations {
			to, _, ok := schema.ForeignKeyOf(op)
			if !ok {
				continue
			}
			target := schema.Table(u.ID.Module, to)
			references[target] = append(references[target], reference{
				unit:   u,
				column: schema.Table(u.ID.Module, op.Entity()) + "." + schema.ColumnOf(op),
			})
		}
	}

	for _, u := range plan {
		var prerequisites map[schema.UnitID]bool
		for _, op := range u.Operations {
			alter, ok := op.(schema.AlterField)
			if !ok || !alter.Field.PrimaryKey {
				continue
			}
			if prerequisites == nil {
				prerequisites = transitivePrerequisites(plan, u)
			}

			table := schema.Table(u.ID.Module, alter.Model)
			for _, ref := range references[table] {
				if ref.unit == u || prerequisites[ref.unit.ID] {
					continue
				}
				logrus.WithContext(ctx).
					WithField("unit", u.ID.String()).
					WithField("table", table).
					WithField("reference", ref.column).
					WithField("declaredIn", ref.unit.ID.String()).
					Warn("primary key is altered but a foreign key referencing it is not updated by the unit or its prerequisites")
			}
		}
	}
}

func transitivePrerequisites(plan []*schema.Unit, u *schema.Unit) map[schema.UnitID]bool {
	byID := make(map[schema.UnitID]*schema.Unit, len(plan))
	for _, p := range plan {
		byID[p.ID] = p
	}

	out := map[schema.UnitID]bool{}
	stack := append([]schema.UnitID(nil), u.Dependencies...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if out[id] {
			continue
		}
		out[id] = true
		if p, ok := byID[id]; ok {
			stack = append(stack, p.Dependencies...)
		}
	}
	return out
}
