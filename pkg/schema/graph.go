package schema

import (
	"fmt"
	"sort"

	cerrors "github.com/contiamo/schema-migrator/pkg/errors"
)

// Sort orders the units so every prerequisite precedes its dependents.
// Units that are ready at the same time are ordered by UnitID so the result is
// deterministic. Prerequisites that are not part of units are ignored here,
// see External.
//
// A unit set without a valid order returns a CycleError.
func Sort(units []*Unit) ([]*Unit, error) {
	byID, err := index(units)
	if err != nil {
		return nil, err
	}

	pending := make(map[UnitID]int, len(units))
	dependents := make(map[UnitID][]UnitID, len(units))
	for _, u := range units {
		pending[u.ID] = 0
		for _, dep := range u.Dependencies {
			if _, ok := byID[dep]; !ok {
				continue
			}
			pending[u.ID]++
			dependents[dep] = append(dependents[dep], u.ID)
		}
	}

	ready := make([]UnitID, 0, len(units))
	for id, n := range pending {
		if n == 0 {
			ready = append(ready, id)
		}
	}

	sorted := make([]*Unit, 0, len(units))
	for len(ready) > 0 {
		sortIDs(ready)
		next := ready[0]
		ready = ready[1:]
		delete(pending, next)
		sorted = append(sorted, byID[next])

		for _, dependent := range dependents[next] {
			pending[dependent]--
			if pending[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(pending) > 0 {
		return nil, findCycle(byID, pending)
	}

	return sorted, nil
}

// Closure returns the target and all of its transitive prerequisites that are
// part of units, in apply order.
func Closure(units []*Unit, target UnitID) ([]*Unit, error) {
	byID, err := index(units)
	if err != nil {
		return nil, err
	}
	if _, ok := byID[target]; !ok {
		return nil, cerrors.NewConfigurationError(target.String(), fmt.Errorf("unit is not defined"))
	}

	selected := map[UnitID]bool{}
	queue := []UnitID{target}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if selected[id] {
			continue
		}
		selected[id] = true
		for _, dep := range byID[id].Dependencies {
			if _, ok := byID[dep]; ok && !selected[dep] {
				queue = append(queue, dep)
			}
		}
	}

	subset := make([]*Unit, 0, len(selected))
	for _, u := range units {
		if selected[u.ID] {
			subset = append(subset, u)
		}
	}
	return Sort(subset)
}

// External returns the prerequisites that are referenced by units but are not
// part of them, sorted and without duplicates.
func External(units []*Unit) []UnitID {
	defined := make(map[UnitID]bool, len(units))
	for _, u := range units {
		defined[u.ID] = true
	}

	seen := map[UnitID]bool{}
	out := []UnitID{}
	for _, u := range units {
		for _, dep := range u.Dependencies {
			if defined[dep] || seen[dep] {
				continue
			}
			seen[dep] = true
			out = append(out, dep)
		}
	}
	sortIDs(out)
	return out
}

func index(units []*Unit) (map[UnitID]*Unit, error) {
	byID := make(map[UnitID]*Unit, len(units))
	for _, u := range units {
		if _, ok := byID[u.ID]; ok {
			return nil, cerrors.NewConfigurationError(u.ID.String(), fmt.Errorf("unit is defined twice"))
		}
		byID[u.ID] = u
	}
	return byID, nil
}

// findCycle walks prerequisites between the units left over by Sort. Every one
// of them still waits for another left over unit, so the walk must revisit a unit.
func findCycle(byID map[UnitID]*Unit, pending map[UnitID]int) error {
	left := make([]UnitID, 0, len(pending))
	for id := range pending {
		left = append(left, id)
	}
	sortIDs(left)

	position := map[UnitID]int{}
	path := []UnitID{}
	current := left[0]
	for {
		if i, ok := position[current]; ok {
			cycle := append(path[i:], current)
			names := make([]string, 0, len(cycle))
			for _, id := range cycle {
				names = append(names, id.String())
			}
			return cerrors.CycleError{Units: names}
		}
		position[current] = len(path)
		path = append(path, current)

		deps := append([]UnitID(nil), byID[current].Dependencies...)
		sortIDs(deps)
		for _, dep := range deps {
			if _, ok := pending[dep]; ok {
				current = dep
				break
			}
		}
	}
}

func sortIDs(ids []UnitID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}
