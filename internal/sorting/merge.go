package sorting

import (
	"fmt"
	"slices"

	"spikecurate/internal/services"
)

// AppliedMerge records which units were combined into a synthetic unit.
type AppliedMerge struct {
	UnitID       UnitID   `json:"unit_id"`
	Constituents []UnitID `json:"constituents"`
}

// ApplyMerges combines each merge group of base into a single unit. The
// constituent spike trains are concatenated and re-sorted, the merged unit
// receives the id max(existing)+1+i for the i-th group, and the constituents
// are dropped from the view. base is never modified.
func ApplyMerges(base *Sorting, groups [][]UnitID) (*Sorting, []AppliedMerge, error) {
	if base == nil {
		return nil, nil, services.Wrap(services.ErrValidation, "sorting", "apply merges", "base sorting is nil", nil)
	}
	view := base.Clone()
	if len(groups) == 0 {
		return view, nil, nil
	}

	nextID := 0
	for id := range base.Units {
		if id+1 > nextID {
			nextID = id + 1
		}
	}

	consumed := make(map[UnitID]struct{})
	applied := make([]AppliedMerge, 0, len(groups))
	for i, group := range groups {
		if len(group) == 0 {
			continue
		}
		var merged []int64
		for _, unit := range group {
			train, ok := base.Units[unit]
			if !ok {
				return nil, nil, services.Wrap(services.ErrValidation, "sorting", "apply merges",
					fmt.Sprintf("merge group %d references unknown unit %d", i, unit), nil)
			}
			if _, dup := consumed[unit]; dup {
				return nil, nil, services.Wrap(services.ErrValidation, "sorting", "apply merges",
					fmt.Sprintf("unit %d appears in more than one merge group", unit), nil)
			}
			consumed[unit] = struct{}{}
			merged = append(merged, train...)
		}
		slices.Sort(merged)

		id := nextID + i
		for _, unit := range group {
			delete(view.Units, unit)
		}
		view.Units[id] = merged
		applied = append(applied, AppliedMerge{UnitID: id, Constituents: slices.Sorted(slices.Values(group))})
	}
	return view, applied, nil
}
