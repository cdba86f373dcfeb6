package autocuration

import (
	"fmt"
	"slices"

	"spikecurate/internal/curation"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
)

// MergeGroups folds proposals into parent and reports whether the result
// differs from parent. A proposal whose first unit matches the first unit
// of an existing group extends that group; any other proposal is appended.
// Groups that end up sharing a unit are then combined, so the result is
// pairwise disjoint. Groups are sorted internally and ordered by first unit.
func MergeGroups(parent curation.MergeGroups, proposals [][]int) (curation.MergeGroups, bool) {
	before := resolveOverlaps(normalizeGroups(parent))
	groups := before.Clone()

	for _, proposal := range proposals {
		p := dedupeSorted(proposal)
		if len(p) < 2 {
			continue
		}
		found := false
		for i, existing := range groups {
			if existing[0] == p[0] {
				groups[i] = dedupeSorted(append(slices.Clone(existing), p[1:]...))
				found = true
				break
			}
		}
		if !found {
			groups = append(groups, p)
		}
	}

	groups = resolveOverlaps(groups)
	return groups, !equalGroups(before, groups)
}

// ProposeMerges returns the groups requested by params after checking that
// every unit has metrics.
func ProposeMerges(metrics curation.Metrics, params MergeParams) ([][]int, error) {
	if params.Empty() {
		return nil, nil
	}
	known := make(map[int]struct{})
	for _, unit := range metrics.Units() {
		known[unit] = struct{}{}
	}
	out := make([][]int, 0, len(params.Groups))
	for i, group := range params.Groups {
		if len(group) == 0 {
			continue
		}
		for _, unit := range group {
			if _, ok := known[unit]; !ok {
				return nil, services.Wrap(services.ErrValidation, "autocuration", "propose merges",
					fmt.Sprintf("merge group %d names unit %d which has no metrics", i, unit), nil)
			}
		}
		out = append(out, slices.Clone(group))
	}
	return out, nil
}

// expandProposals rewrites synthetic unit ids produced by earlier merges
// into the base units they were built from.
func expandProposals(proposals [][]int, applied []sorting.AppliedMerge) [][]int {
	if len(applied) == 0 {
		return proposals
	}
	constituents := make(map[int][]int, len(applied))
	for _, m := range applied {
		constituents[m.UnitID] = m.Constituents
	}
	out := make([][]int, 0, len(proposals))
	for _, proposal := range proposals {
		var expanded []int
		for _, unit := range proposal {
			if base, ok := constituents[unit]; ok {
				expanded = append(expanded, base...)
				continue
			}
			expanded = append(expanded, unit)
		}
		out = append(out, expanded)
	}
	return out
}

func normalizeGroups(groups curation.MergeGroups) curation.MergeGroups {
	out := make(curation.MergeGroups, 0, len(groups))
	for _, g := range groups {
		if norm := dedupeSorted(g); len(norm) > 0 {
			out = append(out, norm)
		}
	}
	return out
}

func dedupeSorted(units []int) []int {
	out := slices.Clone(units)
	slices.Sort(out)
	return slices.Compact(out)
}

// resolveOverlaps combines groups that share units until all groups are
// disjoint, then orders them by first unit.
func resolveOverlaps(groups curation.MergeGroups) curation.MergeGroups {
	parent := make(map[int]int)
	var find func(int) int
	find = func(x int) int {
		if p, ok := parent[x]; ok && p != x {
			root := find(p)
			parent[x] = root
			return root
		}
		parent[x] = x
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}
	for _, g := range groups {
		for _, unit := range g[1:] {
			union(g[0], unit)
		}
		find(g[0])
	}

	members := make(map[int][]int)
	for unit := range parent {
		root := find(unit)
		members[root] = append(members[root], unit)
	}
	out := make(curation.MergeGroups, 0, len(members))
	for _, units := range members {
		if len(units) < 2 {
			continue
		}
		slices.Sort(units)
		out = append(out, units)
	}
	slices.SortFunc(out, func(a, b []int) int { return a[0] - b[0] })
	return out
}

func equalGroups(a, b curation.MergeGroups) bool {
	return slices.EqualFunc(a, b, func(x, y []int) bool { return slices.Equal(x, y) })
}
