package autocuration

import (
	"fmt"
	"maps"
	"slices"

	"spikecurate/internal/curation"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
)

// ProposeLabels applies each metric's rule to every unit with a value for
// that metric. A rule naming a metric absent from metrics is rejected.
func ProposeLabels(metrics curation.Metrics, params LabelParams) (curation.Labels, error) {
	out := curation.Labels{}
	for _, name := range slices.Sorted(maps.Keys(params)) {
		rule := params[name]
		values, ok := metrics[name]
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "autocuration", "propose labels",
				fmt.Sprintf("label rule references metric %q which was not computed", name), nil)
		}
		for _, unit := range slices.Sorted(maps.Keys(values)) {
			if !rule.Matches(values[unit]) {
				continue
			}
			out[unit] = appendMissing(out[unit], rule.Labels...)
		}
	}
	return out, nil
}

// MergeLabels returns the per-unit union of parent and proposed labels.
// Existing labels keep their order; new ones are appended.
func MergeLabels(parent, proposed curation.Labels) curation.Labels {
	out := parent.Clone()
	for _, unit := range slices.Sorted(maps.Keys(proposed)) {
		out[unit] = appendMissing(out[unit], proposed[unit]...)
	}
	return out
}

// remapLabels moves labels from the units of an old view onto a view built
// with different merges. Every unit is traced to its base constituents; a
// unit whose constituents now sit inside a merge contributes its labels to
// that merged unit, so the merged unit carries the union of its parts. Units
// that cannot be placed in the new view are returned as dropped.
func remapLabels(labels curation.Labels, oldApplied, newApplied []sorting.AppliedMerge, newUnits []int) (curation.Labels, []int) {
	oldConstituents := make(map[int][]int, len(oldApplied))
	for _, m := range oldApplied {
		oldConstituents[m.UnitID] = m.Constituents
	}
	mergedInto := make(map[int]int)
	for _, m := range newApplied {
		for _, base := range m.Constituents {
			mergedInto[base] = m.UnitID
		}
	}
	present := make(map[int]struct{}, len(newUnits))
	for _, u := range newUnits {
		present[u] = struct{}{}
	}

	out := curation.Labels{}
	var dropped []int
	for _, unit := range slices.Sorted(maps.Keys(labels)) {
		bases, wasMerged := oldConstituents[unit]
		if !wasMerged {
			bases = []int{unit}
		}
		target, ok := -1, false
		if len(bases) > 0 {
			target, ok = mergedInto[bases[0]]
		}
		if !ok && !wasMerged {
			target = unit
		}
		if _, exists := present[target]; !exists {
			dropped = append(dropped, unit)
			continue
		}
		out[target] = appendMissing(out[target], labels[unit]...)
	}
	return out, dropped
}

func appendMissing(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
