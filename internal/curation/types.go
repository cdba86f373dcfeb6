package curation

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// RootParent is the parent id of the first curation of a sorting.
const RootParent = "original"

// IDPrefix starts every curation id.
const IDPrefix = "C_"

// UnitID identifies a sorted unit.
type UnitID = int

// NewID returns a fresh curation id: IDPrefix plus the first eight hex
// characters of a random UUID. Callers must still check for collisions.
func NewID() string {
	return IDPrefix + uuid.NewString()[:8]
}

// Labels maps a unit to its free-text labels, in insertion order.
type Labels map[UnitID][]string

// Clone returns a deep copy. A nil receiver yields an empty map.
func (l Labels) Clone() Labels {
	out := make(Labels, len(l))
	for unit, labels := range l {
		out[unit] = slices.Clone(labels)
	}
	return out
}

// Has reports whether unit carries any label in set.
func (l Labels) Has(unit UnitID, set map[string]struct{}) bool {
	for _, label := range l[unit] {
		if _, ok := set[label]; ok {
			return true
		}
	}
	return false
}

// Joined returns the unit's labels joined with commas.
func (l Labels) Joined(unit UnitID) string {
	return strings.Join(l[unit], ",")
}

// MergeGroups lists sets of units to be combined; groups are pairwise disjoint.
type MergeGroups [][]UnitID

// Clone returns a deep copy. A nil receiver yields an empty slice.
func (g MergeGroups) Clone() MergeGroups {
	out := make(MergeGroups, 0, len(g))
	for _, group := range g {
		out = append(out, slices.Clone(group))
	}
	return out
}

// Validate reports the first unit that appears in more than one group.
func (g MergeGroups) Validate() error {
	seen := make(map[UnitID]int)
	for i, group := range g {
		if len(group) == 0 {
			return fmt.Errorf("merge group %d is empty", i)
		}
		for _, unit := range group {
			if prev, ok := seen[unit]; ok && prev != i {
				return fmt.Errorf("unit %d appears in merge groups %d and %d", unit, prev, i)
			}
			seen[unit] = i
		}
	}
	return nil
}

// Metrics maps a metric name to per-unit values.
type Metrics map[string]map[UnitID]float64

// Clone returns a deep copy. A nil receiver yields an empty map.
func (m Metrics) Clone() Metrics {
	out := make(Metrics, len(m))
	for name, values := range m {
		out[name] = maps.Clone(values)
		if out[name] == nil {
			out[name] = map[UnitID]float64{}
		}
	}
	return out
}

// Units returns every unit with at least one metric value, ascending.
func (m Metrics) Units() []UnitID {
	set := make(map[UnitID]struct{})
	for _, values := range m {
		for unit := range values {
			set[unit] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

// Names returns the metric names in ascending order.
func (m Metrics) Names() []string {
	return slices.Sorted(maps.Keys(m))
}

// metricValue is the wire form of one metric value. JSON has no NaN or
// infinities, so those travel as the strings "NaN", "+Inf" and "-Inf".
type metricValue float64

func (v metricValue) MarshalJSON() ([]byte, error) {
	f := float64(v)
	switch {
	case math.IsNaN(f):
		return []byte(`"NaN"`), nil
	case math.IsInf(f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON also accepts null, read as NaN.
func (v *metricValue) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = metricValue(math.NaN())
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return err
		}
		switch tag {
		case "NaN":
			*v = metricValue(math.NaN())
		case "+Inf", "Inf":
			*v = metricValue(math.Inf(1))
		case "-Inf":
			*v = metricValue(math.Inf(-1))
		default:
			return fmt.Errorf("metric value: unsupported string %q", tag)
		}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = metricValue(f)
	return nil
}

// MarshalJSON writes non-finite values as tagged strings.
func (m Metrics) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	out := make(map[string]map[UnitID]metricValue, len(m))
	for name, values := range m {
		encoded := make(map[UnitID]metricValue, len(values))
		for unit, value := range values {
			encoded[unit] = metricValue(value)
		}
		out[name] = encoded
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the tagged non-finite values written by MarshalJSON.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	var raw map[string]map[UnitID]metricValue
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Metrics, len(raw))
	for name, values := range raw {
		decoded := make(map[UnitID]float64, len(values))
		for unit, value := range values {
			decoded[unit] = float64(value)
		}
		out[name] = decoded
	}
	*m = out
	return nil
}
