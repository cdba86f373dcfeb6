package sorting

import (
	"maps"
	"slices"
)

// UnitID identifies a putative single neuron within a sorting.
type UnitID = int

// Recording is the electrophysiology recording a sorting was produced from.
type Recording struct {
	Path              string    `json:"-"`
	SamplingFrequency float64   `json:"sampling_frequency"`
	NumChannels       int       `json:"num_channels"`
	Timestamps        []float64 `json:"timestamps"`
	Whitened          bool      `json:"whitened,omitempty"`
}

// NumFrames returns the number of samples in the recording.
func (r *Recording) NumFrames() int {
	if r == nil {
		return 0
	}
	return len(r.Timestamps)
}

// Sorting maps unit ids to ascending spike frame indices.
type Sorting struct {
	Path              string             `json:"-"`
	SamplingFrequency float64            `json:"sampling_frequency"`
	Units             map[UnitID][]int64 `json:"units"`
}

// UnitIDs returns the unit ids in ascending order.
func (s *Sorting) UnitIDs() []UnitID {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.Units))
}

// SpikeCount returns the number of spikes recorded for unit.
func (s *Sorting) SpikeCount(unit UnitID) int {
	if s == nil {
		return 0
	}
	return len(s.Units[unit])
}

// Clone returns a deep copy that shares no slices with s.
func (s *Sorting) Clone() *Sorting {
	if s == nil {
		return nil
	}
	out := &Sorting{
		Path:              s.Path,
		SamplingFrequency: s.SamplingFrequency,
		Units:             make(map[UnitID][]int64, len(s.Units)),
	}
	for id, train := range s.Units {
		out.Units[id] = slices.Clone(train)
	}
	return out
}
