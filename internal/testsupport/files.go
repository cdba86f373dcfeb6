package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"spikecurate/internal/config"
	"spikecurate/internal/ledger"
	"spikecurate/internal/sorting"
)

// Fixture sampling rate and length for generated recordings.
const (
	SamplingFrequency = 1000.0
	RecordingFrames   = 2000
)

// WriteJSON encodes v to path, creating parent directories.
func WriteJSON(t testing.TB, path string, v any) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteRecording writes a recording document with RecordingFrames evenly
// spaced timestamps starting at zero.
func WriteRecording(t testing.TB, path string) {
	t.Helper()

	ts := make([]float64, RecordingFrames)
	for i := range ts {
		ts[i] = float64(i) / SamplingFrequency
	}
	WriteJSON(t, path, sorting.Recording{
		SamplingFrequency: SamplingFrequency,
		NumChannels:       4,
		Timestamps:        ts,
	})
}

// WriteSorting writes a sorting document for units.
func WriteSorting(t testing.TB, path string, units map[int][]int64) {
	t.Helper()

	WriteJSON(t, path, sorting.Sorting{SamplingFrequency: SamplingFrequency, Units: units})
}

// RegisterSorting writes recording and sorting fixtures under cfg and
// registers them in store as ref.
func RegisterSorting(t testing.TB, cfg *config.Config, store *ledger.Store, ref string, units map[int][]int64) *ledger.SortingRecord {
	t.Helper()

	recPath := filepath.Join(cfg.Paths.RecordingsDir, ref+".json")
	sortPath := filepath.Join(cfg.Paths.SortingsDir, ref, "sorting.json")
	WriteRecording(t, recPath)
	WriteSorting(t, sortPath, units)

	if err := store.PutIntervalList(context.Background(), ref+"_interval", []ledger.Interval{{0, float64(RecordingFrames) / SamplingFrequency}}); err != nil {
		t.Fatalf("PutIntervalList: %v", err)
	}
	rec := ledger.SortingRecord{
		Ref:                  ref,
		NWBFileName:          ref + ".nwb",
		RecordingPath:        recPath,
		SortingPath:          sortPath,
		SortIntervalListName: ref + "_interval",
		SortInterval:         [2]float64{0, float64(RecordingFrames) / SamplingFrequency},
		TeamName:             "lab",
	}
	if err := store.RegisterSorting(context.Background(), rec); err != nil {
		t.Fatalf("RegisterSorting: %v", err)
	}
	got, err := store.GetSorting(context.Background(), ref)
	if err != nil || got == nil {
		t.Fatalf("GetSorting after register: %v", err)
	}
	return got
}
