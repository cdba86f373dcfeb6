package finalize

import (
	"math"

	"spikecurate/internal/curation"
	"spikecurate/internal/ledger"
)

// RejectLabels excludes a unit from export when any of them is present.
var RejectLabels = []string{"reject", "noise"}

// Sentinels written for metrics a curation does not provide.
const (
	MissingScore = -1.0
	MissingSNR   = 0.0
	MissingCount = -1
)

var (
	noiseOverlapMetrics   = []string{"nn_noise_overlap", "noise_overlap"}
	isolationScoreMetrics = []string{"nn_isolation", "isolation_score"}
)

func rejectSet() map[string]struct{} {
	set := make(map[string]struct{}, len(RejectLabels))
	for _, label := range RejectLabels {
		set[label] = struct{}{}
	}
	return set
}

// Accepted returns the units of unitIDs whose labels avoid RejectLabels.
func Accepted(unitIDs []int, labels curation.Labels) []int {
	reject := rejectSet()
	out := make([]int, 0, len(unitIDs))
	for _, unit := range unitIDs {
		if labels.Has(unit, reject) {
			continue
		}
		out = append(out, unit)
	}
	return out
}

// lookup returns the first finite value stored for unit under names.
func lookup(metrics curation.Metrics, unit int, names ...string) (float64, bool) {
	for _, name := range names {
		values, ok := metrics[name]
		if !ok {
			continue
		}
		v, ok := values[unit]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		return v, true
	}
	return 0, false
}

func valueOr(metrics curation.Metrics, unit int, fallback float64, names ...string) float64 {
	if v, ok := lookup(metrics, unit, names...); ok {
		return v
	}
	return fallback
}

// ExportRow flattens a unit's labels and metrics into the export columns.
func ExportRow(unit int, labels curation.Labels, metrics curation.Metrics) ledger.ExportUnit {
	row := ledger.ExportUnit{
		UnitID:         unit,
		Label:          labels.Joined(unit),
		NoiseOverlap:   valueOr(metrics, unit, MissingScore, noiseOverlapMetrics...),
		IsolationScore: valueOr(metrics, unit, MissingScore, isolationScoreMetrics...),
		ISIViolation:   valueOr(metrics, unit, MissingScore, "isi_violation"),
		SNR:            valueOr(metrics, unit, MissingSNR, "snr"),
		FiringRate:     valueOr(metrics, unit, MissingScore, "firing_rate"),
		NumSpikes:      MissingCount,
	}
	if v, ok := lookup(metrics, unit, "num_spikes"); ok {
		row.NumSpikes = int(math.Round(v))
	}
	return row
}

// restrictMetrics keeps only the values of units.
func restrictMetrics(metrics curation.Metrics, units []int) curation.Metrics {
	keep := make(map[int]struct{}, len(units))
	for _, u := range units {
		keep[u] = struct{}{}
	}
	out := make(curation.Metrics, len(metrics))
	for name, values := range metrics {
		filtered := make(map[int]float64)
		for unit, v := range values {
			if _, ok := keep[unit]; ok {
				filtered[unit] = v
			}
		}
		out[name] = filtered
	}
	return out
}
