package qualitymetrics

import (
	"fmt"
	"strings"

	"spikecurate/internal/services"
)

// Kind enumerates the supported quality metrics.
type Kind int

const (
	KindSNR Kind = iota + 1
	KindISIViolation
	KindNNIsolation
	KindNNNoiseOverlap
	KindNumSpikes
	KindFiringRate
)

// Mode says whether a metric is computed for all units at once or per unit.
type Mode int

const (
	ModeBatch Mode = iota
	ModePerUnit
)

var kindNames = map[Kind]string{
	KindSNR:            "snr",
	KindISIViolation:   "isi_violation",
	KindNNIsolation:    "nn_isolation",
	KindNNNoiseOverlap: "nn_noise_overlap",
	KindNumSpikes:      "num_spikes",
	KindFiringRate:     "firing_rate",
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindSNR, KindISIViolation, KindNNIsolation, KindNNNoiseOverlap, KindNumSpikes, KindFiringRate}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Mode reports how the kind is computed.
func (k Kind) Mode() Mode {
	switch k {
	case KindNNIsolation, KindNNNoiseOverlap:
		return ModePerUnit
	default:
		return ModeBatch
	}
}

// ParseKind maps a metric name to its kind.
func ParseKind(name string) (Kind, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for kind, candidate := range kindNames {
		if candidate == normalized {
			return kind, nil
		}
	}
	return 0, services.Wrap(services.ErrUnsupportedMetric, "metrics", "parse",
		fmt.Sprintf("unknown metric %q", name), nil)
}
