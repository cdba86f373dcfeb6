package qualitymetrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"spikecurate/internal/ledger"
	"spikecurate/internal/services"
)

// DefaultParamSetName names the parameter set inserted by InsertDefaults.
const DefaultParamSetName = "franklab_default"

// Metric is one requested metric with its decoded parameters.
type Metric interface {
	Kind() Kind
}

// SNR parameters. PeakSign is passed to the library separately from the
// remaining options.
type SNR struct {
	PeakSign            string `json:"peak_sign"`
	NumChunksPerSegment int    `json:"num_chunks_per_segment"`
	ChunkSize           int    `json:"chunk_size"`
	Seed                int    `json:"seed"`
}

// SNROptions are the SNR parameters other than the peak sign.
type SNROptions struct {
	NumChunksPerSegment int `json:"num_chunks_per_segment"`
	ChunkSize           int `json:"chunk_size"`
	Seed                int `json:"seed"`
}

// ISIViolation parameters.
type ISIViolation struct {
	ISIThresholdMs float64 `json:"isi_threshold_ms"`
	MinISIMs       float64 `json:"min_isi_ms"`
}

// NNParams configures the nearest-neighbour metrics.
type NNParams struct {
	MaxSpikesForNN int     `json:"max_spikes_for_nn"`
	NNeighbors     int     `json:"n_neighbors"`
	NComponents    int     `json:"n_components"`
	RadiusUm       float64 `json:"radius_um"`
	Seed           int     `json:"seed"`
}

// NNIsolation requests the nearest-neighbour isolation score.
type NNIsolation struct{ NNParams }

// NNNoiseOverlap requests the nearest-neighbour noise overlap score.
type NNNoiseOverlap struct{ NNParams }

// NumSpikes requests per-unit spike counts.
type NumSpikes struct{}

// FiringRate requests per-unit firing rates.
type FiringRate struct{}

func (SNR) Kind() Kind            { return KindSNR }
func (ISIViolation) Kind() Kind   { return KindISIViolation }
func (NNIsolation) Kind() Kind    { return KindNNIsolation }
func (NNNoiseOverlap) Kind() Kind { return KindNNNoiseOverlap }
func (NumSpikes) Kind() Kind      { return KindNumSpikes }
func (FiringRate) Kind() Kind     { return KindFiringRate }

// Options returns the SNR options without the peak sign.
func (p SNR) Options() SNROptions {
	return SNROptions{NumChunksPerSegment: p.NumChunksPerSegment, ChunkSize: p.ChunkSize, Seed: p.Seed}
}

func defaultNN() NNParams {
	return NNParams{MaxSpikesForNN: 1000, NNeighbors: 5, NComponents: 7, RadiusUm: 100, Seed: 0}
}

// Default returns the default parameters of kind.
func Default(kind Kind) (Metric, error) {
	switch kind {
	case KindSNR:
		return SNR{PeakSign: "neg", NumChunksPerSegment: 20, ChunkSize: 10000, Seed: 0}, nil
	case KindISIViolation:
		return ISIViolation{ISIThresholdMs: 1.5, MinISIMs: 0}, nil
	case KindNNIsolation:
		return NNIsolation{defaultNN()}, nil
	case KindNNNoiseOverlap:
		return NNNoiseOverlap{defaultNN()}, nil
	case KindNumSpikes:
		return NumSpikes{}, nil
	case KindFiringRate:
		return FiringRate{}, nil
	}
	return nil, services.Wrap(services.ErrUnsupportedMetric, "metrics", "defaults", kind.String(), nil)
}

// Decode parses the parameters of the metric called name. Omitted fields
// keep their defaults.
func Decode(name string, raw json.RawMessage) (Metric, error) {
	kind, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		raw = json.RawMessage("{}")
	}
	fail := func(err error) error {
		return services.Wrap(services.ErrValidation, "metrics", "decode params", name, err)
	}
	switch kind {
	case KindSNR:
		p := SNR{PeakSign: "neg", NumChunksPerSegment: 20, ChunkSize: 10000}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fail(err)
		}
		switch p.PeakSign {
		case "neg", "pos", "both":
		default:
			return nil, fail(fmt.Errorf("peak_sign must be neg, pos or both, got %q", p.PeakSign))
		}
		return p, nil
	case KindISIViolation:
		p := ISIViolation{ISIThresholdMs: 1.5}
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fail(err)
		}
		if p.ISIThresholdMs <= 0 || p.MinISIMs < 0 {
			return nil, fail(fmt.Errorf("invalid isi thresholds %+v", p))
		}
		return p, nil
	case KindNNIsolation:
		p := defaultNN()
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fail(err)
		}
		return NNIsolation{p}, nil
	case KindNNNoiseOverlap:
		p := defaultNN()
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fail(err)
		}
		return NNNoiseOverlap{p}, nil
	case KindNumSpikes:
		return NumSpikes{}, nil
	case KindFiringRate:
		return FiringRate{}, nil
	}
	return nil, services.Wrap(services.ErrUnsupportedMetric, "metrics", "decode params", name, nil)
}

// Request is a decoded metric together with the name it was requested as.
type Request struct {
	Name   string
	Metric Metric
}

// DecodeSet decodes every metric of a parameter document, ordered by name.
// Any unknown metric fails the whole set.
func DecodeSet(params map[string]json.RawMessage) ([]Request, error) {
	names := slices.Sorted(maps.Keys(params))
	out := make([]Request, 0, len(names))
	for _, name := range names {
		m, err := Decode(name, params[name])
		if err != nil {
			return nil, err
		}
		out = append(out, Request{Name: m.Kind().String(), Metric: m})
	}
	return out, nil
}

// DefaultParams returns the parameter document of the default set.
func DefaultParams() map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for _, kind := range []Kind{KindSNR, KindISIViolation, KindNNIsolation, KindNNNoiseOverlap} {
		m, err := Default(kind)
		if err != nil {
			continue
		}
		raw, err := json.Marshal(m)
		if err != nil {
			continue
		}
		out[kind.String()] = raw
	}
	return out
}

// NewParamSet validates params and encodes them as a ledger parameter set.
func NewParamSet(name string, params map[string]json.RawMessage) (ledger.ParamSet, error) {
	if len(params) == 0 {
		return ledger.ParamSet{}, services.Wrap(services.ErrValidation, "metrics", "param set",
			fmt.Sprintf("%s requests no metrics", name), nil)
	}
	if _, err := DecodeSet(params); err != nil {
		return ledger.ParamSet{}, err
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return ledger.ParamSet{}, err
	}
	return ledger.ParamSet{Kind: ledger.ParamMetric, Name: name, Params: raw}, nil
}

// InsertDefaults stores the default parameter set unless it already exists.
func InsertDefaults(ctx context.Context, store *ledger.Store) error {
	set, err := NewParamSet(DefaultParamSetName, DefaultParams())
	if err != nil {
		return err
	}
	_, err = store.InsertParamSet(ctx, set)
	return err
}

// LoadRequests resolves and decodes a named parameter set.
func LoadRequests(ctx context.Context, store *ledger.Store, name string) ([]Request, error) {
	set, err := store.RequireParamSet(ctx, ledger.ParamMetric, name)
	if err != nil {
		return nil, err
	}
	var params map[string]json.RawMessage
	if err := json.Unmarshal(set.Params, &params); err != nil {
		return nil, services.Wrap(services.ErrValidation, "metrics", "decode params", name, err)
	}
	return DecodeSet(params)
}
