package waveform

import (
	"context"
	"encoding/json"
	"fmt"

	"spikecurate/internal/ledger"
	"spikecurate/internal/services"
)

// DefaultParamSetName names the parameter set inserted by InsertDefaults.
const DefaultParamSetName = "default"

// Params configures waveform extraction.
type Params struct {
	MsBefore         float64 `json:"ms_before"`
	MsAfter          float64 `json:"ms_after"`
	MaxSpikesPerUnit int     `json:"max_spikes_per_unit"`
	NJobs            int     `json:"n_jobs"`
	TotalMemory      string  `json:"total_memory"`
	Whiten           bool    `json:"whiten"`
}

// ExtractOptions are the parameters forwarded to the Extractor. Whitening is
// handled by the stage and never reaches the extractor.
type ExtractOptions struct {
	MsBefore         float64 `json:"ms_before"`
	MsAfter          float64 `json:"ms_after"`
	MaxSpikesPerUnit int     `json:"max_spikes_per_unit"`
	NJobs            int     `json:"n_jobs"`
	TotalMemory      string  `json:"total_memory"`
}

// DefaultParams returns the default extraction parameters.
func DefaultParams() Params {
	return Params{
		MsBefore:         0.5,
		MsAfter:          0.5,
		MaxSpikesPerUnit: 5000,
		NJobs:            5,
		TotalMemory:      "5G",
		Whiten:           false,
	}
}

// ExtractOptions strips the whitening flag from p.
func (p Params) ExtractOptions() ExtractOptions {
	return ExtractOptions{
		MsBefore:         p.MsBefore,
		MsAfter:          p.MsAfter,
		MaxSpikesPerUnit: p.MaxSpikesPerUnit,
		NJobs:            p.NJobs,
		TotalMemory:      p.TotalMemory,
	}
}

// Validate checks that the window and spike budget are usable.
func (p Params) Validate() error {
	if p.MsBefore < 0 || p.MsAfter < 0 {
		return fmt.Errorf("waveform window must be non-negative (ms_before=%v, ms_after=%v)", p.MsBefore, p.MsAfter)
	}
	if p.MsBefore+p.MsAfter == 0 {
		return fmt.Errorf("waveform window is empty")
	}
	if p.MaxSpikesPerUnit <= 0 {
		return fmt.Errorf("max_spikes_per_unit must be positive")
	}
	if p.NJobs <= 0 {
		return fmt.Errorf("n_jobs must be positive")
	}
	return nil
}

// NewParamSet encodes p as a named ledger parameter set.
func NewParamSet(name string, p Params) (ledger.ParamSet, error) {
	if err := p.Validate(); err != nil {
		return ledger.ParamSet{}, services.Wrap(services.ErrValidation, "waveforms", "param set", name, err)
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return ledger.ParamSet{}, err
	}
	return ledger.ParamSet{Kind: ledger.ParamWaveform, Name: name, Params: raw}, nil
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

// LoadParams resolves a named parameter set. Fields absent from the stored
// document keep their defaults.
func LoadParams(ctx context.Context, store *ledger.Store, name string) (Params, error) {
	set, err := store.RequireParamSet(ctx, ledger.ParamWaveform, name)
	if err != nil {
		return Params{}, err
	}
	params := DefaultParams()
	if err := json.Unmarshal(set.Params, &params); err != nil {
		return Params{}, services.Wrap(services.ErrValidation, "waveforms", "decode params", name, err)
	}
	if err := params.Validate(); err != nil {
		return Params{}, services.Wrap(services.ErrValidation, "waveforms", "params", name, err)
	}
	return params, nil
}
