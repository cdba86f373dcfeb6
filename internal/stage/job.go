package stage

import (
	"strings"

	"spikecurate/internal/ledger"
	"spikecurate/internal/services"
)

// Stage names used in logs, telemetry and per-stage log level overrides.
const (
	NameWaveforms    = "waveforms"
	NameMetrics      = "metrics"
	NameAutoCuration = "autocuration"
	NameFinalize     = "finalize"
)

// Job carries one curation round through the stages. Each handler reads
// the fields it depends on and fills in its own result.
type Job struct {
	CurationID     string `json:"curation_id"`
	WaveformParams string `json:"waveform_params,omitempty"`
	MetricParams   string `json:"metric_params,omitempty"`
	AutoParams     string `json:"auto_params,omitempty"`

	Waveform     *ledger.WaveformArtifact `json:"waveform,omitempty"`
	Metrics      *ledger.MetricResult     `json:"metrics,omitempty"`
	AutoCuration *ledger.AutoCuration     `json:"auto_curation,omitempty"`
	Export       *ledger.FinalizedExport  `json:"export,omitempty"`
}

// RequireCuration returns a validation error when the job has no curation id.
func (j *Job) RequireCuration(stageName string) error {
	if j == nil || strings.TrimSpace(j.CurationID) == "" {
		return services.Wrap(services.ErrValidation, stageName, "job", "curation id is required", nil)
	}
	return nil
}

// MetricKey returns the metric key addressed by the job.
func (j *Job) MetricKey() ledger.MetricKey {
	return ledger.MetricKey{
		CurationID:     j.CurationID,
		WaveformParams: j.WaveformParams,
		MetricParams:   j.MetricParams,
	}
}

// AutoCurationKey returns the auto-curation key addressed by the job.
func (j *Job) AutoCurationKey() ledger.AutoCurationKey {
	return ledger.AutoCurationKey{MetricKey: j.MetricKey(), AutoParams: j.AutoParams}
}
