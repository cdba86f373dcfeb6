package ledger

import (
	"encoding/json"
	"time"

	"spikecurate/internal/curation"
)

// Curation is one immutable node of a curation lineage.
type Curation struct {
	ID          string               `json:"curation_id"`
	ParentID    string               `json:"parent_id"`
	SortingRef  string               `json:"sorting_ref"`
	Labels      curation.Labels      `json:"labels"`
	MergeGroups curation.MergeGroups `json:"merge_groups"`
	Metrics     curation.Metrics     `json:"metrics"`
	Description string               `json:"description"`
	CreatedAt   time.Time            `json:"created_at"`
}

// IsRoot reports whether c starts its lineage.
func (c *Curation) IsRoot() bool {
	return c != nil && c.ParentID == curation.RootParent
}

// CurationInput holds the caller-supplied fields of a new curation. Nil
// collections are stored as empty ones; a blank ParentID means the root.
type CurationInput struct {
	SortingRef  string
	ParentID    string
	Labels      curation.Labels
	MergeGroups curation.MergeGroups
	Metrics     curation.Metrics
	Description string
}

// SortingRecord describes an upstream sorting that lineages hang off.
type SortingRecord struct {
	Ref                  string     `json:"sorting_ref"`
	NWBFileName          string     `json:"nwb_file_name"`
	RecordingPath        string     `json:"recording_path"`
	SortingPath          string     `json:"sorting_path"`
	SortIntervalListName string     `json:"sort_interval_list_name,omitempty"`
	SortInterval         [2]float64 `json:"sort_interval"`
	TeamName             string     `json:"team_name,omitempty"`
	TimeOfSort           time.Time  `json:"time_of_sort"`
}

// ParamKind names a family of parameter sets.
type ParamKind string

const (
	ParamWaveform     ParamKind = "waveform"
	ParamMetric       ParamKind = "metric"
	ParamAutoCuration ParamKind = "auto_curation"
)

// ParamSet is a named parameter document. Stage packages own the schema of
// Params.
type ParamSet struct {
	Kind      ParamKind       `json:"kind"`
	Name      string          `json:"name"`
	Params    json.RawMessage `json:"params"`
	CreatedAt time.Time       `json:"created_at"`
}

// WaveformArtifact locates the waveforms extracted for one curation.
type WaveformArtifact struct {
	CurationID       string    `json:"curation_id"`
	WaveformParams   string    `json:"waveform_params"`
	Path             string    `json:"path"`
	AnalysisFileName string    `json:"analysis_file_name"`
	ObjectID         string    `json:"object_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// MetricKey identifies a quality metric computation.
type MetricKey struct {
	CurationID     string `json:"curation_id"`
	WaveformParams string `json:"waveform_params"`
	MetricParams   string `json:"metric_params"`
}

// MetricResult locates the metric JSON computed for a waveform artifact.
type MetricResult struct {
	MetricKey
	Path             string    `json:"path"`
	AnalysisFileName string    `json:"analysis_file_name"`
	ObjectID         string    `json:"object_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// AutoCurationKey identifies one automatic-curation round.
type AutoCurationKey struct {
	MetricKey
	AutoParams string `json:"auto_params"`
}

// AutoCuration records the curation produced by an automatic round.
type AutoCuration struct {
	AutoCurationKey
	ResultCurationID string    `json:"result_curation_id"`
	SortingPath      string    `json:"sorting_path"`
	Merged           bool      `json:"merged"`
	CreatedAt        time.Time `json:"created_at"`
}

// FinalizedExport is the header of an immutable unit export.
type FinalizedExport struct {
	ExportID         int64        `json:"export_id"`
	CurationID       string       `json:"curation_id"`
	AnalysisFileName string       `json:"analysis_file_name"`
	UnitsObjectID    string       `json:"units_object_id"`
	CreatedAt        time.Time    `json:"created_at"`
	Units            []ExportUnit `json:"units,omitempty"`
}

// ExportUnit is one accepted unit with its flattened metrics.
type ExportUnit struct {
	UnitID         int     `json:"unit_id"`
	Label          string  `json:"label"`
	NoiseOverlap   float64 `json:"noise_overlap"`
	IsolationScore float64 `json:"isolation_score"`
	ISIViolation   float64 `json:"isi_violation"`
	SNR            float64 `json:"snr"`
	FiringRate     float64 `json:"firing_rate"`
	NumSpikes      int     `json:"num_spikes"`
}

// AnalysisFile registers a derived analysis file against its source NWB file.
type AnalysisFile struct {
	Name        string    `json:"analysis_file_name"`
	NWBFileName string    `json:"nwb_file_name"`
	Path        string    `json:"path"`
	CreatedAt   time.Time `json:"created_at"`
}

// Interval is a [start, end] time range in seconds.
type Interval = [2]float64
