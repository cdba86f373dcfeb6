package qualitymetrics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"spikecurate/internal/analysisfile"
	"spikecurate/internal/config"
	"spikecurate/internal/curation"
	"spikecurate/internal/fileutil"
	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
	"spikecurate/internal/stage"
	"spikecurate/internal/waveform"
)

// WaveformSet identifies the extracted waveforms metrics are computed from.
type WaveformSet struct {
	Path              string  `json:"path"`
	UnitIDs           []int   `json:"unit_ids"`
	SamplingFrequency float64 `json:"sampling_frequency"`
	NumFrames         int     `json:"num_frames"`
}

// Library computes individual metrics. Batch methods return values for every
// unit; per-unit methods are called once per unit.
type Library interface {
	SNR(ctx context.Context, wf WaveformSet, peakSign string, opts SNROptions) (map[int]float64, error)
	ISIViolationCounts(ctx context.Context, wf WaveformSet, params ISIViolation) (map[int]int, error)
	NumSpikes(ctx context.Context, wf WaveformSet) (map[int]int, error)
	FiringRate(ctx context.Context, wf WaveformSet) (map[int]float64, error)
	NNIsolation(ctx context.Context, wf WaveformSet, unit int, params NNParams) (float64, error)
	NNNoiseOverlap(ctx context.Context, wf WaveformSet, unit int, params NNParams) (float64, error)
}

// Result couples a stored metric row with its values.
type Result struct {
	Row     ledger.MetricResult
	Metrics curation.Metrics
}

// Stage computes and records quality metrics.
type Stage struct {
	cfg     *config.Config
	store   *ledger.Store
	files   analysisfile.Store
	library Library
	logger  *slog.Logger
}

// NewStage constructs the quality metric stage.
func NewStage(cfg *config.Config, store *ledger.Store, files analysisfile.Store, library Library, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:     cfg,
		store:   store,
		files:   files,
		library: library,
		logger:  logging.NewComponentLogger(logger, stage.NameMetrics),
	}
}

// ResultPath returns the metrics JSON location for key.
func ResultPath(waveformsDir string, key ledger.MetricKey) string {
	base := waveform.ArtifactPath(waveformsDir, key.CurationID, key.WaveformParams)
	return filepath.Clean(fmt.Sprintf("%s_%s_qm.json", base, key.MetricParams))
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.NameMetrics }

// SetLogger implements stage.LoggerAware.
func (s *Stage) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, stage.NameMetrics)
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	switch {
	case s.store == nil:
		return stage.Unhealthy(stage.NameMetrics, "ledger unavailable")
	case s.library == nil:
		return stage.Unhealthy(stage.NameMetrics, "metric library unavailable")
	case s.files == nil:
		return stage.Unhealthy(stage.NameMetrics, "analysis file store unavailable")
	}
	return stage.Healthy(stage.NameMetrics)
}

// Execute implements stage.Handler.
func (s *Stage) Execute(ctx context.Context, job *stage.Job) error {
	if err := job.RequireCuration(stage.NameMetrics); err != nil {
		return err
	}
	if strings.TrimSpace(job.WaveformParams) == "" {
		job.WaveformParams = waveform.DefaultParamSetName
	}
	if strings.TrimSpace(job.MetricParams) == "" {
		job.MetricParams = DefaultParamSetName
	}
	res, err := s.Compute(ctx, job.MetricKey())
	if err != nil {
		return err
	}
	job.Metrics = &res.Row
	return nil
}

// Compute evaluates every metric of the key's parameter set against the
// key's waveform artifact and stores the result, overwriting earlier runs.
func (s *Stage) Compute(ctx context.Context, key ledger.MetricKey) (*Result, error) {
	ctx = services.WithCurationID(ctx, key.CurationID)
	logger := logging.WithContext(ctx, s.logger)

	requests, err := LoadRequests(ctx, s.store, key.MetricParams)
	if err != nil {
		return nil, err
	}
	if s.library == nil {
		return nil, services.Wrap(services.ErrExternalTool, stage.NameMetrics, "compute", "no metric library configured", nil)
	}
	art, err := s.store.GetWaveformArtifact(ctx, key.CurationID, key.WaveformParams)
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameMetrics, "compute",
			fmt.Sprintf("waveforms for %s with params %q have not been extracted", key.CurationID, key.WaveformParams), nil)
	}
	cur, err := s.store.MustGet(ctx, key.CurationID)
	if err != nil {
		return nil, err
	}
	sortingRec, err := s.store.GetSorting(ctx, cur.SortingRef)
	if err != nil {
		return nil, err
	}
	if sortingRec == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameMetrics, "compute",
			fmt.Sprintf("sorting %q is not registered", cur.SortingRef), nil)
	}
	view, _, err := s.store.CuratedView(ctx, key.CurationID)
	if err != nil {
		return nil, err
	}
	recording, err := s.store.Recording(ctx, key.CurationID)
	if err != nil {
		return nil, err
	}
	wf := WaveformSet{
		Path:              art.Path,
		UnitIDs:           view.UnitIDs(),
		SamplingFrequency: recording.SamplingFrequency,
		NumFrames:         recording.NumFrames(),
	}

	started := time.Now()
	metrics := make(curation.Metrics, len(requests))
	for _, req := range requests {
		values, err := s.compute(ctx, wf, req.Metric)
		if err != nil {
			return nil, err
		}
		metrics[req.Name] = restrict(values, wf.UnitIDs)
		logger.Debug("metric computed",
			logging.String("metric", req.Name),
			logging.Int("units", len(metrics[req.Name])))
	}

	path := ResultPath(s.cfg.Paths.WaveformsDir, key)
	if err := fileutil.WriteJSON(path, metrics); err != nil {
		return nil, services.Wrap(services.ErrResource, stage.NameMetrics, "write metrics", path, err)
	}
	analysisName, err := s.files.Create(ctx, sortingRec.NWBFileName)
	if err != nil {
		return nil, err
	}
	objectID, err := s.files.AddObject(ctx, analysisName, analysisfile.KindQualityMetrics, metrics)
	if err != nil {
		return nil, err
	}
	if err := s.files.Add(ctx, sortingRec.NWBFileName, analysisName); err != nil {
		return nil, err
	}

	row := ledger.MetricResult{
		MetricKey:        key,
		Path:             path,
		AnalysisFileName: analysisName,
		ObjectID:         objectID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.PutMetricResult(ctx, row); err != nil {
		return nil, err
	}
	logger.Info("quality metrics computed",
		logging.String(logging.FieldEventType, "metrics_complete"),
		logging.String("metric_params", key.MetricParams),
		logging.Int("metrics", len(metrics)),
		logging.Int("units", len(wf.UnitIDs)),
		logging.String("path", path),
		logging.Duration("elapsed", time.Since(started)))
	return &Result{Row: row, Metrics: metrics}, nil
}

func (s *Stage) compute(ctx context.Context, wf WaveformSet, m Metric) (map[int]float64, error) {
	switch p := m.(type) {
	case SNR:
		return s.library.SNR(ctx, wf, p.PeakSign, p.Options())
	case ISIViolation:
		counts, err := s.library.ISIViolationCounts(ctx, wf, p)
		if err != nil {
			return nil, err
		}
		spikes, err := s.library.NumSpikes(ctx, wf)
		if err != nil {
			return nil, err
		}
		out := make(map[int]float64, len(counts))
		for unit, count := range counts {
			total := spikes[unit]
			if total == 0 {
				out[unit] = math.NaN()
				continue
			}
			out[unit] = float64(count) / float64(total)
		}
		return out, nil
	case NNIsolation:
		return s.perUnit(ctx, wf, func(unit int) (float64, error) {
			return s.library.NNIsolation(ctx, wf, unit, p.NNParams)
		})
	case NNNoiseOverlap:
		return s.perUnit(ctx, wf, func(unit int) (float64, error) {
			return s.library.NNNoiseOverlap(ctx, wf, unit, p.NNParams)
		})
	case NumSpikes:
		counts, err := s.library.NumSpikes(ctx, wf)
		if err != nil {
			return nil, err
		}
		out := make(map[int]float64, len(counts))
		for unit, count := range counts {
			out[unit] = float64(count)
		}
		return out, nil
	case FiringRate:
		return s.library.FiringRate(ctx, wf)
	}
	return nil, services.Wrap(services.ErrUnsupportedMetric, stage.NameMetrics, "compute",
		fmt.Sprintf("no computation for %T", m), nil)
}

func (s *Stage) perUnit(ctx context.Context, wf WaveformSet, fn func(unit int) (float64, error)) (map[int]float64, error) {
	out := make(map[int]float64, len(wf.UnitIDs))
	for _, unit := range wf.UnitIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := fn(unit)
		if err != nil {
			return nil, err
		}
		out[unit] = value
	}
	return out, nil
}

func restrict(values map[int]float64, units []int) map[int]float64 {
	out := make(map[int]float64, len(units))
	for _, unit := range units {
		if v, ok := values[unit]; ok {
			out[unit] = v
		}
	}
	return out
}

// Load reads the stored metrics for key.
func (s *Stage) Load(ctx context.Context, key ledger.MetricKey) (curation.Metrics, error) {
	row, err := s.store.GetMetricResult(ctx, key)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameMetrics, "load",
			fmt.Sprintf("no metrics for %s/%s/%s", key.CurationID, key.WaveformParams, key.MetricParams), nil)
	}
	return ReadResult(row.Path)
}

// ReadResult decodes a metrics JSON document.
func ReadResult(path string) (curation.Metrics, error) {
	var metrics curation.Metrics
	if err := fileutil.ReadJSON(path, &metrics); err != nil {
		return nil, services.Wrap(services.ErrResource, stage.NameMetrics, "read metrics", path, err)
	}
	if metrics == nil {
		metrics = curation.Metrics{}
	}
	return metrics, nil
}
