package waveform

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"spikecurate/internal/analysisfile"
	"spikecurate/internal/config"
	"spikecurate/internal/fileutil"
	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
	"spikecurate/internal/stage"
)

// Handle describes extracted waveforms as reported by the Extractor.
type Handle struct {
	Path    string `json:"path"`
	UnitIDs []int  `json:"unit_ids"`
}

// Extractor extracts waveforms for every unit of view into destination.
type Extractor interface {
	ExtractWaveforms(ctx context.Context, recording *sorting.Recording, view *sorting.Sorting, destination string, opts ExtractOptions) (*Handle, error)
}

// Whitener writes a whitened copy of recording to destination.
type Whitener interface {
	Whiten(ctx context.Context, recording *sorting.Recording, destination string) (*sorting.Recording, error)
}

// Stage extracts and records waveform artifacts.
type Stage struct {
	cfg       *config.Config
	store     *ledger.Store
	files     analysisfile.Store
	extractor Extractor
	whitener  Whitener
	logger    *slog.Logger
}

// NewStage constructs the waveform stage.
func NewStage(cfg *config.Config, store *ledger.Store, files analysisfile.Store, extractor Extractor, whitener Whitener, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:       cfg,
		store:     store,
		files:     files,
		extractor: extractor,
		whitener:  whitener,
		logger:    logging.NewComponentLogger(logger, stage.NameWaveforms),
	}
}

// ArtifactPath returns the deterministic artifact directory for a key.
func ArtifactPath(waveformsDir, curationID, paramSetName string) string {
	return filepath.Join(waveformsDir, fmt.Sprintf("%s_%s_waveform", curationID, paramSetName))
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.NameWaveforms }

// SetLogger implements stage.LoggerAware.
func (s *Stage) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, stage.NameWaveforms)
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	switch {
	case s.store == nil:
		return stage.Unhealthy(stage.NameWaveforms, "ledger unavailable")
	case s.extractor == nil:
		return stage.Unhealthy(stage.NameWaveforms, "waveform extractor unavailable")
	case s.files == nil:
		return stage.Unhealthy(stage.NameWaveforms, "analysis file store unavailable")
	}
	return stage.Healthy(stage.NameWaveforms)
}

// Execute implements stage.Handler.
func (s *Stage) Execute(ctx context.Context, job *stage.Job) error {
	if err := job.RequireCuration(stage.NameWaveforms); err != nil {
		return err
	}
	if strings.TrimSpace(job.WaveformParams) == "" {
		job.WaveformParams = DefaultParamSetName
	}
	art, err := s.Extract(ctx, job.CurationID, job.WaveformParams)
	if err != nil {
		return err
	}
	job.Waveform = art
	return nil
}

// Extract regenerates the waveform artifact of curationID under the named
// parameter set. Anything already stored at the artifact path is removed.
func (s *Stage) Extract(ctx context.Context, curationID, paramSetName string) (*ledger.WaveformArtifact, error) {
	ctx = services.WithCurationID(ctx, curationID)
	logger := logging.WithContext(ctx, s.logger)
	if s.extractor == nil {
		return nil, services.Wrap(services.ErrExternalTool, stage.NameWaveforms, "extract", "no waveform extractor configured", nil)
	}

	params, err := LoadParams(ctx, s.store, paramSetName)
	if err != nil {
		return nil, err
	}
	cur, err := s.store.Get(ctx, curationID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameWaveforms, "extract",
			fmt.Sprintf("curation %q does not exist", curationID), nil)
	}
	sortingRec, err := s.store.GetSorting(ctx, cur.SortingRef)
	if err != nil {
		return nil, err
	}
	if sortingRec == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameWaveforms, "extract",
			fmt.Sprintf("sorting %q is not registered", cur.SortingRef), nil)
	}

	view, applied, err := s.store.CuratedView(ctx, curationID)
	if err != nil {
		return nil, err
	}
	recording, err := s.store.Recording(ctx, curationID)
	if err != nil {
		return nil, err
	}

	path := ArtifactPath(s.cfg.Paths.WaveformsDir, curationID, paramSetName)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, services.Wrap(services.ErrResource, stage.NameWaveforms, "extract", "create waveforms dir", err)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrResource, stage.NameWaveforms, "lock artifact", path, err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrResource, stage.NameWaveforms, "lock artifact",
			fmt.Sprintf("%s is being written by another process", path), nil)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release artifact lock", logging.Error(err))
		}
	}()

	if err := fileutil.ResetDir(path); err != nil {
		return nil, services.Wrap(services.ErrResource, stage.NameWaveforms, "reset artifact", path, err)
	}
	viewPath, err := s.store.Data().SaveSorting(ctx, view, filepath.Join(path, "sorting.json"))
	if err != nil {
		return nil, err
	}
	view.Path = viewPath

	if params.Whiten {
		if s.whitener == nil {
			return nil, services.Wrap(services.ErrExternalTool, stage.NameWaveforms, "whiten", "no whitener configured", nil)
		}
		recording, err = s.whitener.Whiten(ctx, recording, filepath.Join(path, "recording_whitened.json"))
		if err != nil {
			return nil, err
		}
		logger.Debug("recording whitened", logging.String("path", recording.Path))
	}

	logger.Info("extracting waveforms",
		logging.String(logging.FieldEventType, "waveform_extract_start"),
		logging.String("waveform_params", paramSetName),
		logging.String("path", path),
		logging.Int("units", len(view.Units)),
		logging.Int("applied_merges", len(applied)),
		logging.Bool("whiten", params.Whiten))
	started := time.Now()
	handle, err := s.extractor.ExtractWaveforms(ctx, recording, view, path, params.ExtractOptions())
	if err != nil {
		return nil, err
	}
	if handle == nil {
		handle = &Handle{Path: path, UnitIDs: view.UnitIDs()}
	}

	analysisName, err := s.files.Create(ctx, sortingRec.NWBFileName)
	if err != nil {
		return nil, err
	}
	objectID, err := s.files.AddObject(ctx, analysisName, analysisfile.KindWaveforms, map[string]any{
		"curation_id":     curationID,
		"waveform_params": paramSetName,
		"path":            path,
		"unit_ids":        handle.UnitIDs,
		"applied_merges":  applied,
	})
	if err != nil {
		return nil, err
	}
	if err := s.files.Add(ctx, sortingRec.NWBFileName, analysisName); err != nil {
		return nil, err
	}

	art := ledger.WaveformArtifact{
		CurationID:       curationID,
		WaveformParams:   paramSetName,
		Path:             path,
		AnalysisFileName: analysisName,
		ObjectID:         objectID,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.PutWaveformArtifact(ctx, art); err != nil {
		return nil, err
	}
	logger.Info("waveforms extracted",
		logging.String(logging.FieldEventType, "waveform_extract_complete"),
		logging.String("path", path),
		logging.String("analysis_file_name", analysisName),
		logging.Duration("elapsed", time.Since(started)))
	return &art, nil
}

// Load returns the stored artifact for a key, or a precondition error when
// waveforms have not been extracted.
func (s *Stage) Load(ctx context.Context, curationID, paramSetName string) (*ledger.WaveformArtifact, error) {
	art, err := s.store.GetWaveformArtifact(ctx, curationID, paramSetName)
	if err != nil {
		return nil, err
	}
	if art == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameWaveforms, "load",
			fmt.Sprintf("no waveforms for curation %s with params %q", curationID, paramSetName), nil)
	}
	return art, nil
}
