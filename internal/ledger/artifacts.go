package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spikecurate/internal/services"
)

// PutWaveformArtifact inserts or replaces the artifact row for its key.
func (s *Store) PutWaveformArtifact(ctx context.Context, art WaveformArtifact) error {
	if art.CurationID == "" || art.WaveformParams == "" {
		return services.Wrap(services.ErrValidation, "ledger", "put waveform artifact", "curation id and params are required", nil)
	}
	if art.CreatedAt.IsZero() {
		art.CreatedAt = s.now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO waveform_artifacts (curation_id, waveform_params, path, analysis_file_name, object_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(curation_id, waveform_params) DO UPDATE SET
             path = excluded.path,
             analysis_file_name = excluded.analysis_file_name,
             object_id = excluded.object_id,
             created_at = excluded.created_at`,
		art.CurationID, art.WaveformParams, art.Path, art.AnalysisFileName, art.ObjectID, formatTime(art.CreatedAt))
	if err != nil {
		return fmt.Errorf("put waveform artifact: %w", err)
	}
	return nil
}

// GetWaveformArtifact fetches an artifact row. It returns nil, nil when absent.
func (s *Store) GetWaveformArtifact(ctx context.Context, curationID, waveformParams string) (*WaveformArtifact, error) {
	var (
		art     WaveformArtifact
		created string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT curation_id, waveform_params, path, analysis_file_name, object_id, created_at
         FROM waveform_artifacts WHERE curation_id = ? AND waveform_params = ?`,
		curationID, waveformParams,
	).Scan(&art.CurationID, &art.WaveformParams, &art.Path, &art.AnalysisFileName, &art.ObjectID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get waveform artifact: %w", err)
	}
	art.CreatedAt = parseTimeOrZero(created)
	return &art, nil
}

// PutMetricResult inserts or replaces the metric row for its key.
func (s *Store) PutMetricResult(ctx context.Context, res MetricResult) error {
	if res.CurationID == "" || res.WaveformParams == "" || res.MetricParams == "" {
		return services.Wrap(services.ErrValidation, "ledger", "put metric result", "incomplete key", nil)
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = s.now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO metric_results (curation_id, waveform_params, metric_params, path, analysis_file_name, object_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(curation_id, waveform_params, metric_params) DO UPDATE SET
             path = excluded.path,
             analysis_file_name = excluded.analysis_file_name,
             object_id = excluded.object_id,
             created_at = excluded.created_at`,
		res.CurationID, res.WaveformParams, res.MetricParams, res.Path, res.AnalysisFileName, res.ObjectID, formatTime(res.CreatedAt))
	if err != nil {
		return fmt.Errorf("put metric result: %w", err)
	}
	return nil
}

// GetMetricResult fetches a metric row. It returns nil, nil when absent.
func (s *Store) GetMetricResult(ctx context.Context, key MetricKey) (*MetricResult, error) {
	var (
		res     MetricResult
		created string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT curation_id, waveform_params, metric_params, path, analysis_file_name, object_id, created_at
         FROM metric_results WHERE curation_id = ? AND waveform_params = ? AND metric_params = ?`,
		key.CurationID, key.WaveformParams, key.MetricParams,
	).Scan(&res.CurationID, &res.WaveformParams, &res.MetricParams, &res.Path, &res.AnalysisFileName, &res.ObjectID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get metric result: %w", err)
	}
	res.CreatedAt = parseTimeOrZero(created)
	return &res, nil
}

// PutAutoCuration records the provenance of an automatic curation round.
func (s *Store) PutAutoCuration(ctx context.Context, rec AutoCuration) error {
	if rec.ResultCurationID == "" {
		return services.Wrap(services.ErrValidation, "ledger", "put auto curation", "result curation id is required", nil)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO auto_curations (curation_id, waveform_params, metric_params, auto_params, result_curation_id, sorting_path, merged, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(curation_id, waveform_params, metric_params, auto_params) DO UPDATE SET
             result_curation_id = excluded.result_curation_id,
             sorting_path = excluded.sorting_path,
             merged = excluded.merged,
             created_at = excluded.created_at`,
		rec.CurationID, rec.WaveformParams, rec.MetricParams, rec.AutoParams,
		rec.ResultCurationID, rec.SortingPath, boolToInt(rec.Merged), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("put auto curation: %w", err)
	}
	return nil
}

// GetAutoCuration fetches an auto-curation row. It returns nil, nil when absent.
func (s *Store) GetAutoCuration(ctx context.Context, key AutoCurationKey) (*AutoCuration, error) {
	var (
		rec     AutoCuration
		merged  int
		created string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT curation_id, waveform_params, metric_params, auto_params, result_curation_id, sorting_path, merged, created_at
         FROM auto_curations WHERE curation_id = ? AND waveform_params = ? AND metric_params = ? AND auto_params = ?`,
		key.CurationID, key.WaveformParams, key.MetricParams, key.AutoParams,
	).Scan(&rec.CurationID, &rec.WaveformParams, &rec.MetricParams, &rec.AutoParams,
		&rec.ResultCurationID, &rec.SortingPath, &merged, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get auto curation: %w", err)
	}
	rec.Merged = merged != 0
	rec.CreatedAt = parseTimeOrZero(created)
	return &rec, nil
}
