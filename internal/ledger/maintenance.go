package ledger

import (
	"context"
	"fmt"
	"strings"

	"spikecurate/internal/logging"
	"spikecurate/internal/services"
)

// DeleteSorting removes a sorting and, through cascading foreign keys, every
// curation, artifact row, and export derived from it. Files on disk are left
// for CleanOrphaned. It returns the number of curations removed.
func (s *Store) DeleteSorting(ctx context.Context, ref string) (int64, error) {
	ctx = ensureContext(ctx)
	ref = strings.TrimSpace(ref)
	rec, err := s.GetSorting(ctx, ref)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, services.Wrap(services.ErrValidation, "ledger", "delete sorting",
			fmt.Sprintf("sorting %q does not exist", ref), nil)
	}

	var curations int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM curations WHERE sorting_ref = ?`, ref).Scan(&curations); err != nil {
		return 0, fmt.Errorf("count curations: %w", err)
	}
	if _, err := s.execWithRetry(ctx, `DELETE FROM sortings WHERE sorting_ref = ?`, ref); err != nil {
		return 0, fmt.Errorf("delete sorting: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("sorting deleted",
		logging.String(logging.FieldEventType, "sorting_deleted"),
		logging.String("sorting_ref", ref),
		logging.Any("curations_removed", curations))
	return curations, nil
}

var countedTables = []string{
	"sortings",
	"curations",
	"waveform_artifacts",
	"metric_results",
	"auto_curations",
	"finalized_exports",
}

// Counts returns row counts of the main ledger tables.
func (s *Store) Counts(ctx context.Context) (map[string]int64, error) {
	ctx = ensureContext(ctx)
	out := make(map[string]int64, len(countedTables))
	for _, table := range countedTables {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// ActivePaths returns every artifact path still referenced by a ledger row.
func (s *Store) ActivePaths(ctx context.Context) (map[string]struct{}, error) {
	ctx = ensureContext(ctx)
	queries := []string{
		`SELECT recording_path FROM sortings`,
		`SELECT sorting_path FROM sortings`,
		`SELECT path FROM waveform_artifacts`,
		`SELECT path FROM metric_results`,
		`SELECT sorting_path FROM auto_curations`,
		`SELECT path FROM analysis_files`,
	}
	out := make(map[string]struct{})
	for _, query := range queries {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("active paths: %w", err)
		}
		for rows.Next() {
			var path string
			if err := rows.Scan(&path); err != nil {
				rows.Close()
				return nil, err
			}
			if path != "" {
				out[path] = struct{}{}
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}
