package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spikecurate/internal/logging"
	"spikecurate/internal/services"
)

// InsertExport writes an export header and its unit rows atomically and
// returns the export with its assigned id. Existing exports are never
// modified.
func (s *Store) InsertExport(ctx context.Context, export FinalizedExport, units []ExportUnit) (*FinalizedExport, error) {
	if export.CurationID == "" {
		return nil, services.Wrap(services.ErrValidation, "ledger", "insert export", "curation id is required", nil)
	}
	if export.CreatedAt.IsZero() {
		export.CreatedAt = s.now()
	}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO finalized_exports (curation_id, analysis_file_name, units_object_id, created_at) VALUES (?, ?, ?, ?)`,
			export.CurationID, export.AnalysisFileName, export.UnitsObjectID, formatTime(export.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert export: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO finalized_units (export_id, unit_id, label, noise_overlap, isolation_score, isi_violation, snr, firing_rate, num_spikes)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare unit insert: %w", err)
		}
		defer stmt.Close()
		for _, u := range units {
			if _, err := stmt.ExecContext(ctx, id, u.UnitID, u.Label, u.NoiseOverlap, u.IsolationScore,
				u.ISIViolation, u.SNR, u.FiringRate, u.NumSpikes); err != nil {
				return fmt.Errorf("insert unit %d: %w", u.UnitID, err)
			}
		}
		export.ExportID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	export.Units = append([]ExportUnit(nil), units...)
	logging.WithContext(ctx, s.logger).Info("export recorded",
		logging.String(logging.FieldEventType, "export_recorded"),
		logging.String(logging.FieldCurationID, export.CurationID),
		logging.Any("export_id", export.ExportID),
		logging.Int("units", len(units)))
	return &export, nil
}

// GetExport fetches an export with its units. It returns nil, nil when absent.
func (s *Store) GetExport(ctx context.Context, exportID int64) (*FinalizedExport, error) {
	ctx = ensureContext(ctx)
	var (
		export  FinalizedExport
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT export_id, curation_id, analysis_file_name, units_object_id, created_at FROM finalized_exports WHERE export_id = ?`,
		exportID,
	).Scan(&export.ExportID, &export.CurationID, &export.AnalysisFileName, &export.UnitsObjectID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	export.CreatedAt = parseTimeOrZero(created)

	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id, label, noise_overlap, isolation_score, isi_violation, snr, firing_rate, num_spikes
         FROM finalized_units WHERE export_id = ? ORDER BY unit_id`, exportID)
	if err != nil {
		return nil, fmt.Errorf("get export units: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u ExportUnit
		if err := rows.Scan(&u.UnitID, &u.Label, &u.NoiseOverlap, &u.IsolationScore,
			&u.ISIViolation, &u.SNR, &u.FiringRate, &u.NumSpikes); err != nil {
			return nil, fmt.Errorf("scan export unit: %w", err)
		}
		export.Units = append(export.Units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &export, nil
}

// ListExports returns export ids for curationID, newest first.
func (s *Store) ListExports(ctx context.Context, curationID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT export_id FROM finalized_exports WHERE curation_id = ? ORDER BY export_id DESC`, curationID)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
