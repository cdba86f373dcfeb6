package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// ledgerSchemaVersion is the version schema.sql creates. Older ledgers are
// brought forward through ledgerMigrations; newer ones are refused.
const ledgerSchemaVersion = 2

// ErrSchemaMismatch reports a ledger file this build cannot use.
var ErrSchemaMismatch = errors.New("ledger schema mismatch")

// ledgerMigrations[v] upgrades a ledger from version v to v+1.
var ledgerMigrations = map[int]string{
	1: `
CREATE INDEX IF NOT EXISTS idx_auto_curations_result ON auto_curations(result_curation_id);
CREATE INDEX IF NOT EXISTS idx_metric_results_curation ON metric_results(curation_id);
`,
}

func (s *Store) initSchema(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		version, err := readLedgerVersion(ctx, tx)
		if err != nil {
			return s.schemaError(err)
		}
		switch {
		case version == 0:
			if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
				return fmt.Errorf("create ledger schema: %w", err)
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", ledgerSchemaVersion)
			if err != nil {
				return fmt.Errorf("record ledger version: %w", err)
			}
			return nil
		case version > ledgerSchemaVersion:
			return s.schemaError(fmt.Errorf("ledger version %d is newer than supported version %d", version, ledgerSchemaVersion))
		}
		for v := version; v < ledgerSchemaVersion; v++ {
			step, ok := ledgerMigrations[v]
			if !ok {
				return s.schemaError(fmt.Errorf("no migration from ledger version %d", v))
			}
			if _, err := tx.ExecContext(ctx, step); err != nil {
				return fmt.Errorf("migrate ledger %d->%d: %w", v, v+1, err)
			}
		}
		if version < ledgerSchemaVersion {
			if _, err := tx.ExecContext(ctx, "UPDATE schema_version SET version = ?", ledgerSchemaVersion); err != nil {
				return fmt.Errorf("record ledger version: %w", err)
			}
			s.logger.Info("ledger migrated", "path", s.path, "from_version", version, "to_version", ledgerSchemaVersion)
		}
		return nil
	})
}

// readLedgerVersion returns 0 for an empty database. A database holding
// tables but no version row is not a ledger.
func readLedgerVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var tables int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'",
	).Scan(&tables); err != nil {
		return 0, fmt.Errorf("inspect tables: %w", err)
	}
	if tables == 0 {
		return 0, nil
	}
	var version int
	err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil || version < 1 {
		return 0, fmt.Errorf("database has %d tables but no ledger version", tables)
	}
	return version, nil
}

func (s *Store) schemaError(err error) error {
	return fmt.Errorf("%w: %s: %v (move the file aside or point paths.ledger_path elsewhere)", ErrSchemaMismatch, s.path, err)
}
