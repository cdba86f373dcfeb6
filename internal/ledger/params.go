package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"spikecurate/internal/services"
)

// InsertParamSet stores set unless one with the same kind and name exists.
// It reports whether a row was written.
func (s *Store) InsertParamSet(ctx context.Context, set ParamSet) (bool, error) {
	set.Name = strings.TrimSpace(set.Name)
	if set.Name == "" {
		return false, services.Wrap(services.ErrValidation, "ledger", "insert param set", "name is required", nil)
	}
	switch set.Kind {
	case ParamWaveform, ParamMetric, ParamAutoCuration:
	default:
		return false, services.Wrap(services.ErrValidation, "ledger", "insert param set",
			fmt.Sprintf("unknown parameter kind %q", set.Kind), nil)
	}
	if len(set.Params) == 0 {
		set.Params = json.RawMessage("{}")
	}
	if !json.Valid(set.Params) {
		return false, services.Wrap(services.ErrValidation, "ledger", "insert param set",
			fmt.Sprintf("%s params %q are not valid JSON", set.Kind, set.Name), nil)
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = s.now()
	}
	res, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO param_sets (kind, name, params_json, created_at) VALUES (?, ?, ?, ?)`,
		string(set.Kind), set.Name, string(set.Params), formatTime(set.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert param set: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert param set: %w", err)
	}
	return n > 0, nil
}

// GetParamSet fetches a parameter set. It returns nil, nil when absent.
func (s *Store) GetParamSet(ctx context.Context, kind ParamKind, name string) (*ParamSet, error) {
	var (
		set     ParamSet
		raw     string
		created string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT kind, name, params_json, created_at FROM param_sets WHERE kind = ? AND name = ?`,
		string(kind), name,
	).Scan(&set.Kind, &set.Name, &raw, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get param set: %w", err)
	}
	set.Params = json.RawMessage(raw)
	set.CreatedAt = parseTimeOrZero(created)
	return &set, nil
}

// RequireParamSet fetches a parameter set and reports a validation error
// when it is missing.
func (s *Store) RequireParamSet(ctx context.Context, kind ParamKind, name string) (*ParamSet, error) {
	set, err := s.GetParamSet(ctx, kind, name)
	if err != nil {
		return nil, err
	}
	if set == nil {
		return nil, services.Wrap(services.ErrValidation, "ledger", "param set",
			fmt.Sprintf("%s parameter set %q does not exist", kind, name), nil)
	}
	return set, nil
}

// ListParamSets returns parameter sets of kind, or of every kind when kind
// is empty, ordered by kind and name.
func (s *Store) ListParamSets(ctx context.Context, kind ParamKind) ([]*ParamSet, error) {
	query := `SELECT kind, name, params_json, created_at FROM param_sets`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind, name`
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list param sets: %w", err)
	}
	defer rows.Close()
	var out []*ParamSet
	for rows.Next() {
		var (
			set     ParamSet
			raw     string
			created string
		)
		if err := rows.Scan(&set.Kind, &set.Name, &raw, &created); err != nil {
			return nil, err
		}
		set.Params = json.RawMessage(raw)
		set.CreatedAt = parseTimeOrZero(created)
		out = append(out, &set)
	}
	return out, rows.Err()
}
