package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"spikecurate/internal/logging"
	"spikecurate/internal/services"
)

const sortingColumns = "sorting_ref, nwb_file_name, recording_path, sorting_path, sort_interval_list_name, sort_interval_start, sort_interval_end, team_name, time_of_sort"

func scanSorting(scanner rowScanner) (*SortingRecord, error) {
	var (
		rec          SortingRecord
		intervalName sql.NullString
		teamName     sql.NullString
		timeRaw      string
	)
	if err := scanner.Scan(
		&rec.Ref,
		&rec.NWBFileName,
		&rec.RecordingPath,
		&rec.SortingPath,
		&intervalName,
		&rec.SortInterval[0],
		&rec.SortInterval[1],
		&teamName,
		&timeRaw,
	); err != nil {
		return nil, err
	}
	rec.SortIntervalListName = intervalName.String
	rec.TeamName = teamName.String
	rec.TimeOfSort = parseTimeOrZero(timeRaw)
	return &rec, nil
}

// RegisterSorting records an upstream sorting so curations can reference it.
func (s *Store) RegisterSorting(ctx context.Context, rec SortingRecord) error {
	rec.Ref = strings.TrimSpace(rec.Ref)
	if rec.Ref == "" {
		return services.Wrap(services.ErrValidation, "ledger", "register sorting", "sorting reference is required", nil)
	}
	if strings.TrimSpace(rec.SortingPath) == "" || strings.TrimSpace(rec.RecordingPath) == "" {
		return services.Wrap(services.ErrValidation, "ledger", "register sorting", "recording and sorting paths are required", nil)
	}
	existing, err := s.GetSorting(ctx, rec.Ref)
	if err != nil {
		return err
	}
	if existing != nil {
		return services.Wrap(services.ErrValidation, "ledger", "register sorting",
			fmt.Sprintf("sorting %q already registered", rec.Ref), nil)
	}
	if rec.TimeOfSort.IsZero() {
		rec.TimeOfSort = s.now()
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO sortings (`+sortingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Ref,
		rec.NWBFileName,
		rec.RecordingPath,
		rec.SortingPath,
		nullableString(rec.SortIntervalListName),
		rec.SortInterval[0],
		rec.SortInterval[1],
		nullableString(rec.TeamName),
		formatTime(rec.TimeOfSort),
	)
	if err != nil {
		return fmt.Errorf("insert sorting: %w", err)
	}
	logging.WithContext(ctx, s.logger).Info("sorting registered",
		logging.String(logging.FieldEventType, "sorting_registered"),
		logging.String("sorting_ref", rec.Ref),
		logging.String("sorting_path", rec.SortingPath))
	return nil
}

// GetSorting fetches a sorting by reference. It returns nil, nil when absent.
func (s *Store) GetSorting(ctx context.Context, ref string) (*SortingRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+sortingColumns+` FROM sortings WHERE sorting_ref = ?`, ref)
	rec, err := scanSorting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sorting: %w", err)
	}
	return rec, nil
}

// ListSortings returns all registered sortings ordered by reference.
func (s *Store) ListSortings(ctx context.Context) ([]*SortingRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+sortingColumns+` FROM sortings ORDER BY sorting_ref`)
	if err != nil {
		return nil, fmt.Errorf("list sortings: %w", err)
	}
	defer rows.Close()
	var out []*SortingRecord
	for rows.Next() {
		rec, err := scanSorting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sorting: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PutIntervalList stores or replaces a named list of valid time ranges.
func (s *Store) PutIntervalList(ctx context.Context, name string, validTimes []Interval) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return services.Wrap(services.ErrValidation, "ledger", "put interval list", "name is required", nil)
	}
	for i, iv := range validTimes {
		if iv[1] < iv[0] {
			return services.Wrap(services.ErrValidation, "ledger", "put interval list",
				fmt.Sprintf("interval %d ends before it starts", i), nil)
		}
	}
	if validTimes == nil {
		validTimes = []Interval{}
	}
	encoded, err := encodeJSON("valid_times_json", validTimes)
	if err != nil {
		return err
	}
	_, err = s.execWithRetry(ctx,
		`INSERT INTO interval_lists (name, valid_times_json) VALUES (?, ?)
         ON CONFLICT(name) DO UPDATE SET valid_times_json = excluded.valid_times_json`,
		name, encoded)
	if err != nil {
		return fmt.Errorf("put interval list: %w", err)
	}
	return nil
}

// ValidTimes returns the ranges of the named interval list.
func (s *Store) ValidTimes(ctx context.Context, name string) ([]Interval, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ensureContext(ctx), `SELECT valid_times_json FROM interval_lists WHERE name = ?`, name).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrValidation, "ledger", "valid times",
			fmt.Sprintf("interval list %q does not exist", name), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get interval list: %w", err)
	}
	var out []Interval
	if err := decodeJSON("valid_times_json", raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterAnalysisFile records a derived analysis file. Re-registering the
// same name updates its path.
func (s *Store) RegisterAnalysisFile(ctx context.Context, file AnalysisFile) error {
	if strings.TrimSpace(file.Name) == "" {
		return services.Wrap(services.ErrValidation, "ledger", "register analysis file", "name is required", nil)
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = s.now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO analysis_files (analysis_file_name, nwb_file_name, path, created_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(analysis_file_name) DO UPDATE SET path = excluded.path`,
		file.Name, file.NWBFileName, file.Path, formatTime(file.CreatedAt))
	if err != nil {
		return fmt.Errorf("register analysis file: %w", err)
	}
	return nil
}

// GetAnalysisFile fetches an analysis file. It returns nil, nil when absent.
func (s *Store) GetAnalysisFile(ctx context.Context, name string) (*AnalysisFile, error) {
	var (
		file    AnalysisFile
		created string
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT analysis_file_name, nwb_file_name, path, created_at FROM analysis_files WHERE analysis_file_name = ?`, name,
	).Scan(&file.Name, &file.NWBFileName, &file.Path, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis file: %w", err)
	}
	file.CreatedAt = parseTimeOrZero(created)
	return &file, nil
}

// AddTeamMember adds member to team. Adding an existing member is a no-op.
func (s *Store) AddTeamMember(ctx context.Context, team, member string) error {
	team, member = strings.TrimSpace(team), strings.TrimSpace(member)
	if team == "" || member == "" {
		return services.Wrap(services.ErrValidation, "ledger", "add team member", "team and member are required", nil)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT OR IGNORE INTO team_members (team_name, member) VALUES (?, ?)`, team, member)
	if err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	return nil
}

// MembersOf returns the members of team in ascending order.
func (s *Store) MembersOf(ctx context.Context, team string) ([]string, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT member FROM team_members WHERE team_name = ? ORDER BY member`, team)
	if err != nil {
		return nil, fmt.Errorf("members of %s: %w", team, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, err
		}
		out = append(out, member)
	}
	return out, rows.Err()
}
