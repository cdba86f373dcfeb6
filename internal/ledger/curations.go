package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"spikecurate/internal/curation"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
)

const curationColumns = "curation_id, parent_id, sorting_ref, labels_json, merge_groups_json, metrics_json, description, created_at"

// maxIDAttempts bounds the collision-retry loop of Insert.
const maxIDAttempts = 16

func scanCuration(scanner rowScanner) (*Curation, error) {
	var (
		c           Curation
		labels      sql.NullString
		mergeGroups sql.NullString
		metrics     sql.NullString
		createdRaw  sql.NullString
	)
	if err := scanner.Scan(
		&c.ID,
		&c.ParentID,
		&c.SortingRef,
		&labels,
		&mergeGroups,
		&metrics,
		&c.Description,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	if err := decodeJSON("labels_json", labels, &c.Labels); err != nil {
		return nil, err
	}
	if err := decodeJSON("merge_groups_json", mergeGroups, &c.MergeGroups); err != nil {
		return nil, err
	}
	if err := decodeJSON("metrics_json", metrics, &c.Metrics); err != nil {
		return nil, err
	}
	if c.Labels == nil {
		c.Labels = curation.Labels{}
	}
	if c.MergeGroups == nil {
		c.MergeGroups = curation.MergeGroups{}
	}
	if c.Metrics == nil {
		c.Metrics = curation.Metrics{}
	}
	c.CreatedAt = parseTimeOrZero(createdRaw.String)
	return &c, nil
}

// Insert validates in and appends a new curation, returning its fresh id.
func (s *Store) Insert(ctx context.Context, in CurationInput) (string, error) {
	ctx = ensureContext(ctx)
	in.SortingRef = strings.TrimSpace(in.SortingRef)
	in.ParentID = strings.TrimSpace(in.ParentID)
	if in.ParentID == "" {
		in.ParentID = curation.RootParent
	}
	if in.SortingRef == "" {
		return "", services.Wrap(services.ErrValidation, "ledger", "insert curation", "sorting reference is required", nil)
	}

	sortingRec, err := s.GetSorting(ctx, in.SortingRef)
	if err != nil {
		return "", err
	}
	if sortingRec == nil {
		return "", services.Wrap(services.ErrValidation, "ledger", "insert curation",
			fmt.Sprintf("unknown sorting %q", in.SortingRef), nil)
	}

	if in.ParentID != curation.RootParent {
		parent, err := s.Get(ctx, in.ParentID)
		if err != nil {
			return "", err
		}
		if parent == nil {
			return "", services.Wrap(services.ErrValidation, "ledger", "insert curation",
				fmt.Sprintf("parent curation %q does not exist", in.ParentID), nil)
		}
		if parent.SortingRef != in.SortingRef {
			return "", services.Wrap(services.ErrValidation, "ledger", "insert curation",
				fmt.Sprintf("parent %s belongs to sorting %q, not %q", parent.ID, parent.SortingRef, in.SortingRef), nil)
		}
	}

	if err := in.MergeGroups.Validate(); err != nil {
		return "", services.Wrap(services.ErrValidation, "ledger", "insert curation", "merge groups", err)
	}

	labelsJSON, err := encodeJSON("labels_json", in.Labels.Clone())
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "ledger", "insert curation", "", err)
	}
	groupsJSON, err := encodeJSON("merge_groups_json", in.MergeGroups.Clone())
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "ledger", "insert curation", "", err)
	}
	metricsJSON, err := encodeJSON("metrics_json", in.Metrics.Clone())
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "ledger", "insert curation", "", err)
	}

	var id string
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		candidate := s.newID()
		existing, err := s.Get(ctx, candidate)
		if err != nil {
			return "", err
		}
		if existing != nil {
			s.logger.Debug("curation id collision", logging.String("candidate", candidate))
			continue
		}
		id = candidate
		break
	}
	if id == "" {
		return "", services.Wrap(services.ErrResource, "ledger", "insert curation",
			fmt.Sprintf("no unused curation id after %d attempts", maxIDAttempts), nil)
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO curations (`+curationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		in.ParentID,
		in.SortingRef,
		labelsJSON,
		groupsJSON,
		metricsJSON,
		in.Description,
		formatTime(s.now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert curation: %w", err)
	}

	logging.WithContext(ctx, s.logger).Info("curation inserted",
		logging.String(logging.FieldEventType, "curation_inserted"),
		logging.String(logging.FieldCurationID, id),
		logging.String("parent_id", in.ParentID),
		logging.String("sorting_ref", in.SortingRef),
		logging.Int("merge_groups", len(in.MergeGroups)),
		logging.Int("labeled_units", len(in.Labels)),
		logging.Int("metrics", len(in.Metrics)))
	return id, nil
}

// Get fetches a curation by id. It returns nil, nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*Curation, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+curationColumns+` FROM curations WHERE curation_id = ?`, id)
	c, err := scanCuration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get curation: %w", err)
	}
	return c, nil
}

// MustGet fetches a curation and reports a validation error when absent.
func (s *Store) MustGet(ctx context.Context, id string) (*Curation, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, services.Wrap(services.ErrValidation, "ledger", "get curation",
			fmt.Sprintf("curation %q does not exist", id), nil)
	}
	return c, nil
}

// Lineage returns the chain of curations from the root to id, inclusive.
func (s *Store) Lineage(ctx context.Context, id string) ([]*Curation, error) {
	current, err := s.MustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	visited := map[string]struct{}{current.ID: {}}
	chain := []*Curation{current}
	for !current.IsRoot() {
		parentID := current.ParentID
		if _, seen := visited[parentID]; seen {
			return nil, services.Wrap(services.ErrCycle, "ledger", "lineage",
				fmt.Sprintf("curation %s revisited while walking from %s", parentID, id), nil)
		}
		parent, err := s.Get(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			return nil, services.Wrap(services.ErrPrecondition, "ledger", "lineage",
				fmt.Sprintf("curation %s references missing parent %s", current.ID, parentID), nil)
		}
		visited[parentID] = struct{}{}
		chain = append(chain, parent)
		current = parent
	}
	slices.Reverse(chain)
	return chain, nil
}

// Children returns the direct descendants of id, oldest first.
func (s *Store) Children(ctx context.Context, id string) ([]*Curation, error) {
	return s.queryCurations(ctx, `SELECT `+curationColumns+` FROM curations WHERE parent_id = ? ORDER BY created_at, curation_id`, id)
}

// ListCurations returns every curation of a sorting, oldest first. An empty
// sortingRef lists all curations.
func (s *Store) ListCurations(ctx context.Context, sortingRef string) ([]*Curation, error) {
	if strings.TrimSpace(sortingRef) == "" {
		return s.queryCurations(ctx, `SELECT `+curationColumns+` FROM curations ORDER BY created_at, curation_id`)
	}
	return s.queryCurations(ctx, `SELECT `+curationColumns+` FROM curations WHERE sorting_ref = ? ORDER BY created_at, curation_id`, sortingRef)
}

func (s *Store) queryCurations(ctx context.Context, query string, args ...any) ([]*Curation, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query curations: %w", err)
	}
	defer rows.Close()

	var out []*Curation
	for rows.Next() {
		c, err := scanCuration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan curation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
