package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"spikecurate/internal/logging"
)

// lockSuffix marks the advisory lock file kept next to an artifact.
const lockSuffix = ".lock"

// CleanupResult contains the outcome of an orphan cleanup.
type CleanupResult struct {
	Removed []string
	Bytes   int64
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanOrphaned removes entries under dir that neither appear in active nor
// contain an active path. Lock files survive while their artifact does.
// With dryRun set nothing is removed, but Removed and Bytes report what
// would have been.
func CleanOrphaned(ctx context.Context, dir string, active map[string]struct{}, dryRun bool, logger *slog.Logger) CleanupResult {
	result := CleanupResult{}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	keep := newKeepSet(active)
	clean(ctx, filepath.Clean(dir), keep, dryRun, logging.NewComponentLogger(logger, "storage"), &result)
	return result
}

func clean(ctx context.Context, dir string, keep keepSet, dryRun bool, logger *slog.Logger, result *CleanupResult) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: ctx.Err()})
			return
		}
		path := filepath.Join(dir, entry.Name())
		switch {
		case keep.active(path):
			continue
		case strings.HasSuffix(path, lockSuffix) && keep.active(strings.TrimSuffix(path, lockSuffix)):
			continue
		case entry.IsDir() && keep.ancestor(path):
			clean(ctx, path, keep, dryRun, logger, result)
			continue
		}

		size, _ := pathSize(path)
		if !dryRun {
			if err := os.RemoveAll(path); err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
				logging.WarnWithContext(logger, "failed to remove orphaned artifact", "storage_cleanup_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check base_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"))
				continue
			}
		}
		result.Removed = append(result.Removed, path)
		result.Bytes += size
		logger.Info("removed orphaned artifact",
			logging.String("path", path),
			logging.Any("bytes", size),
			logging.Bool("dry_run", dryRun),
			logging.String(logging.FieldEventType, "storage_cleanup"))
	}
}

type keepSet struct {
	paths     map[string]struct{}
	ancestors map[string]struct{}
}

func newKeepSet(active map[string]struct{}) keepSet {
	set := keepSet{paths: make(map[string]struct{}, len(active)), ancestors: make(map[string]struct{})}
	for path := range active {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		path = filepath.Clean(path)
		set.paths[path] = struct{}{}
		for parent := filepath.Dir(path); parent != path; parent = filepath.Dir(parent) {
			if _, seen := set.ancestors[parent]; seen {
				break
			}
			set.ancestors[parent] = struct{}{}
			path = parent
		}
	}
	return set
}

func (k keepSet) active(path string) bool {
	_, ok := k.paths[path]
	return ok
}

func (k keepSet) ancestor(path string) bool {
	_, ok := k.ancestors[path]
	return ok
}

// pathSize returns the total size of path, recursing into directories.
func pathSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
