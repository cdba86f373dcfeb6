package sorting

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"spikecurate/internal/fileutil"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
)

// Store loads and persists recordings and sortings.
type Store interface {
	LoadRecording(ctx context.Context, ref string) (*Recording, error)
	LoadSorting(ctx context.Context, ref string) (*Sorting, error)
	SaveSorting(ctx context.Context, sorting *Sorting, destination string) (string, error)
	Timestamps(ctx context.Context, recording *Recording) ([]float64, error)
}

// FileStore keeps recordings and sortings as JSON documents. Relative
// references resolve against Root.
type FileStore struct {
	Root   string
	logger *slog.Logger
}

// NewFileStore returns a store rooted at root.
func NewFileStore(root string, logger *slog.Logger) *FileStore {
	return &FileStore{Root: root, logger: logging.NewComponentLogger(logger, "sorting_store")}
}

func (s *FileStore) resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty reference")
	}
	if filepath.IsAbs(ref) || s.Root == "" {
		return filepath.Clean(ref), nil
	}
	return filepath.Join(s.Root, ref), nil
}

// LoadRecording reads the recording document at ref.
func (s *FileStore) LoadRecording(ctx context.Context, ref string) (*Recording, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "sorting", "load recording", ref, err)
	}
	var rec Recording
	if err := fileutil.ReadJSON(path, &rec); err != nil {
		return nil, services.Wrap(services.ErrResource, "sorting", "load recording", path, err)
	}
	if rec.SamplingFrequency <= 0 {
		return nil, services.Wrap(services.ErrResource, "sorting", "load recording",
			fmt.Sprintf("%s: sampling frequency must be positive", path), nil)
	}
	rec.Path = path
	logging.WithContext(ctx, s.logger).Debug("recording loaded",
		logging.String("path", path),
		logging.Int("frames", rec.NumFrames()))
	return &rec, nil
}

// LoadSorting reads the sorting document at ref.
func (s *FileStore) LoadSorting(ctx context.Context, ref string) (*Sorting, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, services.Wrap(services.ErrResource, "sorting", "load sorting", ref, err)
	}
	var sorting Sorting
	if err := fileutil.ReadJSON(path, &sorting); err != nil {
		return nil, services.Wrap(services.ErrResource, "sorting", "load sorting", path, err)
	}
	if sorting.Units == nil {
		sorting.Units = map[UnitID][]int64{}
	}
	sorting.Path = path
	logging.WithContext(ctx, s.logger).Debug("sorting loaded",
		logging.String("path", path),
		logging.Int("units", len(sorting.Units)))
	return &sorting, nil
}

// SaveSorting writes sorting to destination, replacing any existing file,
// and returns the absolute path written.
func (s *FileStore) SaveSorting(ctx context.Context, sorting *Sorting, destination string) (string, error) {
	if sorting == nil {
		return "", services.Wrap(services.ErrValidation, "sorting", "save sorting", "sorting is nil", nil)
	}
	path, err := s.resolve(destination)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "sorting", "save sorting", destination, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", services.Wrap(services.ErrResource, "sorting", "save sorting", "remove existing artifact", err)
	}
	if err := fileutil.WriteJSON(path, sorting); err != nil {
		return "", services.Wrap(services.ErrResource, "sorting", "save sorting", path, err)
	}
	logging.WithContext(ctx, s.logger).Debug("sorting saved",
		logging.String("path", path),
		logging.Int("units", len(sorting.Units)))
	return path, nil
}

// Timestamps returns the per-frame timestamps of recording in seconds.
func (s *FileStore) Timestamps(_ context.Context, recording *Recording) ([]float64, error) {
	if recording == nil {
		return nil, services.Wrap(services.ErrResource, "sorting", "timestamps", "recording is nil", nil)
	}
	if len(recording.Timestamps) == 0 {
		return nil, services.Wrap(services.ErrResource, "sorting", "timestamps",
			fmt.Sprintf("%s has no timestamps", recording.Path), nil)
	}
	return recording.Timestamps, nil
}

// SpikeTimes converts frame indices to seconds using timestamps.
func SpikeTimes(frames []int64, timestamps []float64) ([]float64, error) {
	out := make([]float64, len(frames))
	for i, frame := range frames {
		if frame < 0 || frame >= int64(len(timestamps)) {
			return nil, fmt.Errorf("spike frame %d outside recording (%d frames)", frame, len(timestamps))
		}
		out[i] = timestamps[frame]
	}
	return out, nil
}
