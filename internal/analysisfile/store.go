package analysisfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"spikecurate/internal/curation"
	"spikecurate/internal/fileutil"
	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
	"spikecurate/internal/textutil"
)

// Object kinds stored in analysis files.
const (
	KindWaveforms      = "waveforms"
	KindQualityMetrics = "quality_metrics"
	KindUnits          = "units"
)

// Units is a units table: spike times in seconds plus per-unit annotations.
type Units struct {
	SpikeTimes   map[int][]float64 `json:"spike_times"`
	ValidTimes   []ledger.Interval `json:"obs_intervals"`
	SortInterval ledger.Interval   `json:"sort_interval"`
	Metrics      curation.Metrics  `json:"metrics,omitempty"`
	Labels       map[int]string    `json:"labels,omitempty"`
}

// Store creates analysis files and appends objects to them.
type Store interface {
	Create(ctx context.Context, nwbFileName string) (string, error)
	AddObject(ctx context.Context, analysisFileName, kind string, payload any) (string, error)
	AddUnits(ctx context.Context, analysisFileName string, units Units) (string, error)
	Add(ctx context.Context, nwbFileName, analysisFileName string) error
}

// Registry records finished analysis files.
type Registry interface {
	RegisterAnalysisFile(ctx context.Context, file ledger.AnalysisFile) error
}

type object struct {
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Data      any       `json:"data"`
}

type document struct {
	NWBFileName string            `json:"nwb_file_name"`
	CreatedAt   time.Time         `json:"created_at"`
	Objects     map[string]object `json:"objects"`
}

// JSONStore keeps analysis files as JSON documents under Dir.
type JSONStore struct {
	Dir      string
	registry Registry
	logger   *slog.Logger
	now      func() time.Time
}

// NewJSONStore returns a store writing under dir and registering files in
// registry.
func NewJSONStore(dir string, registry Registry, logger *slog.Logger) *JSONStore {
	return &JSONStore{
		Dir:      dir,
		registry: registry,
		logger:   logging.NewComponentLogger(logger, "analysis_files"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Path returns the on-disk location of analysisFileName.
func (s *JSONStore) Path(analysisFileName string) string {
	return filepath.Join(s.Dir, analysisFileName)
}

// Create allocates a new, empty analysis file derived from nwbFileName and
// returns its name.
func (s *JSONStore) Create(ctx context.Context, nwbFileName string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(strings.TrimSpace(nwbFileName)), filepath.Ext(nwbFileName))
	stem = textutil.SanitizeFileName(stem)
	if stem == "" || stem == "." {
		return "", services.Wrap(services.ErrValidation, "analysis_file", "create", "nwb file name is required", nil)
	}
	name := fmt.Sprintf("%s_%s.nwb", stem, strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	doc := document{NWBFileName: nwbFileName, CreatedAt: s.now(), Objects: map[string]object{}}
	if err := fileutil.WriteJSON(s.Path(name), doc); err != nil {
		return "", services.Wrap(services.ErrResource, "analysis_file", "create", name, err)
	}
	logging.WithContext(ctx, s.logger).Debug("analysis file created",
		logging.String("analysis_file_name", name),
		logging.String("nwb_file_name", nwbFileName))
	return name, nil
}

// AddObject appends payload under a fresh object id and returns the id.
func (s *JSONStore) AddObject(ctx context.Context, analysisFileName, kind string, payload any) (string, error) {
	doc, err := s.read(analysisFileName)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	doc.Objects[id] = object{Kind: kind, CreatedAt: s.now(), Data: payload}
	if err := fileutil.WriteJSON(s.Path(analysisFileName), doc); err != nil {
		return "", services.Wrap(services.ErrResource, "analysis_file", "add object", analysisFileName, err)
	}
	logging.WithContext(ctx, s.logger).Debug("analysis object added",
		logging.String("analysis_file_name", analysisFileName),
		logging.String("kind", kind),
		logging.String("object_id", id))
	return id, nil
}

// AddUnits appends a units table and returns its object id.
func (s *JSONStore) AddUnits(ctx context.Context, analysisFileName string, units Units) (string, error) {
	for unit := range units.Labels {
		if _, ok := units.SpikeTimes[unit]; !ok {
			return "", services.Wrap(services.ErrValidation, "analysis_file", "add units",
				fmt.Sprintf("label given for unit %d without spike times", unit), nil)
		}
	}
	return s.AddObject(ctx, analysisFileName, KindUnits, units)
}

// Add registers analysisFileName as derived from nwbFileName.
func (s *JSONStore) Add(ctx context.Context, nwbFileName, analysisFileName string) error {
	if s.registry == nil {
		return nil
	}
	return s.registry.RegisterAnalysisFile(ctx, ledger.AnalysisFile{
		Name:        analysisFileName,
		NWBFileName: nwbFileName,
		Path:        s.Path(analysisFileName),
		CreatedAt:   s.now(),
	})
}

// ObjectKinds lists the object ids of analysisFileName by kind.
func (s *JSONStore) ObjectKinds(analysisFileName string) (map[string]string, error) {
	doc, err := s.read(analysisFileName)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(doc.Objects))
	for id, obj := range doc.Objects {
		out[id] = obj.Kind
	}
	return out, nil
}

// ReadUnits decodes the units table stored as objectID.
func (s *JSONStore) ReadUnits(analysisFileName, objectID string) (*Units, error) {
	var raw struct {
		Objects map[string]struct {
			Kind string `json:"kind"`
			Data Units  `json:"data"`
		} `json:"objects"`
	}
	if err := fileutil.ReadJSON(s.Path(analysisFileName), &raw); err != nil {
		return nil, services.Wrap(services.ErrResource, "analysis_file", "read units", analysisFileName, err)
	}
	obj, ok := raw.Objects[objectID]
	if !ok || obj.Kind != KindUnits {
		return nil, services.Wrap(services.ErrValidation, "analysis_file", "read units",
			fmt.Sprintf("%s has no units object %q", analysisFileName, objectID), nil)
	}
	return &obj.Data, nil
}

func (s *JSONStore) read(analysisFileName string) (*document, error) {
	var doc document
	if err := fileutil.ReadJSON(s.Path(analysisFileName), &doc); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrValidation, "analysis_file", "open",
				fmt.Sprintf("analysis file %q does not exist", analysisFileName), nil)
		}
		return nil, services.Wrap(services.ErrResource, "analysis_file", "open", analysisFileName, err)
	}
	if doc.Objects == nil {
		doc.Objects = map[string]object{}
	}
	return &doc, nil
}
