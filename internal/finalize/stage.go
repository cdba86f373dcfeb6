package finalize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spikecurate/internal/analysisfile"
	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
	"spikecurate/internal/stage"
)

// Stage writes finalized unit exports.
type Stage struct {
	store  *ledger.Store
	files  analysisfile.Store
	logger *slog.Logger
}

// NewStage constructs the finalization stage.
func NewStage(store *ledger.Store, files analysisfile.Store, logger *slog.Logger) *Stage {
	return &Stage{store: store, files: files, logger: logging.NewComponentLogger(logger, stage.NameFinalize)}
}

// Name implements stage.Handler.
func (s *Stage) Name() string { return stage.NameFinalize }

// SetLogger implements stage.LoggerAware.
func (s *Stage) SetLogger(logger *slog.Logger) {
	s.logger = logging.NewComponentLogger(logger, stage.NameFinalize)
}

// HealthCheck implements stage.Handler.
func (s *Stage) HealthCheck(context.Context) stage.Health {
	if s.store == nil || s.files == nil {
		return stage.Unhealthy(stage.NameFinalize, "ledger or analysis file store unavailable")
	}
	return stage.Healthy(stage.NameFinalize)
}

// Execute implements stage.Handler.
func (s *Stage) Execute(ctx context.Context, job *stage.Job) error {
	if err := job.RequireCuration(stage.NameFinalize); err != nil {
		return err
	}
	export, err := s.Finalize(ctx, job.CurationID)
	if err != nil {
		return err
	}
	job.Export = export
	return nil
}

// Finalize exports the accepted units of curationID. It returns nil, nil
// without writing when the curation has no labels or accepts no units.
func (s *Stage) Finalize(ctx context.Context, curationID string) (*ledger.FinalizedExport, error) {
	ctx = services.WithCurationID(ctx, curationID)
	logger := logging.WithContext(ctx, s.logger)

	cur, err := s.store.Get(ctx, curationID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameFinalize, "finalize",
			fmt.Sprintf("curation %q does not exist", curationID), nil)
	}
	if len(cur.Metrics) == 0 {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameFinalize, "finalize",
			fmt.Sprintf("metrics must be computed before finalization of %s", curationID), nil)
	}

	view, _, err := s.store.CuratedView(ctx, curationID)
	if err != nil {
		return nil, err
	}
	accepted := Accepted(view.UnitIDs(), cur.Labels)
	logger.Info("units accepted",
		logging.Int("accepted", len(accepted)),
		logging.Int("total", len(view.Units)))
	if len(cur.Labels) == 0 || len(accepted) == 0 {
		logger.Info("nothing to finalize",
			logging.Args(logging.DecisionAttrs("finalize", "skipped",
				fmt.Sprintf("labels=%d accepted=%d", len(cur.Labels), len(accepted)))...)...)
		return nil, nil
	}

	sortingRec, err := s.store.GetSorting(ctx, cur.SortingRef)
	if err != nil {
		return nil, err
	}
	if sortingRec == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameFinalize, "finalize",
			fmt.Sprintf("sorting %q is not registered", cur.SortingRef), nil)
	}
	recording, err := s.store.Recording(ctx, curationID)
	if err != nil {
		return nil, err
	}
	timestamps, err := s.store.Data().Timestamps(ctx, recording)
	if err != nil {
		return nil, err
	}
	validTimes := []ledger.Interval{sortingRec.SortInterval}
	if sortingRec.SortIntervalListName != "" {
		validTimes, err = s.store.ValidTimes(ctx, sortingRec.SortIntervalListName)
		if err != nil {
			return nil, err
		}
	}

	units := analysisfile.Units{
		SpikeTimes:   make(map[int][]float64, len(accepted)),
		ValidTimes:   validTimes,
		SortInterval: sortingRec.SortInterval,
		Metrics:      restrictMetrics(cur.Metrics, accepted),
		Labels:       make(map[int]string, len(accepted)),
	}
	rows := make([]ledger.ExportUnit, 0, len(accepted))
	for _, unit := range accepted {
		times, err := sorting.SpikeTimes(view.Units[unit], timestamps)
		if err != nil {
			return nil, services.Wrap(services.ErrResource, stage.NameFinalize, "spike times",
				fmt.Sprintf("unit %d", unit), err)
		}
		units.SpikeTimes[unit] = times
		units.Labels[unit] = cur.Labels.Joined(unit)
		rows = append(rows, ExportRow(unit, cur.Labels, cur.Metrics))
	}

	analysisName, err := s.files.Create(ctx, sortingRec.NWBFileName)
	if err != nil {
		return nil, err
	}
	objectID, err := s.files.AddUnits(ctx, analysisName, units)
	if err != nil {
		return nil, err
	}
	if err := s.files.Add(ctx, sortingRec.NWBFileName, analysisName); err != nil {
		return nil, err
	}

	export, err := s.store.InsertExport(ctx, ledger.FinalizedExport{
		CurationID:       curationID,
		AnalysisFileName: analysisName,
		UnitsObjectID:    objectID,
		CreatedAt:        time.Now().UTC(),
	}, rows)
	if err != nil {
		return nil, err
	}
	logger.Info("curation finalized",
		logging.String(logging.FieldEventType, "finalize_complete"),
		logging.Any("export_id", export.ExportID),
		logging.Int("units", len(rows)),
		logging.String("analysis_file_name", analysisName))
	return export, nil
}
