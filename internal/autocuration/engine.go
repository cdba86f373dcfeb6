package autocuration

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"spikecurate/internal/config"
	"spikecurate/internal/curation"
	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/qualitymetrics"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
	"spikecurate/internal/stage"
	"spikecurate/internal/textutil"
	"spikecurate/internal/waveform"
)

// Outcome describes the curation produced by one engine run.
type Outcome struct {
	Record        ledger.AutoCuration
	Curation      *ledger.Curation
	Merged        bool
	DroppedLabels []int
}

// Engine runs automatic curation rounds.
type Engine struct {
	cfg    *config.Config
	store  *ledger.Store
	logger *slog.Logger
}

// NewEngine constructs the engine.
func NewEngine(cfg *config.Config, store *ledger.Store, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, store: store, logger: logging.NewComponentLogger(logger, stage.NameAutoCuration)}
}

// Name implements stage.Handler.
func (e *Engine) Name() string { return stage.NameAutoCuration }

// SetLogger implements stage.LoggerAware.
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.logger = logging.NewComponentLogger(logger, stage.NameAutoCuration)
}

// HealthCheck implements stage.Handler.
func (e *Engine) HealthCheck(context.Context) stage.Health {
	if e.store == nil {
		return stage.Unhealthy(stage.NameAutoCuration, "ledger unavailable")
	}
	return stage.Healthy(stage.NameAutoCuration)
}

// Execute implements stage.Handler.
func (e *Engine) Execute(ctx context.Context, job *stage.Job) error {
	if err := job.RequireCuration(stage.NameAutoCuration); err != nil {
		return err
	}
	if strings.TrimSpace(job.WaveformParams) == "" {
		job.WaveformParams = waveform.DefaultParamSetName
	}
	if strings.TrimSpace(job.MetricParams) == "" {
		job.MetricParams = qualitymetrics.DefaultParamSetName
	}
	if strings.TrimSpace(job.AutoParams) == "" {
		job.AutoParams = DefaultParamSetName
	}
	out, err := e.Run(ctx, job.AutoCurationKey())
	if err != nil {
		return err
	}
	job.AutoCuration = &out.Record
	return nil
}

// Run derives a child of key.CurationID from the metrics stored for key.
//
// Merge proposals are folded into the parent's merge groups; when that
// changes the groups the round's metrics are dropped, otherwise they are
// carried into the child. Label proposals are unioned with the parent's
// labels. The curated sorting is written to a fresh location and the child
// is inserted into the ledger. When merges occur and merge application is
// disabled, Run fails before writing anything.
func (e *Engine) Run(ctx context.Context, key ledger.AutoCurationKey) (*Outcome, error) {
	ctx = services.WithCurationID(ctx, key.CurationID)
	logger := logging.WithContext(ctx, e.logger)

	parent, err := e.store.Get(ctx, key.CurationID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameAutoCuration, "run",
			fmt.Sprintf("parent curation %q does not exist", key.CurationID), nil)
	}
	params, err := LoadParams(ctx, e.store, key.AutoParams)
	if err != nil {
		return nil, err
	}
	row, err := e.store.GetMetricResult(ctx, key.MetricKey)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameAutoCuration, "run",
			fmt.Sprintf("metrics %q have not been computed for %s", key.MetricParams, key.CurationID), nil)
	}
	metrics, err := qualitymetrics.ReadResult(row.Path)
	if err != nil {
		return nil, err
	}
	sortingRec, err := e.store.GetSorting(ctx, parent.SortingRef)
	if err != nil {
		return nil, err
	}
	if sortingRec == nil {
		return nil, services.Wrap(services.ErrPrecondition, stage.NameAutoCuration, "run",
			fmt.Sprintf("sorting %q is not registered", parent.SortingRef), nil)
	}
	_, parentApplied, err := e.store.CuratedView(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	groups := parent.MergeGroups.Clone()
	merged := false
	if !params.Merge.Empty() {
		proposals, err := ProposeMerges(metrics, params.Merge)
		if err != nil {
			return nil, err
		}
		if next, changed := MergeGroups(parent.MergeGroups, expandProposals(proposals, parentApplied)); changed {
			groups, merged = next, true
		}
	}
	logger.Info("merge decision",
		logging.Args(logging.DecisionAttrs("merge", fmt.Sprintf("merged=%t", merged), fmt.Sprintf("%d groups", len(groups)))...)...)
	if merged && !e.cfg.Curation.ApplyMerges {
		return nil, services.Wrap(services.ErrUnimplementedMerge, stage.NameAutoCuration, "run",
			fmt.Sprintf("round on %s merges units but merge application is disabled", parent.ID), nil)
	}

	childMetrics := metrics.Clone()
	if merged {
		childMetrics = curation.Metrics{}
	}

	labels := parent.Labels.Clone()
	if len(params.Label) > 0 {
		proposed, err := ProposeLabels(metrics, params.Label)
		if err != nil {
			return nil, err
		}
		labels = MergeLabels(parent.Labels, proposed)
	}

	base, err := e.store.Data().LoadSorting(ctx, sortingRec.SortingPath)
	if err != nil {
		return nil, err
	}
	view, applied, err := sorting.ApplyMerges(base, groups)
	if err != nil {
		return nil, err
	}
	var dropped []int
	if merged {
		labels, dropped = remapLabels(labels, parentApplied, applied, view.UnitIDs())
		if len(dropped) > 0 {
			logging.WarnWithContext(logger, "labels dropped for units missing from the merged view", "labels_dropped",
				logging.Any("units", dropped),
				logging.String(logging.FieldImpact, "labels on units absent from the curated view are not carried forward"))
		}
	}

	dest := filepath.Join(e.cfg.Paths.SortingsDir, "curated",
		fmt.Sprintf("%s_%s_%s.json", parent.ID, textutil.SanitizeToken(key.AutoParams), strings.ReplaceAll(uuid.NewString(), "-", "")[:8]))
	sortingPath, err := e.store.Data().SaveSorting(ctx, view, dest)
	if err != nil {
		return nil, err
	}

	childID, err := e.store.Insert(ctx, ledger.CurationInput{
		SortingRef:  parent.SortingRef,
		ParentID:    parent.ID,
		Labels:      labels,
		MergeGroups: groups,
		Metrics:     childMetrics,
		Description: fmt.Sprintf("automatic curation %q of %s", key.AutoParams, parent.ID),
	})
	if err != nil {
		return nil, err
	}
	record := ledger.AutoCuration{
		AutoCurationKey:  key,
		ResultCurationID: childID,
		SortingPath:      sortingPath,
		Merged:           merged,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.store.PutAutoCuration(ctx, record); err != nil {
		return nil, err
	}
	child, err := e.store.MustGet(ctx, childID)
	if err != nil {
		return nil, err
	}
	logger.Info("automatic curation complete",
		logging.String(logging.FieldEventType, "autocuration_complete"),
		logging.String("child_curation_id", childID),
		logging.Bool("merged", merged),
		logging.Int("merge_groups", len(groups)),
		logging.Int("labeled_units", len(labels)),
		logging.Int("metrics", len(childMetrics)),
		logging.String("sorting_path", sortingPath))
	return &Outcome{Record: record, Curation: child, Merged: merged, DroppedLabels: dropped}, nil
}
