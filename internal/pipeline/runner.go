package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"spikecurate/internal/config"
	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/services"
	"spikecurate/internal/stage"
	"spikecurate/internal/telemetry"
)

// Handlers are the stage implementations a Runner chains together.
// Finalize may be nil when runs never finalize.
type Handlers struct {
	Waveforms    stage.Handler
	Metrics      stage.Handler
	AutoCuration stage.Handler
	Finalize     stage.Handler
}

// Request describes a multi-round run. Blank parameter names fall back to
// the configured defaults.
type Request struct {
	CurationID     string
	WaveformParams string
	MetricParams   string
	AutoParams     string
	Rounds         int
	Finalize       bool
}

// Report summarizes a run.
type Report struct {
	Rounds          []*stage.Job
	FinalCurationID string
	Export          *ledger.FinalizedExport
}

// Runner executes curation rounds.
type Runner struct {
	cfg       *config.Config
	handlers  Handlers
	logger    *slog.Logger
	telemetry telemetry.Collector
}

// NewRunner constructs a runner. A nil collector disables telemetry.
func NewRunner(cfg *config.Config, handlers Handlers, logger *slog.Logger, collector telemetry.Collector) *Runner {
	if collector == nil {
		collector = telemetry.NoopCollector{}
	}
	return &Runner{
		cfg:       cfg,
		handlers:  handlers,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		telemetry: collector,
	}
}

// Stage runs one handler with the runner's logging and telemetry.
func (r *Runner) Stage(ctx context.Context, handler stage.Handler, job *stage.Job) error {
	if handler == nil {
		return errors.New("stage handler unavailable")
	}
	return Run(ctx, Options{
		Logger:    logging.ForStage(r.logger, r.cfg, handler.Name()),
		Telemetry: r.telemetry,
		Handler:   handler,
		Job:       job,
	})
}

// Round extracts waveforms, computes metrics and runs automatic curation
// for job.CurationID. The returned job holds every stage's result; the new
// curation is job.AutoCuration.ResultCurationID.
func (r *Runner) Round(ctx context.Context, job *stage.Job) (*stage.Job, error) {
	if err := job.RequireCuration("pipeline"); err != nil {
		return nil, err
	}
	r.applyDefaults(job)
	for _, handler := range []stage.Handler{r.handlers.Waveforms, r.handlers.Metrics, r.handlers.AutoCuration} {
		if err := r.Stage(ctx, handler, job); err != nil {
			return job, err
		}
	}
	if job.AutoCuration == nil {
		return job, services.Wrap(services.ErrPrecondition, "pipeline", "round", "automatic curation produced no record", nil)
	}
	return job, nil
}

// Run executes req.Rounds rounds starting at req.CurationID, each round
// starting from the curation the previous one produced, and finalizes the
// last curation when req.Finalize is set.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	rounds := req.Rounds
	if rounds <= 0 {
		rounds = 1
		if r.cfg != nil && r.cfg.Curation.Rounds > 0 {
			rounds = r.cfg.Curation.Rounds
		}
	}
	report := &Report{FinalCurationID: req.CurationID}
	current := req.CurationID
	for i := range rounds {
		job := &stage.Job{
			CurationID:     current,
			WaveformParams: req.WaveformParams,
			MetricParams:   req.MetricParams,
			AutoParams:     req.AutoParams,
		}
		done, err := r.Round(services.WithRound(ctx, i+1), job)
		if done != nil {
			report.Rounds = append(report.Rounds, done)
		}
		if err != nil {
			return report, fmt.Errorf("round %d: %w", i+1, err)
		}
		current = done.AutoCuration.ResultCurationID
		report.FinalCurationID = current
		r.logger.Info("round complete",
			logging.String(logging.FieldEventType, "round_complete"),
			logging.Int(logging.FieldRound, i+1),
			logging.String("parent_id", done.CurationID),
			logging.String(logging.FieldCurationID, current),
			logging.Bool("merged", done.AutoCuration.Merged))
	}

	if !req.Finalize {
		return report, nil
	}
	if r.handlers.Finalize == nil {
		return report, errors.New("finalize handler unavailable")
	}
	job := &stage.Job{CurationID: current}
	if err := r.Stage(ctx, r.handlers.Finalize, job); err != nil {
		return report, err
	}
	report.Export = job.Export
	if job.Export == nil {
		r.logger.Info("finalization exported nothing",
			logging.Args(logging.DecisionAttrs("finalize", "skipped", "no labeled units accepted")...)...)
	}
	return report, nil
}

func (r *Runner) applyDefaults(job *stage.Job) {
	if r.cfg == nil {
		return
	}
	if job.WaveformParams == "" {
		job.WaveformParams = r.cfg.Curation.WaveformParams
	}
	if job.MetricParams == "" {
		job.MetricParams = r.cfg.Curation.MetricParams
	}
	if job.AutoParams == "" {
		job.AutoParams = r.cfg.Curation.AutoParams
	}
}
