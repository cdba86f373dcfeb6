package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"spikecurate/internal/logging"
	"spikecurate/internal/services"
	"spikecurate/internal/stage"
	"spikecurate/internal/telemetry"
)

// Options controls one stage execution.
type Options struct {
	Logger    *slog.Logger
	Telemetry telemetry.Collector
	Handler   stage.Handler
	Job       *stage.Job
}

// Run executes a single stage handler against opts.Job.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return errors.New("stage handler unavailable")
	}
	if opts.Job == nil {
		return errors.New("stage job is required")
	}
	collector := opts.Telemetry
	if collector == nil {
		collector = telemetry.NoopCollector{}
	}
	name := opts.Handler.Name()

	stageCtx := services.WithStage(ctx, name)
	if _, ok := services.RequestIDFromContext(stageCtx); !ok {
		stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	}
	if opts.Job.CurationID != "" {
		stageCtx = services.WithCurationID(stageCtx, opts.Job.CurationID)
	}
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("waveform_params", opts.Job.WaveformParams),
		logging.String("metric_params", opts.Job.MetricParams),
		logging.String("auto_params", opts.Job.AutoParams))

	started := time.Now()
	if err := opts.Handler.Execute(stageCtx, opts.Job); err != nil {
		elapsed := time.Since(started)
		kind := services.Kind(err)
		collector.RecordStage(stageCtx, name, telemetry.StatusError, elapsed)
		collector.RecordError(stageCtx, name, kind)
		logging.ErrorWithContext(stageLogger, "stage failed", "stage_failure",
			logging.String("error_kind", kind),
			logging.Duration("duration", elapsed),
			logging.String(logging.FieldImpact, impactOf(kind)),
			logging.Error(err))
		return err
	}

	elapsed := time.Since(started)
	collector.RecordStage(stageCtx, name, telemetry.StatusSuccess, elapsed)
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", elapsed))
	return nil
}

func impactOf(kind string) string {
	switch kind {
	case "validation", "unsupported_metric":
		return "request rejected before any write"
	case "precondition":
		return "an earlier stage must run first"
	case "unimplemented_merge":
		return "merge proposed while merge application is disabled"
	default:
		return "stage aborted; partial artifacts may remain"
	}
}
