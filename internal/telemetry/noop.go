package telemetry

import (
	"context"
	"time"
)

// NoopCollector discards all measurements.
type NoopCollector struct{}

func (NoopCollector) RecordStage(context.Context, string, string, time.Duration) {}

func (NoopCollector) RecordError(context.Context, string, string) {}

func (NoopCollector) SetLedgerCount(context.Context, string, int64) {}
