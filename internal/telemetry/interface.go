// Package telemetry records stage execution metrics for spikecurate runs.
package telemetry

import (
	"context"
	"time"
)

// Collector receives stage outcomes and ledger gauges.
type Collector interface {
	// RecordStage counts one stage execution and observes its duration.
	RecordStage(ctx context.Context, stage, status string, elapsed time.Duration)
	// RecordError counts a failure classified by kind.
	RecordError(ctx context.Context, stage, kind string)
	// SetLedgerCount publishes the number of stored rows of a ledger table.
	SetLedgerCount(ctx context.Context, table string, count int64)
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)
