package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements Collector on a private registry.
type PrometheusCollector struct {
	stageRuns     *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec
	ledgerRows    *prometheus.GaugeVec
	registry      *prometheus.Registry
}

// NewPrometheusCollector creates a collector with its own registry.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	stageRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spikecurate_stage_runs_total",
			Help: "Total number of stage executions by stage and status",
		},
		[]string{"stage", "status"},
	)

	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "spikecurate_stage_duration_seconds",
			Help:    "Duration of stage executions",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"stage"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spikecurate_errors_total",
			Help: "Total number of stage failures by stage and error kind",
		},
		[]string{"stage", "kind"},
	)

	ledgerRows := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spikecurate_ledger_rows",
			Help: "Current row count of ledger tables",
		},
		[]string{"table"},
	)

	registry.MustRegister(stageRuns, stageDuration, errorsTotal, ledgerRows)

	return &PrometheusCollector{
		stageRuns:     stageRuns,
		stageDuration: stageDuration,
		errorsTotal:   errorsTotal,
		ledgerRows:    ledgerRows,
		registry:      registry,
	}
}

func (c *PrometheusCollector) RecordStage(_ context.Context, stage, status string, elapsed time.Duration) {
	c.stageRuns.WithLabelValues(stage, status).Inc()
	c.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (c *PrometheusCollector) RecordError(_ context.Context, stage, kind string) {
	c.errorsTotal.WithLabelValues(stage, kind).Inc()
}

func (c *PrometheusCollector) SetLedgerCount(_ context.Context, table string, count int64) {
	c.ledgerRows.WithLabelValues(table).Set(float64(count))
}

// Registry returns the Prometheus registry backing the collector.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteTextfile writes the current metrics in Prometheus text format, for
// pickup by a node exporter textfile collector.
func (c *PrometheusCollector) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create telemetry dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write telemetry textfile: %w", err)
	}
	return nil
}
