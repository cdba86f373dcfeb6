package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"spikecurate/internal/analysisfile"
	"spikecurate/internal/autocuration"
	"spikecurate/internal/config"
	"spikecurate/internal/finalize"
	"spikecurate/internal/ledger"
	"spikecurate/internal/logging"
	"spikecurate/internal/pipeline"
	"spikecurate/internal/qualitymetrics"
	"spikecurate/internal/services/toolkit"
	"spikecurate/internal/telemetry"
	"spikecurate/internal/waveform"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	collector *telemetry.PrometheusCollector
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
		collector:  telemetry.NewPrometheusCollector(),
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// JSONMode reports whether --json was requested.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) withStore(fn func(*ledger.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg, ledger.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// stageSet bundles the stage implementations wired for one ledger.
type stageSet struct {
	waveforms *waveform.Stage
	metrics   *qualitymetrics.Stage
	auto      *autocuration.Engine
	finalize  *finalize.Stage
}

func (s stageSet) handlers() pipeline.Handlers {
	return pipeline.Handlers{
		Waveforms:    s.waveforms,
		Metrics:      s.metrics,
		AutoCuration: s.auto,
		Finalize:     s.finalize,
	}
}

func (c *commandContext) stages(store *ledger.Store) (stageSet, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return stageSet{}, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return stageSet{}, err
	}
	bridge, err := toolkit.New(cfg.Toolkit.Binary, cfg.Toolkit.TimeoutSeconds, toolkit.WithLogger(logger))
	if err != nil {
		return stageSet{}, err
	}
	files := analysisfile.NewJSONStore(cfg.Paths.AnalysisDir, store, logger)
	return stageSet{
		waveforms: waveform.NewStage(cfg, store, files, bridge, bridge, logger),
		metrics:   qualitymetrics.NewStage(cfg, store, files, bridge, logger),
		auto:      autocuration.NewEngine(cfg, store, logger),
		finalize:  finalize.NewStage(store, files, logger),
	}, nil
}

func (c *commandContext) runner(set stageSet) *pipeline.Runner {
	return pipeline.NewRunner(c.config, set.handlers(), c.logger, c.collector)
}

// recordLedgerCounts publishes the current ledger row counts as gauges.
func (c *commandContext) recordLedgerCounts(ctx context.Context, store *ledger.Store) (map[string]int64, error) {
	counts, err := store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	for table, count := range counts {
		c.collector.SetLedgerCount(ctx, table, count)
	}
	return counts, nil
}

func (c *commandContext) flushTelemetry() error {
	if c.config == nil || strings.TrimSpace(c.config.Telemetry.Textfile) == "" {
		return nil
	}
	if err := c.collector.WriteTextfile(c.config.Telemetry.Textfile); err != nil {
		return fmt.Errorf("write telemetry textfile: %w", err)
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
