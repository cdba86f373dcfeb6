package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeToolkit()
	c.normalizeCuration()
	c.normalizeLogging()
	if err := c.normalizeTelemetry(); err != nil {
		return err
	}
	c.normalizePermissions()
	return nil
}

func (c *Config) normalizePaths() error {
	c.Paths.BaseDir = strings.TrimSpace(c.Paths.BaseDir)
	if c.Paths.BaseDir == "" {
		if value, ok := os.LookupEnv(baseDirEnv); ok && strings.TrimSpace(value) != "" {
			c.Paths.BaseDir = strings.TrimSpace(value)
		} else {
			c.Paths.BaseDir = defaultBaseDir
		}
	}
	var err error
	if c.Paths.BaseDir, err = expandPath(c.Paths.BaseDir); err != nil {
		return fmt.Errorf("paths.base_dir: %w", err)
	}

	derived := []struct {
		key   string
		value *string
		sub   string
	}{
		{"paths.recordings_dir", &c.Paths.RecordingsDir, "recordings"},
		{"paths.sortings_dir", &c.Paths.SortingsDir, "sortings"},
		{"paths.waveforms_dir", &c.Paths.WaveformsDir, "waveforms"},
		{"paths.analysis_dir", &c.Paths.AnalysisDir, "analysis"},
		{"paths.temp_dir", &c.Paths.TempDir, "tmp"},
		{"paths.log_dir", &c.Paths.LogDir, "logs"},
		{"paths.ledger_path", &c.Paths.LedgerPath, "ledger.db"},
	}
	for _, entry := range derived {
		if strings.TrimSpace(*entry.value) == "" {
			*entry.value = filepath.Join(c.Paths.BaseDir, entry.sub)
		}
		if *entry.value, err = expandPath(strings.TrimSpace(*entry.value)); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}
	return nil
}

func (c *Config) normalizeToolkit() {
	c.Toolkit.Binary = strings.TrimSpace(c.Toolkit.Binary)
	if c.Toolkit.Binary == "" {
		c.Toolkit.Binary = defaultToolkitBinary
	}
	if c.Toolkit.TimeoutSeconds == 0 {
		c.Toolkit.TimeoutSeconds = defaultToolkitTimeout
	}
}

func (c *Config) normalizeCuration() {
	c.Curation.WaveformParams = strings.TrimSpace(c.Curation.WaveformParams)
	if c.Curation.WaveformParams == "" {
		c.Curation.WaveformParams = defaultWaveformParams
	}
	c.Curation.MetricParams = strings.TrimSpace(c.Curation.MetricParams)
	if c.Curation.MetricParams == "" {
		c.Curation.MetricParams = defaultMetricParams
	}
	c.Curation.AutoParams = strings.TrimSpace(c.Curation.AutoParams)
	if c.Curation.AutoParams == "" {
		c.Curation.AutoParams = defaultAutoParams
	}
	if c.Curation.Rounds == 0 {
		c.Curation.Rounds = defaultRounds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTelemetry() error {
	c.Telemetry.Textfile = strings.TrimSpace(c.Telemetry.Textfile)
	if c.Telemetry.Textfile == "" {
		return nil
	}
	var err error
	if c.Telemetry.Textfile, err = expandPath(c.Telemetry.Textfile); err != nil {
		return fmt.Errorf("telemetry.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizePermissions() {
	c.Permissions.User = strings.TrimSpace(c.Permissions.User)
	if c.Permissions.User == "" {
		if value, ok := os.LookupEnv("USER"); ok {
			c.Permissions.User = strings.TrimSpace(value)
		}
	}
}
