package config

import (
	"errors"
	"fmt"
	"strings"
)

var validLogLevels = map[string]struct{}{
	"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateToolkit(); err != nil {
		return err
	}
	if err := c.validateCuration(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.BaseDir) == "" {
		return fmt.Errorf("paths.base_dir must be set (or export %s)", baseDirEnv)
	}
	seen := make(map[string]string)
	for key, dir := range map[string]string{
		"paths.recordings_dir": c.Paths.RecordingsDir,
		"paths.sortings_dir":   c.Paths.SortingsDir,
		"paths.waveforms_dir":  c.Paths.WaveformsDir,
		"paths.analysis_dir":   c.Paths.AnalysisDir,
	} {
		if other, ok := seen[dir]; ok {
			first, second := other, key
			if second < first {
				first, second = second, first
			}
			return fmt.Errorf("%s and %s must not share a directory", first, second)
		}
		seen[dir] = key
	}
	return nil
}

func (c *Config) validateToolkit() error {
	if strings.TrimSpace(c.Toolkit.Binary) == "" {
		return errors.New("toolkit.binary must be set")
	}
	if c.Toolkit.TimeoutSeconds < 0 {
		return errors.New("toolkit.timeout_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateCuration() error {
	if c.Curation.Rounds <= 0 {
		return errors.New("curation.rounds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, ok := validLogLevels[c.Logging.Level]; !ok {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	for stage, level := range c.Logging.StageOverrides {
		if _, ok := validLogLevels[strings.ToLower(strings.TrimSpace(level))]; !ok {
			return fmt.Errorf("logging.stage_overrides.%s: invalid level %q", stage, level)
		}
	}
	return nil
}
