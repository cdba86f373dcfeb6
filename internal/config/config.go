package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the storage roots used by every stage.
type Paths struct {
	BaseDir       string `toml:"base_dir"`
	RecordingsDir string `toml:"recordings_dir"`
	SortingsDir   string `toml:"sortings_dir"`
	WaveformsDir  string `toml:"waveforms_dir"`
	AnalysisDir   string `toml:"analysis_dir"`
	TempDir       string `toml:"temp_dir"`
	LogDir        string `toml:"log_dir"`
	LedgerPath    string `toml:"ledger_path"`
}

// Toolkit configures the external spike-sorting toolkit bridge.
type Toolkit struct {
	Binary         string `toml:"binary"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Curation contains policy knobs for automatic curation rounds.
type Curation struct {
	// ApplyMerges enables materializing merged sortings. When false any
	// round that actually merges units fails instead of writing a record.
	ApplyMerges bool `toml:"apply_merges"`
	// Parameter set names used by `spikecurate run` when flags are omitted.
	WaveformParams string `toml:"waveform_params"`
	MetricParams   string `toml:"metric_params"`
	AutoParams     string `toml:"auto_params"`
	Rounds         int    `toml:"rounds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Telemetry controls Prometheus metric export.
type Telemetry struct {
	// Textfile, when set, receives the collected metrics in Prometheus text
	// format after each CLI invocation.
	Textfile string `toml:"textfile"`
}

// Permissions identifies the operator for delete authorization.
type Permissions struct {
	User string `toml:"user"`
}

// Config encapsulates all configuration values for spikecurate.
//
// Configuration sections by subsystem:
//   - Paths: ledger database and artifact storage roots
//   - Toolkit: external bridge binary used for extraction and metrics
//   - Curation: automatic curation policy and run defaults
//   - Logging: log format and level
//   - Telemetry: Prometheus textfile export
//   - Permissions: operator identity for destructive commands
type Config struct {
	Paths       Paths       `toml:"paths"`
	Toolkit     Toolkit     `toml:"toolkit"`
	Curation    Curation    `toml:"curation"`
	Logging     Logging     `toml:"logging"`
	Telemetry   Telemetry   `toml:"telemetry"`
	Permissions Permissions `toml:"permissions"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spikecurate.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates every storage root the stages write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range c.ArtifactDirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.LedgerPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create ledger directory %q: %w", dir, err)
		}
	}
	return nil
}

// ArtifactDirs lists the configured artifact directories in a stable order.
func (c *Config) ArtifactDirs() []string {
	return []string{
		c.Paths.RecordingsDir,
		c.Paths.SortingsDir,
		c.Paths.WaveformsDir,
		c.Paths.AnalysisDir,
		c.Paths.TempDir,
		c.Paths.LogDir,
	}
}

// ToolkitTimeout returns the per-invocation timeout for the bridge binary.
func (c *Config) ToolkitTimeout() time.Duration {
	return time.Duration(c.Toolkit.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
