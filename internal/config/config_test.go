package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"spikecurate/internal/config"
)

func TestLoadDefaultConfigDerivesPathsFromHome(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("SPIKECURATE_BASE_DIR", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	base := filepath.Join(tempHome, ".local", "share", "spikecurate")
	if cfg.Paths.BaseDir != base {
		t.Fatalf("unexpected base dir: got %q want %q", cfg.Paths.BaseDir, base)
	}
	if cfg.Paths.WaveformsDir != filepath.Join(base, "waveforms") {
		t.Fatalf("unexpected waveforms dir: %q", cfg.Paths.WaveformsDir)
	}
	if cfg.Paths.LedgerPath != filepath.Join(base, "ledger.db") {
		t.Fatalf("unexpected ledger path: %q", cfg.Paths.LedgerPath)
	}
	if cfg.Toolkit.Binary != "si-bridge" {
		t.Fatalf("unexpected toolkit binary: %q", cfg.Toolkit.Binary)
	}
	if !cfg.Curation.ApplyMerges {
		t.Fatal("expected merge application enabled by default")
	}
	if cfg.Curation.MetricParams != "franklab_default" {
		t.Fatalf("unexpected metric params default: %q", cfg.Curation.MetricParams)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range cfg.ArtifactDirs() {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadUsesBaseDirEnvFallback(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	envBase := t.TempDir()
	t.Setenv("SPIKECURATE_BASE_DIR", envBase)

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.BaseDir != envBase {
		t.Fatalf("expected env base dir %q, got %q", envBase, cfg.Paths.BaseDir)
	}
	if cfg.Paths.SortingsDir != filepath.Join(envBase, "sortings") {
		t.Fatalf("unexpected sortings dir: %q", cfg.Paths.SortingsDir)
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "spikecurate.toml")

	type payload struct {
		Paths struct {
			BaseDir      string `toml:"base_dir"`
			WaveformsDir string `toml:"waveforms_dir"`
		} `toml:"paths"`
		Curation struct {
			ApplyMerges bool `toml:"apply_merges"`
			Rounds      int  `toml:"rounds"`
		} `toml:"curation"`
		Logging struct {
			Format string `toml:"format"`
			Level  string `toml:"level"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.BaseDir = filepath.Join(tempDir, "base")
	custom.Paths.WaveformsDir = filepath.Join(tempDir, "wf")
	custom.Curation.ApplyMerges = false
	custom.Curation.Rounds = 3
	custom.Logging.Format = "JSON"
	custom.Logging.Level = "Debug"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.WaveformsDir != filepath.Join(tempDir, "wf") {
		t.Fatalf("explicit waveforms dir not honoured: %q", cfg.Paths.WaveformsDir)
	}
	if cfg.Paths.AnalysisDir != filepath.Join(tempDir, "base", "analysis") {
		t.Fatalf("analysis dir not derived from base: %q", cfg.Paths.AnalysisDir)
	}
	if cfg.Curation.ApplyMerges {
		t.Fatal("expected apply_merges=false from file")
	}
	if cfg.Curation.Rounds != 3 {
		t.Fatalf("unexpected rounds: %d", cfg.Curation.Rounds)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(configPath, []byte("[paths]\nstaging_dir = \"/tmp\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidate(t *testing.T) {
	base := t.TempDir()
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Paths.BaseDir = base
		cfg.Paths.RecordingsDir = filepath.Join(base, "recordings")
		cfg.Paths.SortingsDir = filepath.Join(base, "sortings")
		cfg.Paths.WaveformsDir = filepath.Join(base, "waveforms")
		cfg.Paths.AnalysisDir = filepath.Join(base, "analysis")
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "blank binary", mutate: func(c *config.Config) { c.Toolkit.Binary = "" }, wantErr: "toolkit.binary"},
		{name: "negative timeout", mutate: func(c *config.Config) { c.Toolkit.TimeoutSeconds = -1 }, wantErr: "toolkit.timeout_seconds"},
		{name: "zero rounds", mutate: func(c *config.Config) { c.Curation.Rounds = 0 }, wantErr: "curation.rounds"},
		{name: "bad level", mutate: func(c *config.Config) { c.Logging.Level = "loud" }, wantErr: "logging.level"},
		{
			name: "bad stage override",
			mutate: func(c *config.Config) {
				c.Logging.StageOverrides = map[string]string{"metrics": "chatty"}
			},
			wantErr: "logging.stage_overrides.metrics",
		},
		{
			name:    "shared artifact dir",
			mutate:  func(c *config.Config) { c.Paths.WaveformsDir = c.Paths.SortingsDir },
			wantErr: "must not share",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Toolkit.TimeoutSeconds != 3600 {
		t.Fatalf("unexpected timeout: %d", cfg.Toolkit.TimeoutSeconds)
	}
}
