package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"spikecurate/internal/config"
)

// ConfigOption adjusts the config produced by NewConfig.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig returns a default config whose artifact roots and ledger live
// under a fresh temp directory, with "tester" as the operator.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.Paths{
		BaseDir:       base,
		RecordingsDir: filepath.Join(base, "recordings"),
		SortingsDir:   filepath.Join(base, "sortings"),
		WaveformsDir:  filepath.Join(base, "waveforms"),
		AnalysisDir:   filepath.Join(base, "analysis"),
		TempDir:       filepath.Join(base, "tmp"),
		LogDir:        filepath.Join(base, "logs"),
		LedgerPath:    filepath.Join(base, "ledger.db"),
	}
	cfg.Permissions.User = "tester"

	b := &configBuilder{t: t, baseDir: base, cfg: &cfg}
	for _, opt := range opts {
		opt(b)
	}
	return b.cfg
}

// WithApplyMerges toggles merge application.
func WithApplyMerges(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Curation.ApplyMerges = enabled
	}
}

// WithUser sets the operator identity.
func WithUser(user string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Permissions.User = user
	}
}

// WithBridge installs script as an executable toolkit bridge under
// <base>/bin and points toolkit.binary at its absolute path.
func WithBridge(script string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "bin", "si-bridge")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			b.t.Fatalf("write bridge stub: %v", err)
		}
		b.cfg.Toolkit.Binary = path
	}
}

// BaseDir returns the temp root backing cfg.
func BaseDir(cfg *config.Config) string {
	return cfg.Paths.BaseDir
}
