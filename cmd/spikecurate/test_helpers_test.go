package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"spikecurate/internal/config"
	"spikecurate/internal/testsupport"
)

// stubBridge answers every toolkit subcommand with one fixed result: an SNR
// of 5 for unit 1, ISI violation and spike counts for units 1 and 2, and a
// nearest-neighbor score of 0.1.
const stubBridge = `#!/bin/sh
cat >/dev/null
echo "PROGRESS:50,working"
echo 'RESULT:{"values":{"1":5},"counts":{"1":3,"2":4},"value":0.1}'
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithBridge(stubBridge))
	base := testsupport.BaseDir(cfg)
	cfg.Toolkit.TimeoutSeconds = 30
	cfg.Logging.Level = "warn"
	cfg.Telemetry.Textfile = filepath.Join(base, "metrics.prom")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

// mustRunCLI runs args against env and fails the test on error.
func mustRunCLI(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("%s: %v (stderr: %s)", strings.Join(args, " "), err, stderr)
	}
	return out
}

func decodeJSON(t *testing.T, raw string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// registerFixture writes recording and sorting documents for ref and
// registers them through the CLI under team "lab".
func registerFixture(t *testing.T, env *cliTestEnv, ref string, units map[int][]int64) {
	t.Helper()
	recPath := filepath.Join(env.cfg.Paths.RecordingsDir, ref+".json")
	sortPath := filepath.Join(env.cfg.Paths.SortingsDir, ref, "sorting.json")
	testsupport.WriteRecording(t, recPath)
	testsupport.WriteSorting(t, sortPath, units)
	mustRunCLI(t, env, "sorting", "register", ref,
		"--nwb", ref+".nwb",
		"--recording", recPath,
		"--sorting", sortPath,
		"--sort-interval", "0,2",
		"--team", "lab")
}
