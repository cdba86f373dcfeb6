package preflight

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"spikecurate/internal/config"
	"spikecurate/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_Failures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(t.TempDir(), "nope")},
		{"file", file},
		{"blank", " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckDirectoryAccess("test", tt.path)
			if result.Passed {
				t.Fatalf("expected failure for %q", tt.path)
			}
			if result.Detail == "" {
				t.Fatal("expected non-empty detail")
			}
		})
	}
}

func TestCheckLedgerPath(t *testing.T) {
	dir := t.TempDir()
	fresh := CheckLedgerPath(filepath.Join(dir, "ledger.db"))
	if !fresh.Passed {
		t.Fatalf("expected pass for creatable ledger, got %s", fresh.Detail)
	}

	existing := filepath.Join(dir, "existing.db")
	if err := os.WriteFile(existing, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := CheckLedgerPath(existing); !got.Passed {
		t.Fatalf("expected pass for existing ledger, got %s", got.Detail)
	}

	if got := CheckLedgerPath(dir); got.Passed {
		t.Fatal("expected failure when ledger path is a directory")
	}
	if got := CheckLedgerPath(filepath.Join(dir, "missing", "ledger.db")); got.Passed {
		t.Fatal("expected failure when ledger directory is missing")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsEachPath(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.RecordingsDir = base
	cfg.Paths.SortingsDir = base
	cfg.Paths.WaveformsDir = base
	cfg.Paths.AnalysisDir = filepath.Join(base, "missing")
	cfg.Paths.TempDir = base
	cfg.Paths.LedgerPath = filepath.Join(base, "ledger.db")

	results := RunAll(context.Background(), &cfg)
	if len(results) != 6 {
		t.Fatalf("expected 6 results, got %d", len(results))
	}
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Analysis directory" {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestCheckBinaries(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	results := CheckBinaries([]Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: ""},
	})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if !results[0].Available || results[0].Path != present || results[0].Detail != "" {
		t.Fatalf("unexpected status for present binary: %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" || results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected status for missing binary: %#v", results[1])
	}
	if results[2].Available || results[2].Detail != "command not configured" {
		t.Fatalf("unexpected status for blank command: %#v", results[2])
	}
}

func TestCheckSystemDepsUsesToolkitBinary(t *testing.T) {
	cfg := config.Default()
	cfg.Toolkit.Binary = "clearly-not-present-bridge"
	results := CheckSystemDeps(&cfg)
	if len(results) != 1 || results[0].Command != "clearly-not-present-bridge" || results[0].Available {
		t.Fatalf("unexpected results: %#v", results)
	}
}

func TestCheckSystemDepsFindsInstalledBridge(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithBridge("#!/bin/sh\nexit 0\n"))
	results := CheckSystemDeps(cfg)
	if len(results) != 1 || !results[0].Available || results[0].Path != cfg.Toolkit.Binary {
		t.Fatalf("unexpected results: %#v", results)
	}
}
