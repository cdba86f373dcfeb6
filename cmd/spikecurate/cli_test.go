package main

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"

	"spikecurate/internal/ledger"
	"spikecurate/internal/services"
	"spikecurate/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out := mustRunCLI(t, env, "config", "validate")
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.cfg.Paths.LedgerPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out = mustRunCLI(t, env, "config", "init", "--path", target)
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, env.configPath); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	mustRunCLI(t, env, "config", "init", "--path", target, "--overwrite")

	out = mustRunCLI(t, env, "config", "show")
	requireContains(t, out, "[curation]")
	requireContains(t, out, env.cfg.Toolkit.Binary)
}

func TestParamsDefaultsAndList(t *testing.T) {
	env := setupCLITestEnv(t)

	mustRunCLI(t, env, "params", "defaults")
	mustRunCLI(t, env, "params", "defaults")

	var sets []ledger.ParamSet
	decodeJSON(t, mustRunCLI(t, env, "--json", "params", "list"), &sets)
	if len(sets) != 3 {
		t.Fatalf("expected 3 default sets, got %d", len(sets))
	}

	out := mustRunCLI(t, env, "params", "add-auto", "strict", "--params", `{"label_params":{"snr":["<",2,["reject"]]}}`)
	requireContains(t, out, `Stored auto_curation parameter set "strict"`)
	out = mustRunCLI(t, env, "params", "add-auto", "strict", "--params", `{}`)
	requireContains(t, out, "already exists")

	decodeJSON(t, mustRunCLI(t, env, "--json", "params", "list", "--kind", "auto_curation"), &sets)
	if len(sets) != 2 {
		t.Fatalf("expected 2 auto-curation sets, got %d", len(sets))
	}

	if _, _, err := runCLI(t, []string{"params", "add-metric", "bogus", "--params", `{"not_a_metric":{}}`}, env.configPath); !errors.Is(err, services.ErrUnsupportedMetric) {
		t.Fatalf("expected unsupported metric error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"params", "add-auto", "bad", "--params", `{"label_params":{"snr":["!=",2,["x"]]}}`}, env.configPath); err == nil {
		t.Fatal("expected invalid label operator to fail")
	}
}

func TestCurationInsertShowAndLineage(t *testing.T) {
	env := setupCLITestEnv(t)
	registerFixture(t, env, "rat01", map[int][]int64{1: {10, 20}, 2: {30}, 3: {40, 50, 60}})

	var root map[string]string
	decodeJSON(t, mustRunCLI(t, env, "--json", "curation", "insert", "--sorting", "rat01", "--description", "manual"), &root)
	rootID := root["curation_id"]
	if !strings.HasPrefix(rootID, "C_") {
		t.Fatalf("unexpected curation id %q", rootID)
	}

	childID := strings.TrimSpace(mustRunCLI(t, env, "curation", "insert",
		"--sorting", "rat01",
		"--parent", rootID,
		"--labels", `{"1":["accept"],"2":["noise"]}`,
		"--merge-groups", `[[1,3]]`))

	out := mustRunCLI(t, env, "curation", "show", childID)
	requireContains(t, out, "Parent:       "+rootID)
	requireContains(t, out, "Merge groups: 1+3")
	requireContains(t, out, "noise")

	var chain []ledger.Curation
	decodeJSON(t, mustRunCLI(t, env, "--json", "curation", "lineage", childID), &chain)
	if len(chain) != 2 || chain[0].ID != rootID || chain[1].ID != childID {
		t.Fatalf("unexpected lineage %+v", chain)
	}

	var view curatedViewOutput
	decodeJSON(t, mustRunCLI(t, env, "--json", "curation", "view", childID), &view)
	if len(view.Units) != 2 || view.Units[2] != 1 || view.Units[4] != 5 {
		t.Fatalf("unexpected curated view %+v", view.Units)
	}
	if len(view.Merges) != 1 || !slices.Equal(view.Merges[0].Constituents, []int{1, 3}) {
		t.Fatalf("unexpected merges %+v", view.Merges)
	}

	if _, _, err := runCLI(t, []string{"curation", "insert", "--sorting", "rat01", "--parent", "C_missing"}, env.configPath); err == nil {
		t.Fatal("expected insert under a missing parent to fail")
	}
}

func TestSortingDeleteRequiresTeamMembership(t *testing.T) {
	env := setupCLITestEnv(t)
	registerFixture(t, env, "rat02", map[int][]int64{1: {10}})
	mustRunCLI(t, env, "curation", "insert", "--sorting", "rat02")

	_, _, err := runCLI(t, []string{"sorting", "delete", "rat02"}, env.configPath)
	if !errors.Is(err, services.ErrPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}

	mustRunCLI(t, env, "team", "add", "lab", env.cfg.Permissions.User)
	out := mustRunCLI(t, env, "sorting", "delete", "rat02")
	requireContains(t, out, "Deleted sorting rat02 (1 curations)")

	var sortings []ledger.SortingRecord
	decodeJSON(t, mustRunCLI(t, env, "--json", "sorting", "list"), &sortings)
	if len(sortings) != 0 {
		t.Fatalf("expected no sortings after delete, got %+v", sortings)
	}
}

func TestCleanupRemovesOnlyUnreferencedArtifacts(t *testing.T) {
	env := setupCLITestEnv(t)
	registerFixture(t, env, "rat03", map[int][]int64{1: {10}})

	orphan := filepath.Join(env.cfg.Paths.WaveformsDir, "C_deadbeef_default", "waveforms.bin")
	if err := os.MkdirAll(filepath.Dir(orphan), 0o755); err != nil {
		t.Fatalf("mkdir orphan: %v", err)
	}
	if err := os.WriteFile(orphan, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}

	var dry cleanupOutput
	decodeJSON(t, mustRunCLI(t, env, "--json", "cleanup", "--dry-run"), &dry)
	if !dry.DryRun || len(dry.Removed) != 1 || dry.Removed[0] != filepath.Dir(orphan) {
		t.Fatalf("unexpected dry run result %+v", dry)
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Fatalf("dry run removed %s: %v", orphan, err)
	}

	out := mustRunCLI(t, env, "cleanup")
	requireContains(t, out, "Removed 1 entries")
	if _, err := os.Stat(filepath.Dir(orphan)); !os.IsNotExist(err) {
		t.Fatalf("expected orphan removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(env.cfg.Paths.SortingsDir, "rat03", "sorting.json")); err != nil {
		t.Fatalf("registered sorting must survive cleanup: %v", err)
	}
}

func TestRunExtractsScoresAndFinalizes(t *testing.T) {
	env := setupCLITestEnv(t)
	registerFixture(t, env, "rat04", map[int][]int64{1: {100, 200, 300}, 2: {400, 500}})
	mustRunCLI(t, env, "params", "defaults")
	mustRunCLI(t, env, "params", "add-auto", "snr_gate", "--params", `{"label_params":{"snr":[">",1,["good"]]}}`)
	rootID := strings.TrimSpace(mustRunCLI(t, env, "curation", "insert", "--sorting", "rat04"))

	var report runOutput
	decodeJSON(t, mustRunCLI(t, env, "--json", "run", rootID, "--auto-params", "snr_gate", "--finalize"), &report)
	prom, err := os.ReadFile(env.cfg.Telemetry.Textfile)
	if err != nil {
		t.Fatalf("read telemetry textfile: %v", err)
	}
	requireContains(t, string(prom), `spikecurate_stage_runs_total{stage="finalize",status="success"} 1`)

	if len(report.Rounds) != 1 {
		t.Fatalf("expected 1 round, got %d", len(report.Rounds))
	}
	round := report.Rounds[0]
	if round.Waveform == nil || round.Metrics == nil || round.AutoCuration == nil {
		t.Fatalf("round missing stage results: %+v", round)
	}
	if round.AutoCuration.Merged || report.FinalCurationID != round.AutoCuration.ResultCurationID {
		t.Fatalf("unexpected auto curation %+v", round.AutoCuration)
	}
	if report.Export == nil || len(report.Export.Units) != 2 {
		t.Fatalf("expected export with two units, got %+v", report.Export)
	}
	labeled, unlabeled := report.Export.Units[0], report.Export.Units[1]
	if labeled.UnitID != 1 || labeled.Label != "good" || labeled.SNR != 5 || labeled.NoiseOverlap != 0.1 {
		t.Fatalf("unexpected labeled unit %+v", labeled)
	}
	if unlabeled.UnitID != 2 || unlabeled.Label != "" || unlabeled.SNR != 0 || unlabeled.ISIViolation != 1 {
		t.Fatalf("unexpected unlabeled unit %+v", unlabeled)
	}

	out := mustRunCLI(t, env, "curation", "show", report.FinalCurationID)
	requireContains(t, out, "good")
	requireContains(t, out, "nn_isolation")

	exportID := strconv.FormatInt(report.Export.ExportID, 10)
	requireContains(t, mustRunCLI(t, env, "exports", "list", report.FinalCurationID), exportID)
	out = mustRunCLI(t, env, "exports", "show", exportID)
	requireContains(t, strings.ToUpper(out), "NOISE OVERLAP")
	requireContains(t, out, "5.000")
}

func TestStageCommandsRequireUpstreamArtifacts(t *testing.T) {
	env := setupCLITestEnv(t)
	registerFixture(t, env, "rat05", map[int][]int64{1: {10}})
	mustRunCLI(t, env, "params", "defaults")
	rootID := strings.TrimSpace(mustRunCLI(t, env, "curation", "insert", "--sorting", "rat05"))

	_, _, err := runCLI(t, []string{"metrics", rootID}, env.configPath)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error for metrics before waveforms, got %v", err)
	}
	_, _, err = runCLI(t, []string{"finalize", rootID}, env.configPath)
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error for finalize without metrics, got %v", err)
	}

	out := mustRunCLI(t, env, "waveforms", rootID)
	requireContains(t, out, "Waveforms written to")
	out = mustRunCLI(t, env, "metrics", rootID)
	requireContains(t, out, "Metrics written to")
	out = mustRunCLI(t, env, "autocurate", rootID)
	requireContains(t, out, "Created curation C_")
}

func TestStatusReportsChecksAndLedgerCounts(t *testing.T) {
	env := setupCLITestEnv(t)
	registerFixture(t, env, "rat06", map[int][]int64{1: {10}})

	out := mustRunCLI(t, env, "status")
	requireContains(t, out, "== Storage ==")
	requireContains(t, out, "Toolkit bridge:")
	requireContains(t, out, env.cfg.Toolkit.Binary)
	requireContains(t, out, "Autocuration:")
	requireContains(t, out, "Sortings:")

	var status struct {
		Ledger map[string]int64 `json:"ledger"`
	}
	decodeJSON(t, mustRunCLI(t, env, "--json", "status"), &status)
	if status.Ledger["sortings"] != 1 || status.Ledger["curations"] != 0 {
		t.Fatalf("unexpected ledger counts %+v", status.Ledger)
	}
}

func TestSortingRegisterImportCopiesFiles(t *testing.T) {
	env := setupCLITestEnv(t)
	outside := t.TempDir()
	recPath := filepath.Join(outside, "session.json")
	sortPath := filepath.Join(outside, "units.json")
	testsupport.WriteRecording(t, recPath)
	testsupport.WriteSorting(t, sortPath, map[int][]int64{1: {10}})

	var rec ledger.SortingRecord
	decodeJSON(t, mustRunCLI(t, env, "--json", "sorting", "register", "rat07",
		"--recording", recPath, "--sorting", sortPath, "--import"), &rec)
	if rec.RecordingPath != filepath.Join(env.cfg.Paths.RecordingsDir, "rat07.json") {
		t.Fatalf("unexpected imported recording path %q", rec.RecordingPath)
	}
	if rec.SortingPath != filepath.Join(env.cfg.Paths.SortingsDir, "rat07", "units.json") {
		t.Fatalf("unexpected imported sorting path %q", rec.SortingPath)
	}
	for _, path := range []string{rec.RecordingPath, rec.SortingPath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected imported file %s: %v", path, err)
		}
	}
}
