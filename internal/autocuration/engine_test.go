package autocuration_test

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"

	"spikecurate/internal/autocuration"
	"spikecurate/internal/config"
	"spikecurate/internal/curation"
	"spikecurate/internal/ledger"
	"spikecurate/internal/qualitymetrics"
	"spikecurate/internal/services"
	"spikecurate/internal/stage"
	"spikecurate/internal/testsupport"
)

type fixture struct {
	cfg    *config.Config
	store  *ledger.Store
	engine *autocuration.Engine
	ref    string
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.RegisterSorting(t, cfg, store, "rat03", map[int][]int64{
		1: {10, 50}, 2: {20, 60}, 3: {30}, 4: {40, 80},
	})
	if err := autocuration.InsertDefaults(context.Background(), store); err != nil {
		t.Fatalf("InsertDefaults: %v", err)
	}
	return &fixture{cfg: cfg, store: store, engine: autocuration.NewEngine(cfg, store, nil), ref: rec.Ref}
}

func (f *fixture) addParams(t *testing.T, name string, p autocuration.Params) {
	t.Helper()
	set, err := autocuration.NewParamSet(name, p)
	if err != nil {
		t.Fatalf("NewParamSet: %v", err)
	}
	if _, err := f.store.InsertParamSet(context.Background(), set); err != nil {
		t.Fatalf("InsertParamSet: %v", err)
	}
}

func (f *fixture) putMetrics(t *testing.T, curationID string, metrics curation.Metrics) ledger.MetricKey {
	t.Helper()
	ctx := context.Background()
	key := ledger.MetricKey{CurationID: curationID, WaveformParams: "default", MetricParams: "franklab_default"}
	if err := f.store.PutWaveformArtifact(ctx, ledger.WaveformArtifact{CurationID: curationID, WaveformParams: "default", Path: "/tmp/wf"}); err != nil {
		t.Fatalf("PutWaveformArtifact: %v", err)
	}
	path := qualitymetrics.ResultPath(f.cfg.Paths.WaveformsDir, key)
	testsupport.WriteJSON(t, path, metrics)
	if err := f.store.PutMetricResult(ctx, ledger.MetricResult{MetricKey: key, Path: path}); err != nil {
		t.Fatalf("PutMetricResult: %v", err)
	}
	return key
}

func baseMetrics() curation.Metrics {
	return curation.Metrics{
		"snr":              {1: 6, 2: 1.2, 3: 4, 4: 8},
		"nn_noise_overlap": {1: 0.02, 2: 0.4, 3: 0.05, 4: 0.01},
	}
}

func TestRunWithEmptyParamsCarriesParentForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parentLabels := curation.Labels{3: {"good"}}
	root := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.ref, Labels: parentLabels})
	key := f.putMetrics(t, root, baseMetrics())

	out, err := f.engine.Run(ctx, ledger.AutoCurationKey{MetricKey: key, AutoParams: autocuration.DefaultParamSetName})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	child := out.Curation
	if out.Merged || child.ParentID != root {
		t.Fatalf("unexpected outcome merged=%v parent=%s", out.Merged, child.ParentID)
	}
	if !reflect.DeepEqual(child.Labels, parentLabels) {
		t.Fatalf("labels = %v, want parent labels %v", child.Labels, parentLabels)
	}
	if len(child.MergeGroups) != 0 {
		t.Fatalf("expected no merge groups, got %v", child.MergeGroups)
	}
	if !reflect.DeepEqual(child.Metrics, baseMetrics()) {
		t.Fatalf("metrics = %v, want round metrics", child.Metrics)
	}
	if _, err := os.Stat(out.Record.SortingPath); err != nil {
		t.Fatalf("curated sorting not written: %v", err)
	}
	stored, err := f.store.GetAutoCuration(ctx, out.Record.AutoCurationKey)
	if err != nil || stored == nil || stored.ResultCurationID != child.ID {
		t.Fatalf("auto curation row missing or wrong: %+v, %v", stored, err)
	}
	lineage, err := f.store.Lineage(ctx, child.ID)
	if err != nil || len(lineage) != 2 {
		t.Fatalf("lineage = %d records, err %v", len(lineage), err)
	}
}

func TestRunAppliesLabelRules(t *testing.T) {
	f := newFixture(t)
	f.addParams(t, "label", autocuration.Params{Label: autocuration.LabelParams{
		"nn_noise_overlap": {Op: ">", Threshold: 0.1, Labels: []string{"noise", "reject"}},
	}})
	root := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.ref, Labels: curation.Labels{2: {"mua"}}})
	key := f.putMetrics(t, root, baseMetrics())

	out, err := f.engine.Run(context.Background(), ledger.AutoCurationKey{MetricKey: key, AutoParams: "label"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := curation.Labels{2: {"mua", "noise", "reject"}}
	if !reflect.DeepEqual(out.Curation.Labels, want) {
		t.Fatalf("labels = %v, want %v", out.Curation.Labels, want)
	}
	if out.Merged || len(out.Curation.Metrics) != 2 {
		t.Fatalf("label-only round must carry metrics, got %v", out.Curation.Metrics)
	}
}

func TestRunMergeDropsMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addParams(t, "merge", autocuration.Params{Merge: autocuration.MergeParams{Groups: [][]int{{2, 1}}}})
	root := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.ref})
	key := f.putMetrics(t, root, baseMetrics())

	out, err := f.engine.Run(ctx, ledger.AutoCurationKey{MetricKey: key, AutoParams: "merge"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Merged || !out.Record.Merged {
		t.Fatal("expected merged round")
	}
	if len(out.Curation.Metrics) != 0 {
		t.Fatalf("merged round must drop metrics, got %v", out.Curation.Metrics)
	}
	if !reflect.DeepEqual(out.Curation.MergeGroups, curation.MergeGroups{{1, 2}}) {
		t.Fatalf("merge groups = %v", out.Curation.MergeGroups)
	}
	view, _, err := f.store.CuratedView(ctx, out.Curation.ID)
	if err != nil {
		t.Fatalf("CuratedView: %v", err)
	}
	if !reflect.DeepEqual(view.UnitIDs(), []int{3, 4, 5}) {
		t.Fatalf("view units = %v", view.UnitIDs())
	}

	// A second round proposes merging the synthetic unit with unit 3.
	f.addParams(t, "merge2", autocuration.Params{Merge: autocuration.MergeParams{Groups: [][]int{{5, 3}}}})
	key2 := f.putMetrics(t, out.Curation.ID, curation.Metrics{"snr": {3: 1, 4: 2, 5: 3}})
	out2, err := f.engine.Run(ctx, ledger.AutoCurationKey{MetricKey: key2, AutoParams: "merge2"})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if !reflect.DeepEqual(out2.Curation.MergeGroups, curation.MergeGroups{{1, 2, 3}}) {
		t.Fatalf("second round groups = %v", out2.Curation.MergeGroups)
	}
	lineage, err := f.store.Lineage(ctx, out2.Curation.ID)
	if err != nil || len(lineage) != 3 {
		t.Fatalf("lineage = %d records, err %v", len(lineage), err)
	}
}

func TestRunMergeCarriesParentLabelsOntoMergedUnit(t *testing.T) {
	f := newFixture(t)
	f.addParams(t, "merge", autocuration.Params{Merge: autocuration.MergeParams{Groups: [][]int{{1, 2}}}})
	root := testsupport.MustInsert(t, f.store, ledger.CurationInput{
		SortingRef: f.ref,
		Labels:     curation.Labels{1: {"noise"}, 2: {"good"}, 4: {"mua"}},
	})
	key := f.putMetrics(t, root, baseMetrics())

	out, err := f.engine.Run(context.Background(), ledger.AutoCurationKey{MetricKey: key, AutoParams: "merge"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Merged {
		t.Fatal("expected merged round")
	}
	want := curation.Labels{5: {"noise", "good"}, 4: {"mua"}}
	if !reflect.DeepEqual(out.Curation.Labels, want) {
		t.Fatalf("labels = %v, want %v", out.Curation.Labels, want)
	}
	if len(out.DroppedLabels) != 0 {
		t.Fatalf("dropped = %v, want none", out.DroppedLabels)
	}
}

func TestRunMergeFailsWhenApplicationDisabled(t *testing.T) {
	f := newFixture(t, testsupport.WithApplyMerges(false))
	ctx := context.Background()
	f.addParams(t, "merge", autocuration.Params{Merge: autocuration.MergeParams{Groups: [][]int{{1, 2}}}})
	root := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.ref})
	key := f.putMetrics(t, root, baseMetrics())

	autoKey := ledger.AutoCurationKey{MetricKey: key, AutoParams: "merge"}
	if _, err := f.engine.Run(ctx, autoKey); !errors.Is(err, services.ErrUnimplementedMerge) {
		t.Fatalf("expected unimplemented merge error, got %v", err)
	}
	all, err := f.store.ListCurations(ctx, f.ref)
	if err != nil || len(all) != 1 {
		t.Fatalf("expected no new curation, found %d (%v)", len(all), err)
	}
	if rec, _ := f.store.GetAutoCuration(ctx, autoKey); rec != nil {
		t.Fatalf("unexpected auto curation row %+v", rec)
	}
}

func TestRunPreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.ref})

	missingMetrics := ledger.AutoCurationKey{
		MetricKey:  ledger.MetricKey{CurationID: root, WaveformParams: "default", MetricParams: "franklab_default"},
		AutoParams: autocuration.DefaultParamSetName,
	}
	if _, err := f.engine.Run(ctx, missingMetrics); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error for missing metrics, got %v", err)
	}
	missingParent := missingMetrics
	missingParent.CurationID = "C_00000000"
	if _, err := f.engine.Run(ctx, missingParent); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error for missing parent, got %v", err)
	}
}

func TestExecuteRecordsResult(t *testing.T) {
	f := newFixture(t)
	root := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.ref})
	f.putMetrics(t, root, baseMetrics())

	job := &stage.Job{CurationID: root}
	if err := f.engine.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.AutoCuration == nil || job.AutoCuration.ResultCurationID == "" {
		t.Fatalf("job not populated: %+v", job)
	}
}
