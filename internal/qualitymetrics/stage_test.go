package qualitymetrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"testing"

	"spikecurate/internal/analysisfile"
	"spikecurate/internal/config"
	"spikecurate/internal/ledger"
	"spikecurate/internal/qualitymetrics"
	"spikecurate/internal/services"
	"spikecurate/internal/stage"
	"spikecurate/internal/testsupport"
)

type fakeLibrary struct {
	calls    int
	peakSign string
	snrOpts  qualitymetrics.SNROptions
	nnUnits  []int
}

func (f *fakeLibrary) SNR(_ context.Context, wf qualitymetrics.WaveformSet, peakSign string, opts qualitymetrics.SNROptions) (map[int]float64, error) {
	f.calls++
	f.peakSign, f.snrOpts = peakSign, opts
	out := map[int]float64{99: 1}
	for _, u := range wf.UnitIDs {
		out[u] = float64(u) * 2
	}
	return out, nil
}

func (f *fakeLibrary) ISIViolationCounts(_ context.Context, wf qualitymetrics.WaveformSet, _ qualitymetrics.ISIViolation) (map[int]int, error) {
	f.calls++
	return map[int]int{1: 1, 2: 0, 3: 1}, nil
}

func (f *fakeLibrary) NumSpikes(_ context.Context, wf qualitymetrics.WaveformSet) (map[int]int, error) {
	f.calls++
	return map[int]int{1: 4, 2: 2, 3: 0}, nil
}

func (f *fakeLibrary) FiringRate(_ context.Context, wf qualitymetrics.WaveformSet) (map[int]float64, error) {
	f.calls++
	out := map[int]float64{}
	for _, u := range wf.UnitIDs {
		out[u] = 0.5
	}
	return out, nil
}

func (f *fakeLibrary) NNIsolation(_ context.Context, _ qualitymetrics.WaveformSet, unit int, _ qualitymetrics.NNParams) (float64, error) {
	f.calls++
	f.nnUnits = append(f.nnUnits, unit)
	return 0.9, nil
}

func (f *fakeLibrary) NNNoiseOverlap(_ context.Context, _ qualitymetrics.WaveformSet, unit int, _ qualitymetrics.NNParams) (float64, error) {
	f.calls++
	return 0.1, nil
}

type fixture struct {
	cfg     *config.Config
	store   *ledger.Store
	lib     *fakeLibrary
	stage   *qualitymetrics.Stage
	curID   string
	wfParam string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.RegisterSorting(t, cfg, store, "rat02", map[int][]int64{1: {1, 5, 9, 12}, 2: {3, 30}, 3: {}})
	id := testsupport.MustInsert(t, store, ledger.CurationInput{SortingRef: rec.Ref})
	if err := store.PutWaveformArtifact(context.Background(), ledger.WaveformArtifact{
		CurationID: id, WaveformParams: "default", Path: "/tmp/wf",
	}); err != nil {
		t.Fatalf("PutWaveformArtifact: %v", err)
	}
	lib := &fakeLibrary{}
	files := analysisfile.NewJSONStore(cfg.Paths.AnalysisDir, store, nil)
	return &fixture{
		cfg:     cfg,
		store:   store,
		lib:     lib,
		stage:   qualitymetrics.NewStage(cfg, store, files, lib, nil),
		curID:   id,
		wfParam: "default",
	}
}

func (f *fixture) addParams(t *testing.T, name string, params map[string]json.RawMessage) {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.InsertParamSet(context.Background(), ledger.ParamSet{Kind: ledger.ParamMetric, Name: name, Params: raw}); err != nil {
		t.Fatalf("InsertParamSet: %v", err)
	}
}

func TestComputeDispatchesEachKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addParams(t, "all", map[string]json.RawMessage{
		"snr":              json.RawMessage(`{"peak_sign":"pos","chunk_size":500}`),
		"isi_violation":    nil,
		"nn_isolation":     nil,
		"nn_noise_overlap": nil,
		"num_spikes":       nil,
		"firing_rate":      nil,
	})
	key := ledger.MetricKey{CurationID: f.curID, WaveformParams: f.wfParam, MetricParams: "all"}

	res, err := f.stage.Compute(ctx, key)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if f.lib.peakSign != "pos" || f.lib.snrOpts.ChunkSize != 500 || f.lib.snrOpts.NumChunksPerSegment != 20 {
		t.Fatalf("snr called with peak=%q opts=%+v", f.lib.peakSign, f.lib.snrOpts)
	}
	if len(f.lib.nnUnits) != 3 {
		t.Fatalf("nn_isolation should run once per unit, got %v", f.lib.nnUnits)
	}
	if _, ok := res.Metrics["snr"][99]; ok {
		t.Fatal("values for units outside the view must be dropped")
	}
	isi := res.Metrics["isi_violation"]
	if isi[1] != 0.25 || isi[2] != 0 || !math.IsNaN(isi[3]) {
		t.Fatalf("unexpected isi fractions %v", isi)
	}
	if res.Metrics["num_spikes"][1] != 4 {
		t.Fatalf("unexpected num_spikes %v", res.Metrics["num_spikes"])
	}

	wantPath := qualitymetrics.ResultPath(f.cfg.Paths.WaveformsDir, key)
	if res.Row.Path != wantPath {
		t.Fatalf("result path = %q, want %q", res.Row.Path, wantPath)
	}
	if _, err := os.Stat(wantPath); err != nil {
		t.Fatalf("metrics JSON missing: %v", err)
	}
	loaded, err := f.stage.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded["snr"][2] != 4 || !math.IsNaN(loaded["isi_violation"][3]) {
		t.Fatalf("unexpected loaded metrics %v", loaded)
	}
}

func TestComputeUnknownMetricFailsBeforeLibraryCall(t *testing.T) {
	f := newFixture(t)
	f.addParams(t, "bogus", map[string]json.RawMessage{"snr": nil, "drift": nil})
	_, err := f.stage.Compute(context.Background(), ledger.MetricKey{CurationID: f.curID, WaveformParams: f.wfParam, MetricParams: "bogus"})
	if !errors.Is(err, services.ErrUnsupportedMetric) {
		t.Fatalf("expected unsupported metric error, got %v", err)
	}
	if f.lib.calls != 0 {
		t.Fatalf("library called %d times before validation", f.lib.calls)
	}
}

func TestComputeRequiresWaveforms(t *testing.T) {
	f := newFixture(t)
	if err := qualitymetrics.InsertDefaults(context.Background(), f.store); err != nil {
		t.Fatalf("InsertDefaults: %v", err)
	}
	_, err := f.stage.Compute(context.Background(), ledger.MetricKey{CurationID: f.curID, WaveformParams: "other", MetricParams: qualitymetrics.DefaultParamSetName})
	if !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestExecuteUsesDefaults(t *testing.T) {
	f := newFixture(t)
	if err := qualitymetrics.InsertDefaults(context.Background(), f.store); err != nil {
		t.Fatalf("InsertDefaults: %v", err)
	}
	job := &stage.Job{CurationID: f.curID}
	if err := f.stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.MetricParams != qualitymetrics.DefaultParamSetName || job.Metrics == nil {
		t.Fatalf("job not populated: %+v", job)
	}
}
