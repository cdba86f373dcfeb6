package waveform_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"spikecurate/internal/analysisfile"
	"spikecurate/internal/config"
	"spikecurate/internal/curation"
	"spikecurate/internal/ledger"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
	"spikecurate/internal/stage"
	"spikecurate/internal/testsupport"
	"spikecurate/internal/waveform"
)

type fakeExtractor struct {
	calls     int
	recording *sorting.Recording
	view      *sorting.Sorting
	dest      string
	opts      waveform.ExtractOptions
	err       error
}

func (f *fakeExtractor) ExtractWaveforms(_ context.Context, rec *sorting.Recording, view *sorting.Sorting, dest string, opts waveform.ExtractOptions) (*waveform.Handle, error) {
	f.calls++
	f.recording, f.view, f.dest, f.opts = rec, view, dest, opts
	if f.err != nil {
		return nil, f.err
	}
	return &waveform.Handle{Path: dest, UnitIDs: view.UnitIDs()}, nil
}

type fakeWhitener struct {
	calls int
}

func (f *fakeWhitener) Whiten(_ context.Context, rec *sorting.Recording, dest string) (*sorting.Recording, error) {
	f.calls++
	out := *rec
	out.Whitened = true
	out.Path = dest
	return &out, nil
}

type fixture struct {
	cfg       *config.Config
	store     *ledger.Store
	record    *ledger.SortingRecord
	extractor *fakeExtractor
	whitener  *fakeWhitener
	stage     *waveform.Stage
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rec := testsupport.RegisterSorting(t, cfg, store, "rat01", map[int][]int64{1: {10, 30}, 2: {20}, 3: {5, 40}})
	if err := waveform.InsertDefaults(context.Background(), store); err != nil {
		t.Fatalf("InsertDefaults: %v", err)
	}
	files := analysisfile.NewJSONStore(cfg.Paths.AnalysisDir, store, nil)
	f := &fixture{cfg: cfg, store: store, record: rec, extractor: &fakeExtractor{}, whitener: &fakeWhitener{}}
	f.stage = waveform.NewStage(cfg, store, files, f.extractor, f.whitener, nil)
	return f
}

func TestExtractReplacesArtifactAndRecordsRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := testsupport.MustInsert(t, f.store, ledger.CurationInput{
		SortingRef:  f.record.Ref,
		MergeGroups: curation.MergeGroups{{1, 3}},
	})

	path := waveform.ArtifactPath(f.cfg.Paths.WaveformsDir, id, waveform.DefaultParamSetName)
	stale := filepath.Join(path, "stale.bin")
	testsupport.WriteJSON(t, stale, map[string]int{"old": 1})

	art, err := f.stage.Extract(ctx, id, waveform.DefaultParamSetName)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if art.Path != path {
		t.Fatalf("artifact path = %q, want %q", art.Path, path)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale artifact content removed, stat err=%v", err)
	}
	if f.extractor.calls != 1 || f.extractor.dest != path {
		t.Fatalf("unexpected extractor calls=%d dest=%q", f.extractor.calls, f.extractor.dest)
	}
	if got := f.extractor.view.UnitIDs(); !reflect.DeepEqual(got, []int{2, 4}) {
		t.Fatalf("extractor saw units %v, want merged view [2 4]", got)
	}
	if f.extractor.view.Path != filepath.Join(path, "sorting.json") {
		t.Fatalf("curated view not persisted next to artifact: %q", f.extractor.view.Path)
	}
	want := waveform.DefaultParams().ExtractOptions()
	if f.extractor.opts != want {
		t.Fatalf("extract options = %+v, want %+v", f.extractor.opts, want)
	}
	if f.whitener.calls != 0 {
		t.Fatal("whitener must not run when whiten=false")
	}

	stored, err := f.stage.Load(ctx, id, waveform.DefaultParamSetName)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if stored.AnalysisFileName == "" || stored.ObjectID == "" || stored.ObjectID != art.ObjectID {
		t.Fatalf("unexpected stored artifact %+v", stored)
	}
	registered, err := f.store.GetAnalysisFile(ctx, stored.AnalysisFileName)
	if err != nil || registered == nil {
		t.Fatalf("analysis file not registered: %v", err)
	}

	if _, err := f.stage.Extract(ctx, id, waveform.DefaultParamSetName); err != nil {
		t.Fatalf("second Extract: %v", err)
	}
	if f.extractor.calls != 2 {
		t.Fatalf("expected regeneration on repeat, calls=%d", f.extractor.calls)
	}
}

func TestExtractWhitensWhenRequested(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	params := waveform.DefaultParams()
	params.Whiten = true
	set, err := waveform.NewParamSet("whitened", params)
	if err != nil {
		t.Fatalf("NewParamSet: %v", err)
	}
	if _, err := f.store.InsertParamSet(ctx, set); err != nil {
		t.Fatalf("InsertParamSet: %v", err)
	}
	id := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.record.Ref})

	if _, err := f.stage.Extract(ctx, id, "whitened"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if f.whitener.calls != 1 {
		t.Fatalf("expected whitener call, got %d", f.whitener.calls)
	}
	if !f.extractor.recording.Whitened {
		t.Fatal("extractor should receive the whitened recording")
	}
}

func TestExtractMissingRecordingIsResourceError(t *testing.T) {
	f := newFixture(t)
	id := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.record.Ref})
	if err := os.Remove(f.record.RecordingPath); err != nil {
		t.Fatal(err)
	}
	_, err := f.stage.Extract(context.Background(), id, waveform.DefaultParamSetName)
	if !errors.Is(err, services.ErrResource) {
		t.Fatalf("expected resource error, got %v", err)
	}
	if f.extractor.calls != 0 {
		t.Fatal("extractor must not run when inputs fail to load")
	}
}

func TestExtractUnknownCurationOrParams(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.stage.Extract(ctx, "C_deadbeef", waveform.DefaultParamSetName); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error, got %v", err)
	}
	id := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.record.Ref})
	if _, err := f.stage.Extract(ctx, id, "nope"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.stage.Load(ctx, id, waveform.DefaultParamSetName); !errors.Is(err, services.ErrPrecondition) {
		t.Fatalf("expected precondition error from Load, got %v", err)
	}
}

func TestExecuteFillsJob(t *testing.T) {
	f := newFixture(t)
	id := testsupport.MustInsert(t, f.store, ledger.CurationInput{SortingRef: f.record.Ref})
	job := &stage.Job{CurationID: id}
	if err := f.stage.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.WaveformParams != waveform.DefaultParamSetName || job.Waveform == nil {
		t.Fatalf("job not populated: %+v", job)
	}
	if h := f.stage.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy stage, got %+v", h)
	}
}

func TestLoadParamsKeepsDefaultsForMissingFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	if _, err := store.InsertParamSet(ctx, ledger.ParamSet{Kind: ledger.ParamWaveform, Name: "wide", Params: json.RawMessage(`{"ms_before":2}`)}); err != nil {
		t.Fatalf("InsertParamSet: %v", err)
	}
	params, err := waveform.LoadParams(ctx, store, "wide")
	if err != nil {
		t.Fatalf("LoadParams: %v", err)
	}
	if params.MsBefore != 2 || params.MsAfter != 0.5 || params.MaxSpikesPerUnit != 5000 {
		t.Fatalf("unexpected params %+v", params)
	}

	if _, err := waveform.NewParamSet("bad", waveform.Params{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty params, got %v", err)
	}
}
