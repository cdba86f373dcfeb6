package curation_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"spikecurate/internal/curation"
)

func TestNewIDShape(t *testing.T) {
	id := curation.NewID()
	if !strings.HasPrefix(id, curation.IDPrefix) {
		t.Fatalf("id %q missing prefix", id)
	}
	if len(id) != len(curation.IDPrefix)+8 {
		t.Fatalf("id %q has unexpected length", id)
	}
}

func TestMergeGroupsValidate(t *testing.T) {
	tests := []struct {
		name    string
		groups  curation.MergeGroups
		wantErr bool
	}{
		{"empty", nil, false},
		{"disjoint", curation.MergeGroups{{1, 2}, {3, 4}}, false},
		{"overlap", curation.MergeGroups{{1, 2}, {2, 3}}, true},
		{"empty group", curation.MergeGroups{{}}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.groups.Validate()
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestClonesDoNotAlias(t *testing.T) {
	labels := curation.Labels{1: {"good"}}
	cl := labels.Clone()
	cl[1][0] = "noise"
	if labels[1][0] != "good" {
		t.Fatal("labels clone aliases parent")
	}

	groups := curation.MergeGroups{{1, 2}}
	cg := groups.Clone()
	cg[0][0] = 9
	if groups[0][0] != 1 {
		t.Fatal("merge group clone aliases parent")
	}

	metrics := curation.Metrics{"snr": {1: 2}}
	cm := metrics.Clone()
	cm["snr"][1] = 5
	if metrics["snr"][1] != 2 {
		t.Fatal("metrics clone aliases parent")
	}
}

func TestLabelsHasAndJoined(t *testing.T) {
	labels := curation.Labels{1: {"noise", "mua"}, 2: {"good"}}
	reject := map[string]struct{}{"noise": {}, "reject": {}}
	if !labels.Has(1, reject) || labels.Has(2, reject) || labels.Has(3, reject) {
		t.Fatal("unexpected Has results")
	}
	if got := labels.Joined(1); got != "noise,mua" {
		t.Fatalf("Joined = %q", got)
	}
}

func TestMetricsJSONHandlesNaN(t *testing.T) {
	in := curation.Metrics{
		"snr":           {1: 3.5, 2: math.NaN()},
		"isi_violation": {1: 0.01},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if want := `{"isi_violation":{"1":0.01},"snr":{"1":3.5,"2":"NaN"}}`; string(data) != want {
		t.Fatalf("encoded = %s, want %s", data, want)
	}

	var out curation.Metrics
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !math.IsNaN(out["snr"][2]) || out["snr"][1] != 3.5 {
		t.Fatalf("unexpected decoded metrics %v", out)
	}
	again, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if string(again) != string(data) {
		t.Fatalf("round trip not byte-identical: %s vs %s", again, data)
	}
	if got := out.Units(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Units = %v", got)
	}
}

func TestMetricsJSONPreservesNonFiniteValues(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		wire  string
		check func(float64) bool
	}{
		{"positive infinity", math.Inf(1), `"+Inf"`, func(f float64) bool { return math.IsInf(f, 1) }},
		{"negative infinity", math.Inf(-1), `"-Inf"`, func(f float64) bool { return math.IsInf(f, -1) }},
		{"nan", math.NaN(), `"NaN"`, math.IsNaN},
		{"finite", -2.25, `-2.25`, func(f float64) bool { return f == -2.25 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data, err := json.Marshal(curation.Metrics{"amplitude_cv": {3: tc.value}})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if want := `{"amplitude_cv":{"3":` + tc.wire + `}}`; string(data) != want {
				t.Fatalf("encoded = %s, want %s", data, want)
			}
			var out curation.Metrics
			if err := json.Unmarshal(data, &out); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := out["amplitude_cv"][3]; !tc.check(got) {
				t.Fatalf("decoded %v, want %v", got, tc.value)
			}
		})
	}
}

func TestMetricsJSONDecodesLegacyNullAsNaN(t *testing.T) {
	var out curation.Metrics
	if err := json.Unmarshal([]byte(`{"snr":{"1":null}}`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !math.IsNaN(out["snr"][1]) {
		t.Fatalf("snr[1] = %v, want NaN", out["snr"][1])
	}
	if err := json.Unmarshal([]byte(`{"snr":{"1":"big"}}`), &out); err == nil {
		t.Fatal("expected error for unknown string value")
	}
}
