package autocuration

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"

	"spikecurate/internal/curation"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
)

func assertDisjoint(t *testing.T, groups curation.MergeGroups) {
	t.Helper()
	if err := groups.Validate(); err != nil {
		t.Fatalf("merge groups not disjoint: %v", err)
	}
}

func TestMergeGroups(t *testing.T) {
	tests := []struct {
		name       string
		parent     curation.MergeGroups
		proposals  [][]int
		want       curation.MergeGroups
		wantMerged bool
	}{
		{
			name:   "no proposals",
			parent: curation.MergeGroups{{3, 1}},
			want:   curation.MergeGroups{{1, 3}},
		},
		{
			name:       "extends group sharing first unit",
			parent:     curation.MergeGroups{{1, 2}},
			proposals:  [][]int{{1, 5}},
			want:       curation.MergeGroups{{1, 2, 5}},
			wantMerged: true,
		},
		{
			name:       "appends new group",
			parent:     curation.MergeGroups{{1, 2}},
			proposals:  [][]int{{7, 4}},
			want:       curation.MergeGroups{{1, 2}, {4, 7}},
			wantMerged: true,
		},
		{
			name:       "resolves overlap transitively",
			parent:     curation.MergeGroups{{1, 2}, {5, 6}},
			proposals:  [][]int{{2, 5}},
			want:       curation.MergeGroups{{1, 2, 5, 6}},
			wantMerged: true,
		},
		{
			name:      "already merged",
			parent:    curation.MergeGroups{{1, 2}},
			proposals: [][]int{{2, 1}},
			want:      curation.MergeGroups{{1, 2}},
		},
		{
			name:      "singleton proposal ignored",
			proposals: [][]int{{4}},
			want:      curation.MergeGroups{},
		},
		{
			name:       "empty parent",
			proposals:  [][]int{{9, 8}, {3, 8}},
			want:       curation.MergeGroups{{3, 8, 9}},
			wantMerged: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			parentCopy := tc.parent.Clone()
			proposalsJSON, _ := json.Marshal(tc.proposals)

			got, merged := MergeGroups(tc.parent, tc.proposals)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("groups = %v, want %v", got, tc.want)
			}
			if merged != tc.wantMerged {
				t.Fatalf("merged = %v, want %v", merged, tc.wantMerged)
			}
			assertDisjoint(t, got)
			if tc.parent != nil && !reflect.DeepEqual(tc.parent, parentCopy) {
				t.Fatalf("parent mutated: %v", tc.parent)
			}
			after, _ := json.Marshal(tc.proposals)
			if string(after) != string(proposalsJSON) {
				t.Fatalf("proposals mutated: %s", after)
			}
		})
	}
}

func TestProposeMerges(t *testing.T) {
	metrics := curation.Metrics{"snr": {1: 2, 2: 3, 3: 4}}
	got, err := ProposeMerges(metrics, MergeParams{})
	if err != nil || got != nil {
		t.Fatalf("empty params should propose nothing, got %v, %v", got, err)
	}
	got, err = ProposeMerges(metrics, MergeParams{Groups: [][]int{{1, 2}, {}}})
	if err != nil {
		t.Fatalf("ProposeMerges: %v", err)
	}
	if !reflect.DeepEqual(got, [][]int{{1, 2}}) {
		t.Fatalf("unexpected proposals %v", got)
	}
	if _, err := ProposeMerges(metrics, MergeParams{Groups: [][]int{{1, 9}}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestExpandProposals(t *testing.T) {
	applied := []sorting.AppliedMerge{{UnitID: 10, Constituents: []int{1, 3}}}
	got := expandProposals([][]int{{10, 4}, {5, 6}}, applied)
	want := [][]int{{1, 3, 4}, {5, 6}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expanded = %v, want %v", got, want)
	}
}

func TestProposeLabelsAcceptsBothRuleForms(t *testing.T) {
	var params Params
	raw := `{"label_params": {
		"nn_noise_overlap": [">", 0.1, ["noise", "reject"]],
		"snr": {"op": "<", "threshold": 2, "labels": ["mua"]}
	}}`
	if err := json.Unmarshal([]byte(raw), &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	metrics := curation.Metrics{
		"nn_noise_overlap": {1: 0.05, 2: 0.3, 3: math.NaN()},
		"snr":              {1: 1.5, 2: 5, 3: 2},
	}
	got, err := ProposeLabels(metrics, params.Label)
	if err != nil {
		t.Fatalf("ProposeLabels: %v", err)
	}
	want := curation.Labels{1: {"mua"}, 2: {"noise", "reject"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}

	if _, err := ProposeLabels(curation.Metrics{}, params.Label); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing metric, got %v", err)
	}
}

func TestLabelRuleRejectsBadInput(t *testing.T) {
	cases := []string{
		`["~", 1, ["noise"]]`,
		`[">", 1]`,
		`{"op": ">", "threshold": 1, "labels": []}`,
	}
	for _, raw := range cases {
		var rule LabelRule
		if err := json.Unmarshal([]byte(raw), &rule); err == nil {
			t.Fatalf("expected error decoding %s", raw)
		}
	}
}

func TestMergeLabels(t *testing.T) {
	parent := curation.Labels{1: {"good"}, 2: {"mua"}}
	parentCopy := parent.Clone()

	got := MergeLabels(parent, curation.Labels{1: {"good", "accept"}, 4: {"noise"}})
	want := curation.Labels{1: {"good", "accept"}, 2: {"mua"}, 4: {"noise"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(parent, parentCopy) {
		t.Fatalf("parent mutated: %v", parent)
	}
	if same := MergeLabels(parent, curation.Labels{}); !reflect.DeepEqual(same, parent) {
		t.Fatalf("empty proposal changed labels: %v", same)
	}
}

func TestRemapLabelsFollowsConstituents(t *testing.T) {
	oldApplied := []sorting.AppliedMerge{{UnitID: 6, Constituents: []int{1, 3}}}
	newApplied := []sorting.AppliedMerge{
		{UnitID: 6, Constituents: []int{0, 2}},
		{UnitID: 7, Constituents: []int{1, 3}},
	}
	labels := curation.Labels{6: {"mua"}, 2: {"good"}, 4: {"noise"}, 9: {"good"}}

	got, dropped := remapLabels(labels, oldApplied, newApplied, []int{4, 5, 6, 7})
	want := curation.Labels{7: {"mua"}, 6: {"good"}, 4: {"noise"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(dropped, []int{9}) {
		t.Fatalf("dropped = %v, want [9]", dropped)
	}
}

func TestRemapLabelsUnionsAbsorbedUnits(t *testing.T) {
	newApplied := []sorting.AppliedMerge{{UnitID: 5, Constituents: []int{1, 2}}}
	labels := curation.Labels{1: {"noise"}, 2: {"good", "noise"}, 3: {"mua"}}

	got, dropped := remapLabels(labels, nil, newApplied, []int{3, 4, 5})
	want := curation.Labels{5: {"noise", "good"}, 3: {"mua"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	if len(dropped) != 0 {
		t.Fatalf("dropped = %v, want none", dropped)
	}
}
