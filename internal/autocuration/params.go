package autocuration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	"spikecurate/internal/ledger"
	"spikecurate/internal/services"
)

// DefaultParamSetName names the parameter set inserted by InsertDefaults.
const DefaultParamSetName = "default"

// MergeParams lists unit groups proposed for merging. Unit ids refer to the
// curated view the metrics were computed on.
type MergeParams struct {
	Groups [][]int `json:"groups,omitempty"`
}

// Empty reports whether no merge is requested.
func (p MergeParams) Empty() bool {
	for _, g := range p.Groups {
		if len(g) > 0 {
			return false
		}
	}
	return true
}

// LabelRule attaches Labels to units whose metric value satisfies
// `value Op Threshold`. It decodes from either an object or the compact
// array form [op, threshold, labels].
type LabelRule struct {
	Op        string   `json:"op"`
	Threshold float64  `json:"threshold"`
	Labels    []string `json:"labels"`
}

// LabelParams maps a metric name to its labelling rule.
type LabelParams map[string]LabelRule

// Params is a decoded automatic curation parameter set.
type Params struct {
	Merge MergeParams `json:"merge_params"`
	Label LabelParams `json:"label_params"`
}

// UnmarshalJSON accepts the object and array encodings.
func (r *LabelRule) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var parts []json.RawMessage
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		if len(parts) != 3 {
			return fmt.Errorf("label rule array needs 3 elements, got %d", len(parts))
		}
		var rule LabelRule
		if err := json.Unmarshal(parts[0], &rule.Op); err != nil {
			return fmt.Errorf("label rule operator: %w", err)
		}
		if err := json.Unmarshal(parts[1], &rule.Threshold); err != nil {
			return fmt.Errorf("label rule threshold: %w", err)
		}
		if err := json.Unmarshal(parts[2], &rule.Labels); err != nil {
			return fmt.Errorf("label rule labels: %w", err)
		}
		*r = rule
		return r.Validate()
	}
	type plain LabelRule
	var rule plain
	if err := json.Unmarshal(trimmed, &rule); err != nil {
		return err
	}
	*r = LabelRule(rule)
	return r.Validate()
}

// Validate checks the operator and labels.
func (r LabelRule) Validate() error {
	switch r.Op {
	case ">", ">=", "<", "<=", "==":
	default:
		return fmt.Errorf("unsupported label operator %q", r.Op)
	}
	if len(r.Labels) == 0 {
		return fmt.Errorf("label rule %s %v assigns no labels", r.Op, r.Threshold)
	}
	if math.IsNaN(r.Threshold) {
		return fmt.Errorf("label rule threshold is NaN")
	}
	return nil
}

// Matches reports whether value satisfies the rule. NaN never matches.
func (r LabelRule) Matches(value float64) bool {
	if math.IsNaN(value) {
		return false
	}
	switch r.Op {
	case ">":
		return value > r.Threshold
	case ">=":
		return value >= r.Threshold
	case "<":
		return value < r.Threshold
	case "<=":
		return value <= r.Threshold
	case "==":
		return value == r.Threshold
	}
	return false
}

// NewParamSet validates p and encodes it as a ledger parameter set.
func NewParamSet(name string, p Params) (ledger.ParamSet, error) {
	for metric, rule := range p.Label {
		if err := rule.Validate(); err != nil {
			return ledger.ParamSet{}, services.Wrap(services.ErrValidation, "autocuration", "param set",
				fmt.Sprintf("%s: %s", name, metric), err)
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return ledger.ParamSet{}, err
	}
	return ledger.ParamSet{Kind: ledger.ParamAutoCuration, Name: name, Params: raw}, nil
}

// InsertDefaults stores the empty default parameter set unless it exists.
func InsertDefaults(ctx context.Context, store *ledger.Store) error {
	set, err := NewParamSet(DefaultParamSetName, Params{})
	if err != nil {
		return err
	}
	_, err = store.InsertParamSet(ctx, set)
	return err
}

// LoadParams resolves a named parameter set.
func LoadParams(ctx context.Context, store *ledger.Store, name string) (Params, error) {
	set, err := store.RequireParamSet(ctx, ledger.ParamAutoCuration, name)
	if err != nil {
		return Params{}, err
	}
	var p Params
	if err := json.Unmarshal(set.Params, &p); err != nil {
		return Params{}, services.Wrap(services.ErrValidation, "autocuration", "decode params", name, err)
	}
	return p, nil
}
