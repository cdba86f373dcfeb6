// Package qualitymetrics computes per-unit quality metrics from a waveform
// artifact.
//
// Each metric kind is a concrete type implementing Metric that carries its
// own parameter shape. Some kinds make one library call for the whole unit
// set, others one call per unit; Kind.Mode reports which. Results are
// persisted as JSON of the form {"metric": {"unit": value}}.
package qualitymetrics
