// Package curation defines the value types carried by every curation record:
// per-unit labels, merge groups, and metric snapshots.
//
// The types are plain maps and slices with explicit Clone methods so stages
// can derive new records without aliasing their parent's state. Metrics
// encode non-finite values as JSON null and decode null back to NaN, which
// keeps toolkit output that contains NaN storable as canonical JSON.
package curation
