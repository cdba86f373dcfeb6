// Package ledger persists curation records and every row derived from them in
// SQLite.
//
// The ledger is append-only for curations: records are immutable after
// Insert, children point at their parent by id, and the root of every lineage
// has the parent id curation.RootParent. Alongside curations it stores the
// registered sortings, parameter sets, waveform and metric artifact rows,
// automatic-curation provenance, finalized exports, and the interval,
// analysis-file, and team registries the stages consult.
//
// Large payloads (spike trains, waveforms, metric JSON) live on disk; rows
// hold their paths. Deleting a sorting cascades to all dependent rows.
package ledger
