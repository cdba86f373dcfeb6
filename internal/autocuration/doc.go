// Package autocuration derives a new curation from a parent curation and
// the quality metrics computed for it.
//
// The decision helpers (MergeGroups, ProposeMerges, ProposeLabels,
// MergeLabels) are pure: they never modify their arguments and always return
// fresh collections. Engine wires them to the ledger and the sorting store.
package autocuration
