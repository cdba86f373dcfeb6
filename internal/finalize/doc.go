// Package finalize exports the accepted units of a curation.
//
// Units labelled "reject" or "noise" are excluded. Accepted units are written
// as a units table to a new analysis file and flattened into an immutable
// export in the ledger, one row per unit.
package finalize
