// Package storage reclaims disk space held by artifacts the ledger no
// longer references. Sorting deletions cascade through the ledger but leave
// files behind; CleanOrphaned removes them.
package storage
