// Package preflight provides readiness checks for the filesystem paths and
// external binaries spikecurate depends on.
//
// The CLI "spikecurate status" command runs RunAll and CheckSystemDeps and
// renders the results; stage commands call RunAll before touching the ledger
// so a misconfigured base directory fails fast instead of midway through a
// round.
package preflight
