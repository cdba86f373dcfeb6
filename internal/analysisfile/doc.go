// Package analysisfile stores derived analysis files next to their source
// NWB file. Each analysis file is a JSON document holding typed objects
// (waveforms, quality metrics, units tables) addressed by object id, and is
// registered in the ledger once written.
package analysisfile
