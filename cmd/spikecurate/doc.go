// Package main hosts the spikecurate CLI entrypoint and command graph.
//
// The Cobra-based command tree registers sortings, interval lists, teams and
// parameter sets, records manual curations, runs the waveform, metric,
// automatic-curation and finalization stages, and reports on the ledger. It
// centralizes configuration resolution, ledger access, logging and telemetry
// export so subcommands can focus on presentation.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main
