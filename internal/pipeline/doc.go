// Package pipeline runs stage handlers with uniform logging and telemetry
// and chains them into curation rounds.
//
// Run is the single place where a stage gets its request id, context log
// fields and start/complete/failure events. Runner strings the waveform,
// metric and automatic-curation stages into rounds, feeding each round's
// resulting curation into the next, and can finalize the last one.
package pipeline
