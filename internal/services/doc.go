// Package services defines shared utilities consumed by the curation stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp curation IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so every stage reports
//     validation, resource, precondition, and lineage failures the same way.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error classification, observability) stays uniform across the pipeline.
package services
