// Package waveform extracts per-unit waveform snippets for a curation.
//
// The stage resolves the curated view of a curation, optionally whitens the
// recording, and delegates extraction to an Extractor. Artifacts live at a
// path derived from the curation id and parameter set name; re-running the
// stage discards whatever was there before.
package waveform
