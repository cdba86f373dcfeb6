// Package toolkit mediates access to the external spike-sorting bridge binary
// that extracts waveforms, whitens recordings and computes quality metrics.
//
// Each operation runs the bridge once with a subcommand, writes a JSON request
// to its stdin and decodes the last JSON line printed on stdout. Progress
// lines are forwarded to the logger. The Client satisfies the extractor and
// metric library interfaces of the waveform and qualitymetrics stages.
//
// Prefer this package over ad-hoc exec.Command usage so timeouts and error
// classification stay consistent across stages.
package toolkit
