// Package logging builds the slog loggers shared by every curation stage.
//
// Two output formats exist. The console format prints one line per record
// with the component and curation id lifted into the prefix; the JSON format
// emits ts/level/msg objects and writes non-finite metric values as strings.
// NewFromConfig mirrors output to a file under the log directory and honours
// per-stage level overrides through ForStage.
//
// WithContext copies the curation id, stage, correlation id and round number
// carried on a context.Context onto a logger.
package logging
