package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"spikecurate/internal/config"
)

// LogFileName is the file NewFromConfig mirrors output to under the
// configured log directory.
const LogFileName = "spikecurate.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Writers receive every record. Empty means stderr.
	Writers []io.Writer
	// Source adds the caller's file:line. Debug loggers always include it.
	Source bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	w := combineWriters(opts.Writers)
	source := opts.Source || level <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newConsoleHandler(w, level, source)), nil
	case "json":
		return slog.New(newJSONHandler(w, level, source)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig creates the CLI logger. Output goes to stderr so command
// results on stdout stay machine readable, and is mirrored to LogFileName
// under the configured log directory.
//
// When stage overrides are configured the handler runs at the most verbose
// level any stage asks for and a gate enforces the global level; ForStage
// swaps the gate for the stage's own level.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}

	writers := []io.Writer{os.Stderr}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		file, err := openLogFile(filepath.Join(dir, LogFileName))
		if err != nil {
			return nil, err
		}
		writers = append(writers, file)
	}

	global := parseLevel(cfg.Logging.Level)
	floor := global
	for _, level := range cfg.Logging.StageOverrides {
		floor = min(floor, parseLevel(level))
	}
	logger, err := New(Options{
		Level:   floor.String(),
		Format:  cfg.Logging.Format,
		Writers: writers,
	})
	if err != nil {
		return nil, err
	}
	if floor == global {
		return logger, nil
	}
	return withMinLevel(logger, global), nil
}

// ForStage applies the configured per-stage level override, if any.
func ForStage(logger *slog.Logger, cfg *config.Config, stage string) *slog.Logger {
	if logger == nil || cfg == nil {
		return logger
	}
	level, ok := cfg.Logging.StageOverrides[stage]
	if !ok {
		return logger
	}
	return withMinLevel(logger, parseLevel(level))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func combineWriters(writers []io.Writer) io.Writer {
	kept := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			kept = append(kept, w)
		}
	}
	switch len(kept) {
	case 0:
		return os.Stderr
	case 1:
		return kept[0]
	default:
		return io.MultiWriter(kept...)
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}
