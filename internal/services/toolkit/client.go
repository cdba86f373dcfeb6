package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"spikecurate/internal/logging"
	"spikecurate/internal/qualitymetrics"
	"spikecurate/internal/services"
	"spikecurate/internal/sorting"
	"spikecurate/internal/waveform"
)

// Subcommands understood by the bridge binary.
const (
	CmdExtract        = "extract-waveforms"
	CmdWhiten         = "whiten"
	CmdSNR            = "snr"
	CmdISIViolations  = "isi-violations"
	CmdNumSpikes      = "num-spikes"
	CmdFiringRate     = "firing-rate"
	CmdNNIsolation    = "nn-isolation"
	CmdNNNoiseOverlap = "nn-noise-overlap"
)

// Line prefixes of the bridge's robot output.
const (
	prefixResult   = "RESULT:"
	prefixError    = "ERROR:"
	prefixProgress = "PROGRESS:"
)

const maxLineBytes = 16 * 1024 * 1024

// Progress is one parsed progress line.
type Progress struct {
	Command string
	Percent float64
	Message string
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLogger sets the logger used for bridge output.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "toolkit")
	}
}

// WithProgress registers a callback for progress lines.
func WithProgress(fn func(Progress)) Option {
	return func(c *Client) {
		c.progress = fn
	}
}

// Client wraps bridge invocations.
type Client struct {
	binary   string
	timeout  time.Duration
	exec     Executor
	logger   *slog.Logger
	progress func(Progress)
}

var (
	_ waveform.Extractor     = (*Client)(nil)
	_ waveform.Whitener      = (*Client)(nil)
	_ qualitymetrics.Library = (*Client)(nil)
)

// New constructs a bridge client. A non-positive timeout disables the
// per-invocation deadline.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("toolkit binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
		logger:  logging.NewComponentLogger(nil, "toolkit"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Binary returns the configured bridge executable.
func (c *Client) Binary() string { return c.binary }

type extractRequest struct {
	RecordingPath string                  `json:"recording_path"`
	SortingPath   string                  `json:"sorting_path"`
	Destination   string                  `json:"destination"`
	Options       waveform.ExtractOptions `json:"options"`
}

// ExtractWaveforms implements waveform.Extractor.
func (c *Client) ExtractWaveforms(ctx context.Context, recording *sorting.Recording, view *sorting.Sorting, destination string, opts waveform.ExtractOptions) (*waveform.Handle, error) {
	if recording == nil || view == nil {
		return nil, services.Wrap(services.ErrValidation, "toolkit", CmdExtract, "recording and sorting required", nil)
	}
	if view.Path == "" {
		return nil, services.Wrap(services.ErrValidation, "toolkit", CmdExtract, "sorting must be saved before extraction", nil)
	}
	var handle waveform.Handle
	err := c.call(ctx, CmdExtract, extractRequest{
		RecordingPath: recording.Path,
		SortingPath:   view.Path,
		Destination:   destination,
		Options:       opts,
	}, &handle)
	if err != nil {
		return nil, err
	}
	if handle.Path == "" {
		handle.Path = destination
	}
	return &handle, nil
}

type whitenRequest struct {
	RecordingPath string `json:"recording_path"`
	Destination   string `json:"destination"`
}

type pathResponse struct {
	Path string `json:"path"`
}

// Whiten implements waveform.Whitener. The returned recording keeps the
// timing of the input and points at the whitened copy.
func (c *Client) Whiten(ctx context.Context, recording *sorting.Recording, destination string) (*sorting.Recording, error) {
	if recording == nil {
		return nil, services.Wrap(services.ErrValidation, "toolkit", CmdWhiten, "recording required", nil)
	}
	var resp pathResponse
	if err := c.call(ctx, CmdWhiten, whitenRequest{RecordingPath: recording.Path, Destination: destination}, &resp); err != nil {
		return nil, err
	}
	out := *recording
	out.Path = destination
	if resp.Path != "" {
		out.Path = resp.Path
	}
	out.Whitened = true
	return &out, nil
}

type metricRequest struct {
	Waveforms qualitymetrics.WaveformSet `json:"waveforms"`
	Unit      *int                       `json:"unit,omitempty"`
	PeakSign  string                     `json:"peak_sign,omitempty"`
	Params    any                        `json:"params,omitempty"`
}

type valuesResponse struct {
	Values map[int]float64 `json:"values"`
}

type countsResponse struct {
	Counts map[int]int `json:"counts"`
}

type valueResponse struct {
	Value *float64 `json:"value"`
}

// SNR implements qualitymetrics.Library.
func (c *Client) SNR(ctx context.Context, wf qualitymetrics.WaveformSet, peakSign string, opts qualitymetrics.SNROptions) (map[int]float64, error) {
	var resp valuesResponse
	if err := c.call(ctx, CmdSNR, metricRequest{Waveforms: wf, PeakSign: peakSign, Params: opts}, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// ISIViolationCounts implements qualitymetrics.Library.
func (c *Client) ISIViolationCounts(ctx context.Context, wf qualitymetrics.WaveformSet, params qualitymetrics.ISIViolation) (map[int]int, error) {
	var resp countsResponse
	if err := c.call(ctx, CmdISIViolations, metricRequest{Waveforms: wf, Params: params}, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

// NumSpikes implements qualitymetrics.Library.
func (c *Client) NumSpikes(ctx context.Context, wf qualitymetrics.WaveformSet) (map[int]int, error) {
	var resp countsResponse
	if err := c.call(ctx, CmdNumSpikes, metricRequest{Waveforms: wf}, &resp); err != nil {
		return nil, err
	}
	return resp.Counts, nil
}

// FiringRate implements qualitymetrics.Library.
func (c *Client) FiringRate(ctx context.Context, wf qualitymetrics.WaveformSet) (map[int]float64, error) {
	var resp valuesResponse
	if err := c.call(ctx, CmdFiringRate, metricRequest{Waveforms: wf}, &resp); err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// NNIsolation implements qualitymetrics.Library.
func (c *Client) NNIsolation(ctx context.Context, wf qualitymetrics.WaveformSet, unit int, params qualitymetrics.NNParams) (float64, error) {
	return c.unitValue(ctx, CmdNNIsolation, wf, unit, params)
}

// NNNoiseOverlap implements qualitymetrics.Library.
func (c *Client) NNNoiseOverlap(ctx context.Context, wf qualitymetrics.WaveformSet, unit int, params qualitymetrics.NNParams) (float64, error) {
	return c.unitValue(ctx, CmdNNNoiseOverlap, wf, unit, params)
}

func (c *Client) unitValue(ctx context.Context, cmd string, wf qualitymetrics.WaveformSet, unit int, params qualitymetrics.NNParams) (float64, error) {
	var resp valueResponse
	if err := c.call(ctx, cmd, metricRequest{Waveforms: wf, Unit: &unit, Params: params}, &resp); err != nil {
		return 0, err
	}
	if resp.Value == nil {
		return 0, services.Wrap(services.ErrExternalTool, "toolkit", cmd,
			fmt.Sprintf("no value returned for unit %d", unit), nil)
	}
	return *resp.Value, nil
}

// call runs one bridge subcommand and decodes its RESULT line into out.
func (c *Client) call(ctx context.Context, cmd string, request, out any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return services.Wrap(services.ErrValidation, "toolkit", cmd, "encode request", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		result   string
		toolErrs []string
	)
	started := time.Now()
	runErr := c.exec.Run(runCtx, c.binary, []string{cmd, "--robot"}, bytes.NewReader(payload), func(line string) {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, prefixResult):
			result = strings.TrimSpace(strings.TrimPrefix(line, prefixResult))
		case strings.HasPrefix(line, prefixError):
			toolErrs = append(toolErrs, strings.TrimSpace(strings.TrimPrefix(line, prefixError)))
		default:
			if update, ok := parseProgress(cmd, line); ok {
				if c.progress != nil {
					c.progress(update)
				}
				return
			}
			c.logger.Debug("toolkit output", logging.String("command", cmd), logging.String("line", line))
		}
	})
	logger := logging.WithContext(ctx, c.logger)
	if runErr != nil || len(toolErrs) > 0 {
		detail := strings.Join(toolErrs, "; ")
		if detail == "" {
			detail = "bridge command failed"
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			detail = fmt.Sprintf("timed out after %s", c.timeout)
		}
		logging.ErrorWithContext(logger, "toolkit command failed", "toolkit_failed",
			logging.String("command", cmd),
			logging.Duration("duration", time.Since(started)),
			logging.String(logging.FieldErrorHint, "check toolkit.binary and the bridge's Python environment"),
			logging.Error(runErr))
		return services.Wrap(services.ErrExternalTool, "toolkit", cmd, detail, runErr)
	}
	if result == "" {
		return services.Wrap(services.ErrExternalTool, "toolkit", cmd, "bridge printed no result", nil)
	}
	if err := json.Unmarshal([]byte(result), out); err != nil {
		return services.Wrap(services.ErrExternalTool, "toolkit", cmd, "decode result", err)
	}
	logger.Debug("toolkit command complete",
		logging.String("command", cmd),
		logging.Duration("duration", time.Since(started)))
	return nil
}

// parseProgress decodes "PROGRESS:<percent>[,<message>]".
func parseProgress(cmd, line string) (Progress, bool) {
	if !strings.HasPrefix(line, prefixProgress) {
		return Progress{}, false
	}
	payload := strings.TrimPrefix(line, prefixProgress)
	percentText, message, _ := strings.Cut(payload, ",")
	percent, err := strconv.ParseFloat(strings.TrimSpace(percentText), 64)
	if err != nil || percent < 0 || percent > 100 {
		return Progress{}, false
	}
	return Progress{Command: cmd, Percent: percent, Message: strings.TrimSpace(message)}, true
}
