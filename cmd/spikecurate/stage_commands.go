package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"spikecurate/internal/config"
	"spikecurate/internal/ledger"
	"spikecurate/internal/pipeline"
	"spikecurate/internal/stage"
)

// stageFlags are the parameter set names shared by the stage commands.
type stageFlags struct {
	waveformParams string
	metricParams   string
	autoParams     string
}

func (f *stageFlags) register(cmd *cobra.Command, waveform, metric, auto bool) {
	if waveform {
		cmd.Flags().StringVar(&f.waveformParams, "waveform-params", "", "Waveform parameter set (defaults to curation.waveform_params)")
	}
	if metric {
		cmd.Flags().StringVar(&f.metricParams, "metric-params", "", "Metric parameter set (defaults to curation.metric_params)")
	}
	if auto {
		cmd.Flags().StringVar(&f.autoParams, "auto-params", "", "Auto-curation parameter set (defaults to curation.auto_params)")
	}
}

func (f *stageFlags) job(cfg *config.Config, curationID string) *stage.Job {
	job := &stage.Job{
		CurationID:     curationID,
		WaveformParams: f.waveformParams,
		MetricParams:   f.metricParams,
		AutoParams:     f.autoParams,
	}
	if cfg == nil {
		return job
	}
	if job.WaveformParams == "" {
		job.WaveformParams = cfg.Curation.WaveformParams
	}
	if job.MetricParams == "" {
		job.MetricParams = cfg.Curation.MetricParams
	}
	if job.AutoParams == "" {
		job.AutoParams = cfg.Curation.AutoParams
	}
	return job
}

func newStageCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newSingleStageCommand(ctx, "waveforms", "Extract waveforms for a curation", true, false, false,
			func(set stageSet) stage.Handler { return set.waveforms },
			func(out io.Writer, job *stage.Job) {
				fmt.Fprintf(out, "Waveforms written to %s\n", job.Waveform.Path)
			}),
		newSingleStageCommand(ctx, "metrics", "Compute quality metrics for a curation", true, true, false,
			func(set stageSet) stage.Handler { return set.metrics },
			func(out io.Writer, job *stage.Job) {
				fmt.Fprintf(out, "Metrics written to %s\n", job.Metrics.Path)
			}),
		newSingleStageCommand(ctx, "autocurate", "Derive a child curation from stored metrics", true, true, true,
			func(set stageSet) stage.Handler { return set.auto },
			func(out io.Writer, job *stage.Job) {
				fmt.Fprintf(out, "Created curation %s (merged: %s)\n", job.AutoCuration.ResultCurationID, yesNo(job.AutoCuration.Merged))
			}),
		newSingleStageCommand(ctx, "finalize", "Export the accepted units of a curation", false, false, false,
			func(set stageSet) stage.Handler { return set.finalize },
			func(out io.Writer, job *stage.Job) {
				if job.Export == nil {
					fmt.Fprintln(out, "No accepted labeled units; nothing exported")
					return
				}
				fmt.Fprintf(out, "Export %d written with %d units\n", job.Export.ExportID, len(job.Export.Units))
			}),
		newRunCommand(ctx),
	}
}

func newSingleStageCommand(
	ctx *commandContext,
	use, short string,
	waveform, metric, auto bool,
	pick func(stageSet) stage.Handler,
	report func(io.Writer, *stage.Job),
) *cobra.Command {
	var flags stageFlags
	cmd := &cobra.Command{
		Use:   use + " <curation-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				set, err := ctx.stages(store)
				if err != nil {
					return err
				}
				job := flags.job(ctx.config, args[0])
				if err := ctx.runner(set).Stage(cmd.Context(), pick(set), job); err != nil {
					return err
				}
				if _, err := ctx.recordLedgerCounts(cmd.Context(), store); err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, job)
				}
				report(cmd.OutOrStdout(), job)
				return nil
			})
		},
	}
	flags.register(cmd, waveform, metric, auto)
	return cmd
}

type runOutput struct {
	Rounds          []*stage.Job            `json:"rounds"`
	FinalCurationID string                  `json:"final_curation_id"`
	Export          *ledger.FinalizedExport `json:"export,omitempty"`
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		flags    stageFlags
		rounds   int
		finalize bool
	)
	cmd := &cobra.Command{
		Use:   "run <curation-id>",
		Short: "Run waveform, metric, and auto-curation rounds, optionally finalizing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				set, err := ctx.stages(store)
				if err != nil {
					return err
				}
				report, runErr := ctx.runner(set).Run(cmd.Context(), pipeline.Request{
					CurationID:     args[0],
					WaveformParams: flags.waveformParams,
					MetricParams:   flags.metricParams,
					AutoParams:     flags.autoParams,
					Rounds:         rounds,
					Finalize:       finalize,
				})
				if _, err := ctx.recordLedgerCounts(cmd.Context(), store); err != nil && runErr == nil {
					runErr = err
				}
				if runErr != nil {
					return runErr
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, runOutput{
						Rounds:          report.Rounds,
						FinalCurationID: report.FinalCurationID,
						Export:          report.Export,
					})
				}
				out := cmd.OutOrStdout()
				for i, job := range report.Rounds {
					fmt.Fprintf(out, "Round %d: %s -> %s (merged: %s)\n", i+1, job.CurationID, job.AutoCuration.ResultCurationID, yesNo(job.AutoCuration.Merged))
				}
				fmt.Fprintf(out, "Final curation: %s\n", report.FinalCurationID)
				if finalize {
					if report.Export == nil {
						fmt.Fprintln(out, "No accepted labeled units; nothing exported")
					} else {
						fmt.Fprintf(out, "Export %d written with %d units\n", report.Export.ExportID, len(report.Export.Units))
					}
				}
				return nil
			})
		},
	}
	flags.register(cmd, true, true, true)
	cmd.Flags().IntVar(&rounds, "rounds", 0, "Number of rounds (defaults to curation.rounds)")
	cmd.Flags().BoolVar(&finalize, "finalize", false, "Finalize the last curation")
	return cmd
}
