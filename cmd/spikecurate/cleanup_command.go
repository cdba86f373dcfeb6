package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"spikecurate/internal/ledger"
	"spikecurate/internal/storage"
	"spikecurate/internal/textutil"
)

type cleanupOutput struct {
	DryRun  bool              `json:"dry_run"`
	Removed []string          `json:"removed"`
	Bytes   int64             `json:"bytes"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove derived artifacts no ledger row references",
		Long: "Remove waveform, metric, analysis, and curated sorting files that no\n" +
			"ledger row references any longer. Registered recordings and sortings\n" +
			"are never touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				background := cmd.Context()
				active, err := store.ActivePaths(background)
				if err != nil {
					return err
				}
				cfg := ctx.config
				output := cleanupOutput{DryRun: dryRun, Removed: []string{}}
				for _, dir := range []string{
					cfg.Paths.WaveformsDir,
					cfg.Paths.AnalysisDir,
					filepath.Join(cfg.Paths.SortingsDir, "curated"),
				} {
					result := storage.CleanOrphaned(background, dir, active, dryRun, ctx.logger)
					output.Removed = append(output.Removed, result.Removed...)
					output.Bytes += result.Bytes
					for _, failure := range result.Errors {
						if output.Errors == nil {
							output.Errors = make(map[string]string)
						}
						output.Errors[failure.Path] = failure.Error.Error()
					}
				}
				if ctx.JSONMode() {
					if err := writeJSON(cmd, output); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					verb := "Removed"
					if dryRun {
						verb = "Would remove"
					}
					for _, path := range output.Removed {
						fmt.Fprintf(out, "%s %s\n", verb, path)
					}
					fmt.Fprintf(out, "%s %d entries (%s)\n", verb, len(output.Removed), textutil.FormatBytes(output.Bytes))
				}
				if len(output.Errors) > 0 {
					return fmt.Errorf("cleanup failed for %d entries", len(output.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be removed without deleting")
	return cmd
}
