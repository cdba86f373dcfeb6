package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"spikecurate/internal/ledger"
	"spikecurate/internal/preflight"
	"spikecurate/internal/stage"
	"spikecurate/internal/textutil"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show filesystem, toolkit and ledger status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			background := cmd.Context()
			checks := preflight.RunAll(background, cfg)
			binaries := preflight.CheckSystemDeps(cfg)

			var (
				counts map[string]int64
				health []stage.Health
			)
			if err := ctx.withStore(func(store *ledger.Store) error {
				counts, err = ctx.recordLedgerCounts(background, store)
				if err != nil {
					return err
				}
				set, err := ctx.stages(store)
				if err != nil {
					return err
				}
				handlers := set.handlers()
				for _, handler := range []stage.Handler{handlers.Waveforms, handlers.Metrics, handlers.AutoCuration, handlers.Finalize} {
					health = append(health, handler.HealthCheck(background))
				}
				return nil
			}); err != nil {
				return err
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]any{
					"checks":   checks,
					"binaries": binaries,
					"stages":   health,
					"ledger":   counts,
				})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out, renderSectionHeader("Storage", colorize))
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}

			fmt.Fprintln(out, renderSectionHeader("Toolkit", colorize))
			for _, bin := range binaries {
				switch {
				case bin.Available:
					fmt.Fprintln(out, renderStatusLine(bin.Name, statusOK, bin.Path, colorize))
				case bin.Optional:
					fmt.Fprintln(out, renderStatusLine(bin.Name, statusWarn, bin.Detail, colorize))
				default:
					fmt.Fprintln(out, renderStatusLine(bin.Name, statusError, bin.Detail+" ("+bin.Description+")", colorize))
				}
			}

			fmt.Fprintln(out, renderSectionHeader("Stages", colorize))
			for _, h := range health {
				level := statusOK
				if !h.Ready {
					level = statusError
				}
				fmt.Fprintln(out, renderStatusLine(textutil.HumanizeKey(h.Name), level, h.Summary(), colorize))
			}

			fmt.Fprintln(out, renderSectionHeader("Ledger", colorize))
			tables := make([]string, 0, len(counts))
			for table := range counts {
				tables = append(tables, table)
			}
			slices.Sort(tables)
			for _, table := range tables {
				fmt.Fprintln(out, renderStatusLine(textutil.HumanizeKey(table), statusInfo, fmt.Sprintf("%d", counts[table]), colorize))
			}
			return nil
		},
	}
}
