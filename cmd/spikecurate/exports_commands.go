package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"spikecurate/internal/ledger"
	"spikecurate/internal/textutil"
)

func newExportsCommand(ctx *commandContext) *cobra.Command {
	exportsCmd := &cobra.Command{
		Use:   "exports",
		Short: "Inspect finalized unit exports",
	}
	exportsCmd.AddCommand(newExportsListCommand(ctx))
	exportsCmd.AddCommand(newExportsShowCommand(ctx))
	return exportsCmd
}

func newExportsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <curation-id>",
		Short: "List exports of a curation, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				ids, err := store.ListExports(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if ids == nil {
						ids = []int64{}
					}
					return writeJSON(cmd, ids)
				}
				if len(ids) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Curation %s has no exports\n", args[0])
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

var exportColumns = []string{"unit_id", "label", "noise_overlap", "isolation_score", "isi_violation", "snr", "firing_rate", "num_spikes"}

func newExportsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <export-id>",
		Short: "Show the units of one export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exportID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("export id %q: %w", args[0], err)
			}
			return ctx.withStore(func(store *ledger.Store) error {
				export, err := store.GetExport(cmd.Context(), exportID)
				if err != nil {
					return err
				}
				if export == nil {
					return fmt.Errorf("export %d not found", exportID)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, export)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Export %d of %s (%s, %s)\n", export.ExportID, export.CurationID,
					export.AnalysisFileName, export.CreatedAt.Local().Format(time.DateTime))
				columns := make([]column, len(exportColumns))
				for i, name := range exportColumns {
					columns[i] = column{header: textutil.HumanizeKey(name), align: alignRight}
				}
				columns[1].align = alignLeft
				rows := make([][]string, 0, len(export.Units))
				for _, u := range export.Units {
					rows = append(rows, []string{
						strconv.Itoa(u.UnitID),
						u.Label,
						formatFloat(u.NoiseOverlap),
						formatFloat(u.IsolationScore),
						formatFloat(u.ISIViolation),
						formatFloat(u.SNR),
						formatFloat(u.FiringRate),
						strconv.Itoa(u.NumSpikes),
					})
				}
				fmt.Fprint(out, renderTable(columns, rows))
				return nil
			})
		},
	}
}
