package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spikecurate/internal/fileutil"
	"spikecurate/internal/ledger"
	"spikecurate/internal/permission"
)

func newSortingCommand(ctx *commandContext) *cobra.Command {
	sortingCmd := &cobra.Command{
		Use:   "sorting",
		Short: "Register, list, and delete upstream sortings",
	}
	sortingCmd.AddCommand(newSortingRegisterCommand(ctx))
	sortingCmd.AddCommand(newSortingListCommand(ctx))
	sortingCmd.AddCommand(newSortingDeleteCommand(ctx))
	return sortingCmd
}

func newSortingRegisterCommand(ctx *commandContext) *cobra.Command {
	var rec ledger.SortingRecord
	var interval string
	var importFiles bool

	cmd := &cobra.Command{
		Use:   "register <sorting-ref>",
		Short: "Register a sorting so curations can reference it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec.Ref = args[0]
			if interval != "" {
				parsed, err := parseInterval(interval)
				if err != nil {
					return err
				}
				rec.SortInterval = parsed
			}
			if importFiles {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				recordingPath := filepath.Join(cfg.Paths.RecordingsDir, rec.Ref+filepath.Ext(rec.RecordingPath))
				if err := fileutil.CopyFileVerified(rec.RecordingPath, recordingPath); err != nil {
					return fmt.Errorf("import recording: %w", err)
				}
				sortingPath := filepath.Join(cfg.Paths.SortingsDir, rec.Ref, filepath.Base(rec.SortingPath))
				if err := fileutil.CopyFileVerified(rec.SortingPath, sortingPath); err != nil {
					return fmt.Errorf("import sorting: %w", err)
				}
				rec.RecordingPath, rec.SortingPath = recordingPath, sortingPath
			}
			return ctx.withStore(func(store *ledger.Store) error {
				if err := store.RegisterSorting(cmd.Context(), rec); err != nil {
					return err
				}
				registered, err := store.GetSorting(cmd.Context(), rec.Ref)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, registered)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered sorting %s\n", registered.Ref)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rec.NWBFileName, "nwb", "", "Source NWB file name")
	cmd.Flags().StringVar(&rec.RecordingPath, "recording", "", "Recording document path")
	cmd.Flags().StringVar(&rec.SortingPath, "sorting", "", "Sorting document path")
	cmd.Flags().StringVar(&rec.SortIntervalListName, "interval-list", "", "Interval list holding the sort's valid times")
	cmd.Flags().StringVar(&interval, "sort-interval", "", "Sort interval as start,end seconds")
	cmd.Flags().StringVar(&rec.TeamName, "team", "", "Owning team")
	cmd.Flags().BoolVar(&importFiles, "import", false, "Copy the recording and sorting into the managed directories before registering")
	_ = cmd.MarkFlagRequired("recording")
	_ = cmd.MarkFlagRequired("sorting")
	return cmd
}

func newSortingListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered sortings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				sortings, err := store.ListSortings(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if sortings == nil {
						sortings = []*ledger.SortingRecord{}
					}
					return writeJSON(cmd, sortings)
				}
				if len(sortings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sortings registered")
					return nil
				}
				rows := make([][]string, 0, len(sortings))
				for _, rec := range sortings {
					rows = append(rows, []string{
						rec.Ref,
						rec.NWBFileName,
						rec.TeamName,
						fmt.Sprintf("%g-%g", rec.SortInterval[0], rec.SortInterval[1]),
						rec.TimeOfSort.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
					{header: "Sorting"},
					{header: "NWB File"},
					{header: "Team"},
					{header: "Interval (s)", align: alignRight},
					{header: "Sorted"},
				}, rows))
				return nil
			})
		},
	}
}

func newSortingDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <sorting-ref>...",
		Short: "Delete sortings and every curation derived from them",
		Long: `Delete sortings and, by cascade, their curations, artifact records and
exports. The configured permissions.user must belong to each sorting's team.
Files on disk are left for "spikecurate cleanup".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			background := cmd.Context()
			return ctx.withStore(func(store *ledger.Store) error {
				records := make([]*ledger.SortingRecord, 0, len(args))
				for _, ref := range args {
					rec, err := store.GetSorting(background, strings.TrimSpace(ref))
					if err != nil {
						return err
					}
					if rec == nil {
						return fmt.Errorf("sorting %q is not registered", ref)
					}
					records = append(records, rec)
				}
				guard := permission.NewGuard(store, logger)
				if err := guard.AuthorizeSortingDelete(background, cfg.Permissions.User, records...); err != nil {
					return err
				}
				removed := make(map[string]int64, len(records))
				for _, rec := range records {
					n, err := store.DeleteSorting(background, rec.Ref)
					if err != nil {
						return err
					}
					removed[rec.Ref] = n
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"deleted": removed})
				}
				for _, rec := range records {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted sorting %s (%d curations)\n", rec.Ref, removed[rec.Ref])
				}
				return nil
			})
		},
	}
}
