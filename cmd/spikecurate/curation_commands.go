package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spikecurate/internal/curation"
	"spikecurate/internal/ledger"
	"spikecurate/internal/sorting"
)

func newCurationCommand(ctx *commandContext) *cobra.Command {
	curationCmd := &cobra.Command{
		Use:   "curation",
		Short: "Insert and inspect curation lineages",
	}
	curationCmd.AddCommand(newCurationInsertCommand(ctx))
	curationCmd.AddCommand(newCurationShowCommand(ctx))
	curationCmd.AddCommand(newCurationLineageCommand(ctx))
	curationCmd.AddCommand(newCurationViewCommand(ctx))
	return curationCmd
}

func newCurationInsertCommand(ctx *commandContext) *cobra.Command {
	var (
		sortingRef  string
		parentID    string
		labels      string
		mergeGroups string
		metrics     string
		description string
	)
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert a curation (a root when --parent is omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := ledger.CurationInput{
				SortingRef:  sortingRef,
				ParentID:    parentID,
				Description: description,
			}
			if err := readJSONArg(labels, &in.Labels); err != nil {
				return fmt.Errorf("labels: %w", err)
			}
			if err := readJSONArg(mergeGroups, &in.MergeGroups); err != nil {
				return fmt.Errorf("merge groups: %w", err)
			}
			if err := readJSONArg(metrics, &in.Metrics); err != nil {
				return fmt.Errorf("metrics: %w", err)
			}
			return ctx.withStore(func(store *ledger.Store) error {
				id, err := store.Insert(cmd.Context(), in)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]string{"curation_id": id})
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortingRef, "sorting", "", "Registered sorting reference")
	cmd.Flags().StringVar(&parentID, "parent", "", "Parent curation id")
	cmd.Flags().StringVar(&labels, "labels", "", "Labels JSON ({\"unit\": [\"label\"]}) or @file")
	cmd.Flags().StringVar(&mergeGroups, "merge-groups", "", "Merge groups JSON ([[unit, unit]]) or @file")
	cmd.Flags().StringVar(&metrics, "metrics", "", "Metrics JSON ({\"metric\": {\"unit\": value}}) or @file")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	_ = cmd.MarkFlagRequired("sorting")
	return cmd
}

func newCurationShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <curation-id>",
		Short: "Show one curation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				cur, err := store.MustGet(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, cur)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Curation:     %s\n", cur.ID)
				fmt.Fprintf(out, "Parent:       %s\n", cur.ParentID)
				fmt.Fprintf(out, "Sorting:      %s\n", cur.SortingRef)
				fmt.Fprintf(out, "Created:      %s\n", cur.CreatedAt.Local().Format(time.DateTime))
				if cur.Description != "" {
					fmt.Fprintf(out, "Description:  %s\n", cur.Description)
				}
				fmt.Fprintf(out, "Merge groups: %s\n", formatMergeGroups(cur.MergeGroups))
				fmt.Fprintf(out, "Metrics:      %s\n", formatMetricNames(cur.Metrics))
				if len(cur.Labels) == 0 {
					fmt.Fprintln(out, "Labels:       none")
					return nil
				}
				rows := make([][]string, 0, len(cur.Labels))
				for _, unit := range sortedUnits(cur.Labels) {
					rows = append(rows, []string{strconv.Itoa(unit), strings.Join(cur.Labels[unit], ", ")})
				}
				fmt.Fprint(out, renderTable([]column{{header: "Unit", align: alignRight}, {header: "Labels"}}, rows))
				return nil
			})
		},
	}
}

func newCurationLineageCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <curation-id>",
		Short: "List the ancestors of a curation, root first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				chain, err := store.Lineage(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, chain)
				}
				rows := make([][]string, 0, len(chain))
				for depth, cur := range chain {
					rows = append(rows, []string{
						strconv.Itoa(depth),
						cur.ID,
						cur.ParentID,
						strconv.Itoa(len(cur.Labels)),
						formatMergeGroups(cur.MergeGroups),
						cur.Description,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
					{header: "Depth", align: alignRight},
					{header: "Curation"},
					{header: "Parent"},
					{header: "Labeled", align: alignRight},
					{header: "Merges"},
					{header: "Description"},
				}, rows))
				return nil
			})
		},
	}
}

type curatedViewOutput struct {
	CurationID string                 `json:"curation_id"`
	Units      map[int]int            `json:"spike_counts"`
	Merges     []sorting.AppliedMerge `json:"merges"`
}

func newCurationViewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "view <curation-id>",
		Short: "Show the units of the sorting with merge groups applied",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				view, merges, err := store.CuratedView(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				result := curatedViewOutput{CurationID: args[0], Units: map[int]int{}, Merges: merges}
				for _, unit := range view.UnitIDs() {
					result.Units[unit] = view.SpikeCount(unit)
				}
				if ctx.JSONMode() {
					if result.Merges == nil {
						result.Merges = []sorting.AppliedMerge{}
					}
					return writeJSON(cmd, result)
				}
				mergedFrom := make(map[int][]int, len(merges))
				for _, merge := range merges {
					mergedFrom[merge.UnitID] = merge.Constituents
				}
				rows := make([][]string, 0, len(result.Units))
				for _, unit := range view.UnitIDs() {
					rows = append(rows, []string{
						strconv.Itoa(unit),
						strconv.Itoa(result.Units[unit]),
						formatUnits(mergedFrom[unit]),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
					{header: "Unit", align: alignRight},
					{header: "Spikes", align: alignRight},
					{header: "Merged From"},
				}, rows))
				return nil
			})
		},
	}
}

func sortedUnits(labels curation.Labels) []int {
	units := make([]int, 0, len(labels))
	for unit := range labels {
		units = append(units, unit)
	}
	slices.Sort(units)
	return units
}

func formatUnits(units []int) string {
	if len(units) == 0 {
		return "-"
	}
	parts := make([]string, len(units))
	for i, unit := range units {
		parts[i] = strconv.Itoa(unit)
	}
	return strings.Join(parts, "+")
}

func formatMergeGroups(groups curation.MergeGroups) string {
	if len(groups) == 0 {
		return "none"
	}
	parts := make([]string, len(groups))
	for i, group := range groups {
		parts[i] = formatUnits(group)
	}
	return strings.Join(parts, " ")
}

func formatMetricNames(metrics curation.Metrics) string {
	if len(metrics) == 0 {
		return "none"
	}
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
