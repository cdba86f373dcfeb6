package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spikecurate/internal/ledger"
)

func newIntervalCommand(ctx *commandContext) *cobra.Command {
	intervalCmd := &cobra.Command{
		Use:   "interval",
		Short: "Manage named valid-time interval lists",
	}

	var ranges []string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Store or replace an interval list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(ranges) == 0 {
				return fmt.Errorf("at least one --range is required")
			}
			intervals := make([]ledger.Interval, 0, len(ranges))
			for _, value := range ranges {
				parsed, err := parseInterval(value)
				if err != nil {
					return err
				}
				intervals = append(intervals, parsed)
			}
			return ctx.withStore(func(store *ledger.Store) error {
				if err := store.PutIntervalList(cmd.Context(), args[0], intervals); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored interval list %s (%d ranges)\n", args[0], len(intervals))
				return nil
			})
		},
	}
	addCmd.Flags().StringArrayVar(&ranges, "range", nil, "Valid time range as start,end seconds (repeatable)")
	intervalCmd.AddCommand(addCmd)
	return intervalCmd
}

func newTeamCommand(ctx *commandContext) *cobra.Command {
	teamCmd := &cobra.Command{
		Use:   "team",
		Short: "Manage team membership used for delete authorization",
	}
	teamCmd.AddCommand(&cobra.Command{
		Use:   "add <team> <member>...",
		Short: "Add members to a team",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			team := args[0]
			return ctx.withStore(func(store *ledger.Store) error {
				for _, member := range args[1:] {
					if err := store.AddTeamMember(cmd.Context(), team, member); err != nil {
						return err
					}
				}
				members, err := store.MembersOf(cmd.Context(), team)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"team": team, "members": members})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Team %s: %s\n", team, strings.Join(members, ", "))
				return nil
			})
		},
	})
	return teamCmd
}
