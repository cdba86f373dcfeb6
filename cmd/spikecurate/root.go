package main

import (
	"github.com/spf13/cobra"
)

const (
	groupSetup       = "setup"
	groupCuration    = "curation"
	groupMaintenance = "maintenance"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool

	ctx := newCommandContext(&configFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:   "spikecurate",
		Short: "Record, score and automatically curate spike sortings",
		Long: "spikecurate keeps a lineage of curations for each registered spike sorting,\n" +
			"extracts waveforms and quality metrics through the toolkit bridge, applies\n" +
			"rule-based labels and merges, and exports accepted units.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.flushTelemetry()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Emit machine-readable JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupSetup, Title: "Registry and parameters:"},
		&cobra.Group{ID: groupCuration, Title: "Curation:"},
		&cobra.Group{ID: groupMaintenance, Title: "Maintenance:"},
	)
	add := func(group string, cmds ...*cobra.Command) {
		for _, c := range cmds {
			c.GroupID = group
			rootCmd.AddCommand(c)
		}
	}
	add(groupSetup,
		newSortingCommand(ctx),
		newIntervalCommand(ctx),
		newTeamCommand(ctx),
		newParamsCommand(ctx),
	)
	add(groupCuration, newCurationCommand(ctx))
	add(groupCuration, newStageCommands(ctx)...)
	add(groupCuration, newExportsCommand(ctx))
	add(groupMaintenance,
		newConfigCommand(ctx),
		newStatusCommand(ctx),
		newCleanupCommand(ctx),
	)

	return rootCmd
}
