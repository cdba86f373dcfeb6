package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"spikecurate/internal/autocuration"
	"spikecurate/internal/ledger"
	"spikecurate/internal/qualitymetrics"
	"spikecurate/internal/waveform"
)

func newParamsCommand(ctx *commandContext) *cobra.Command {
	paramsCmd := &cobra.Command{
		Use:   "params",
		Short: "Manage named waveform, metric, and auto-curation parameter sets",
	}
	paramsCmd.AddCommand(newParamsDefaultsCommand(ctx))
	paramsCmd.AddCommand(newParamsListCommand(ctx))
	paramsCmd.AddCommand(newParamsAddCommand(ctx, "add-waveform", "Add a waveform extraction parameter set", func(name, doc string) (ledger.ParamSet, error) {
		p := waveform.DefaultParams()
		if err := readJSONArg(doc, &p); err != nil {
			return ledger.ParamSet{}, err
		}
		return waveform.NewParamSet(name, p)
	}))
	paramsCmd.AddCommand(newParamsAddCommand(ctx, "add-metric", "Add a quality metric parameter set", func(name, doc string) (ledger.ParamSet, error) {
		var p map[string]json.RawMessage
		if err := readJSONArg(doc, &p); err != nil {
			return ledger.ParamSet{}, err
		}
		return qualitymetrics.NewParamSet(name, p)
	}))
	paramsCmd.AddCommand(newParamsAddCommand(ctx, "add-auto", "Add an automatic curation parameter set", func(name, doc string) (ledger.ParamSet, error) {
		var p autocuration.Params
		if err := readJSONArg(doc, &p); err != nil {
			return ledger.ParamSet{}, err
		}
		return autocuration.NewParamSet(name, p)
	}))
	return paramsCmd
}

func newParamsDefaultsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Insert the default parameter sets (existing sets are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				background := cmd.Context()
				for _, insert := range []func(context.Context, *ledger.Store) error{
					waveform.InsertDefaults,
					qualitymetrics.InsertDefaults,
					autocuration.InsertDefaults,
				} {
					if err := insert(background, store); err != nil {
						return err
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Default parameter sets present")
				return nil
			})
		},
	}
}

func newParamsListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List parameter sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *ledger.Store) error {
				sets, err := store.ListParamSets(cmd.Context(), ledger.ParamKind(kind))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if sets == nil {
						sets = []*ledger.ParamSet{}
					}
					return writeJSON(cmd, sets)
				}
				if len(sets) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No parameter sets stored; run `spikecurate params defaults`")
					return nil
				}
				rows := make([][]string, 0, len(sets))
				for _, set := range sets {
					rows = append(rows, []string{string(set.Kind), set.Name, string(set.Params), set.CreatedAt.Local().Format(time.DateTime)})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]column{
					{header: "Kind"},
					{header: "Name"},
					{header: "Params"},
					{header: "Created"},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list sets of this kind (waveform, metric, auto_curation)")
	return cmd
}

func newParamsAddCommand(ctx *commandContext, use, short string, build func(name, doc string) (ledger.ParamSet, error)) *cobra.Command {
	var doc string
	cmd := &cobra.Command{
		Use:   use + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := build(args[0], doc)
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *ledger.Store) error {
				inserted, err := store.InsertParamSet(cmd.Context(), set)
				if err != nil {
					return err
				}
				if !inserted {
					fmt.Fprintf(cmd.OutOrStdout(), "%s parameter set %q already exists; left unchanged\n", set.Kind, set.Name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s parameter set %q\n", set.Kind, set.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&doc, "params", "", "Parameter JSON, or @file to read it from a file")
	return cmd
}
