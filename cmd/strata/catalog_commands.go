package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"strata/internal/api"
	"strata/internal/ipc"
)

func newAlgorithmsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "algorithms",
		Short: "List registered algorithms and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Algorithms()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Algorithms)
				}
				stdout := cmd.OutOrStdout()
				for i, algo := range resp.Algorithms {
					if i > 0 {
						fmt.Fprintln(stdout)
					}
					fmt.Fprintf(stdout, "%s (cost %d)\n", algo.Name, algo.Cost)
					if algo.Description != "" {
						fmt.Fprintf(stdout, "  %s\n", algo.Description)
					}
					if len(algo.Params) > 0 {
						fmt.Fprintln(stdout, renderParamsTable(algo.Params))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func renderParamsTable(params []api.ParamView) string {
	rows := make([][]string, 0, len(params))
	for _, param := range params {
		rows = append(rows, []string{
			param.Name,
			param.Type,
			yesNo(param.Required),
			formatDefault(param.Default),
			formatConstraint(param),
		})
	}
	return renderTable(
		[]string{"PARAM", "TYPE", "REQUIRED", "DEFAULT", "CONSTRAINT"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func formatDefault(value any) string {
	if value == nil {
		return "-"
	}
	return fmt.Sprintf("%v", value)
}

func formatConstraint(param api.ParamView) string {
	if len(param.OneOf) > 0 {
		return "one of " + strings.Join(param.OneOf, ", ")
	}
	var parts []string
	if param.Min != nil {
		parts = append(parts, ">= "+strconv.FormatFloat(*param.Min, 'g', -1, 64))
	}
	if param.Max != nil {
		parts = append(parts, "<= "+strconv.FormatFloat(*param.Max, 'g', -1, 64))
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}

func newDatasetsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "List datasets available to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Datasets()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Datasets)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Datasets) == 0 {
					fmt.Fprintln(stdout, "No datasets found")
					return nil
				}
				rows := make([][]string, 0, len(resp.Datasets))
				for _, info := range resp.Datasets {
					rows = append(rows, []string{
						info.ID,
						info.Name,
						fmt.Sprintf("%d x %d x %d", info.Inlines, info.Crosslines, info.Samples),
						strconv.FormatFloat(info.SampleRateMs, 'g', -1, 64) + " ms",
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"DATASET", "NAME", "DIMS", "SAMPLE RATE"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
