package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"strata/internal/api"
	"strata/internal/ipc"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		params     []string
		requester  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "submit <dataset-id> <algorithm>",
		Short: "Submit an analysis job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Submit(ipc.SubmitRequest{
					DatasetID: args[0],
					Algorithm: args[1],
					Params:    parsed,
					Requester: requester,
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s queued (%s on %s)\n",
					resp.Job.ID, resp.Job.Algorithm, resp.Job.DatasetID)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Algorithm parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&requester, "requester", "", "Requester recorded with the job")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

// parseParams turns key=value pairs into typed parameter values. Values
// that parse as booleans or numbers are coerced; everything else stays a
// string so schema validation can report the mismatch.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q (expected key=value)", pair)
		}
		value = strings.TrimSpace(value)
		switch {
		case value == "true" || value == "false":
			params[key] = value == "true"
		default:
			if number, err := strconv.ParseFloat(value, 64); err == nil {
				params[key] = number
			} else {
				params[key] = value
			}
		}
	}
	return params, nil
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var (
		datasetID  string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List analysis jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(ipc.JobListRequest{DatasetID: datasetID})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Jobs)
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(stdout, "No jobs found")
					return nil
				}
				fmt.Fprintln(stdout, renderJobsTable(resp.Jobs))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&datasetID, "dataset", "d", "", "Only list jobs for this dataset")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func renderJobsTable(jobs []*api.JobView) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			shortID(job.ID),
			job.DatasetID,
			job.Algorithm,
			job.State,
			formatProgress(job),
			strconv.Itoa(job.RetryCount),
			formatElapsed(job.ElapsedSeconds),
		})
	}
	return renderTable(
		[]string{"JOB", "DATASET", "ALGORITHM", "STATE", "PROGRESS", "RETRIES", "ELAPSED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
	)
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show details for a single job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobGet(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Job)
				}
				printJobDetail(cmd, resp.Job)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func printJobDetail(cmd *cobra.Command, job *api.JobView) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Job:        %s\n", job.ID)
	fmt.Fprintf(stdout, "Dataset:    %s\n", job.DatasetID)
	fmt.Fprintf(stdout, "Algorithm:  %s\n", job.Algorithm)
	fmt.Fprintf(stdout, "State:      %s\n", job.State)
	fmt.Fprintf(stdout, "Progress:   %s\n", formatProgress(job))
	if job.Requester != "" {
		fmt.Fprintf(stdout, "Requester:  %s\n", job.Requester)
	}
	if len(job.Params) > 0 {
		fmt.Fprintf(stdout, "Params:     %s\n", string(job.Params))
	}
	fmt.Fprintf(stdout, "Submitted:  %s\n", job.CreatedAt.Local().Format(time.RFC3339))
	if job.StartedAt != nil {
		fmt.Fprintf(stdout, "Started:    %s\n", job.StartedAt.Local().Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		fmt.Fprintf(stdout, "Completed:  %s\n", job.CompletedAt.Local().Format(time.RFC3339))
	}
	if job.ElapsedSeconds > 0 {
		fmt.Fprintf(stdout, "Elapsed:    %s\n", formatElapsed(job.ElapsedSeconds))
	}
	if job.RetryCount > 0 {
		fmt.Fprintf(stdout, "Retries:    %d\n", job.RetryCount)
	}
	if job.ErrorDetail != "" {
		fmt.Fprintf(stdout, "Error:      %s\n", job.ErrorDetail)
	}
	if job.ResultRef != "" {
		fmt.Fprintf(stdout, "Result:     %s\n", job.ResultRef)
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Cancel(args[0], reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Job %s cancelled\n", resp.Job.ID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the cancellation")
	return cmd
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Show result metadata for a completed job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Result(args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp.Artifact)
				}
				artifact := resp.Artifact
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Job:        %s\n", artifact.JobID)
				fmt.Fprintf(stdout, "Dataset:    %s\n", artifact.DatasetID)
				fmt.Fprintf(stdout, "Algorithm:  %s\n", artifact.Algorithm)
				fmt.Fprintf(stdout, "Dims:       %d x %d x %d\n", artifact.Dims[0], artifact.Dims[1], artifact.Dims[2])
				fmt.Fprintf(stdout, "Created:    %s\n", artifact.CreatedAt.Local().Format(time.RFC3339))
				fmt.Fprintf(stdout, "Min:        %g\n", artifact.Summary.Min)
				fmt.Fprintf(stdout, "Max:        %g\n", artifact.Summary.Max)
				fmt.Fprintf(stdout, "Mean:       %g\n", artifact.Summary.Mean)
				fmt.Fprintf(stdout, "RMS:        %g\n", artifact.Summary.RMS)
				return nil
			})
		},
	}

	cmd.Args = cobra.ExactArgs(1)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatProgress(job *api.JobView) string {
	switch job.State {
	case "succeeded":
		return "100%"
	case "pending", "validated", "queued":
		return "-"
	}
	return fmt.Sprintf("%.0f%%", job.Progress*100)
}

func formatElapsed(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Second).String()
}
