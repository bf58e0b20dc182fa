package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"strata/internal/ipc"
)

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start job processing on the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Start()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if resp.Started {
					fmt.Fprintln(stdout, "Daemon started")
					return nil
				}
				if resp.Message != "" {
					fmt.Fprintln(stdout, resp.Message)
					return nil
				}
				fmt.Fprintln(stdout, "Daemon not started")
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop job processing; running jobs are requeued",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if resp.Stopped {
					fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
				}
				return nil
			})
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, status)
				}

				stdout := cmd.OutOrStdout()
				colorize := shouldColorize(stdout)

				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				runningKind := statusError
				runningMsg := "stopped"
				if status.Running {
					runningKind = statusOK
					runningMsg = "pid " + strconv.Itoa(status.PID)
				}
				fmt.Fprintln(stdout, renderStatusLine("Processing", runningKind, runningMsg, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Job database", statusInfo, status.JobDBPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Lock file", statusInfo, status.LockPath, colorize))
				if status.APIBind != "" {
					fmt.Fprintln(stdout, renderStatusLine("HTTP API", statusInfo, status.APIBind, colorize))
				}
				if status.LastError != "" {
					fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
				}

				fmt.Fprintln(stdout)
				for _, line := range renderSectionHeader("Queue", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderQueueStats(status))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON")
	return cmd
}

func renderQueueStats(status *ipc.StatusResponse) string {
	rows := [][]string{
		{"waiting", strconv.Itoa(status.QueueStats["waiting"])},
		{"running", strconv.Itoa(status.QueueStats["running"])},
		{"succeeded", strconv.Itoa(status.QueueStats["succeeded"])},
		{"failed", strconv.Itoa(status.QueueStats["failed"])},
		{"cancelled", strconv.Itoa(status.QueueStats["cancelled"])},
		{"total", strconv.Itoa(status.QueueStats["total"])},
	}
	return renderTable(
		[]string{"STATE", "JOBS"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	)
}
