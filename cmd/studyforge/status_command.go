package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"studyforge/internal/daemonrun"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and pipeline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			lines := renderSectionHeader("studyforge", colorize)

			client, err := newAPIClient(cfg)
			var status daemonStatus
			if err == nil {
				status, err = client.Status(cmd.Context())
			}
			switch {
			case errors.Is(err, errDaemonUnavailable):
				lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
				lines = append(lines, renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize))
				fallback, ferr := localStats(cmd, ctx)
				if ferr != nil {
					return ferr
				}
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Content", colorize)...)
				lines = append(lines, contentStatLines(fallback, colorize)...)
			case err != nil:
				return err
			default:
				lines = append(lines, renderStatusLine("Daemon", statusOK, "Running (pid "+strconv.Itoa(status.PID)+")", colorize))
				lines = append(lines, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
				workflowKind, workflowText := statusOK, fmt.Sprintf("%d in flight", status.Workflow.InFlight)
				if !status.Workflow.Running {
					workflowKind, workflowText = statusWarn, "stopped"
				}
				lines = append(lines, renderStatusLine("Workflow", workflowKind, workflowText, colorize))
				if status.Workflow.LastError != "" {
					lines = append(lines, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
				}
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Stages", colorize)...)
				lines = append(lines, stageHealthLines(status.Workflow.StageHealth, colorize)...)
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Content", colorize)...)
				lines = append(lines, contentStatLines(status.Workflow.ContentStats, colorize)...)
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func localStats(cmd *cobra.Command, ctx *commandContext) (map[string]int, error) {
	out := map[string]int{}
	err := ctx.withComponents(cmd, func(c *daemonrun.Components) error {
		stats, err := c.Store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		for k, v := range stats {
			out[string(k)] = v
		}
		return nil
	})
	return out, err
}
