package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"studyforge/internal/daemonrun"
	"studyforge/internal/deletion"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Soft-delete, restore, or permanently remove content",
	}

	deleteCmd.AddCommand(newDeletePermanentCommand(ctx))
	deleteCmd.AddCommand(newDeleteSoftCommand(ctx))
	deleteCmd.AddCommand(newDeleteRestoreCommand(ctx))
	deleteCmd.AddCommand(newDeleteSweepCommand(ctx))
	deleteCmd.AddCommand(newDeleteReconcileCommand(ctx))

	return deleteCmd
}

func newDeletePermanentCommand(ctx *commandContext) *cobra.Command {
	var requester string
	cmd := &cobra.Command{
		Use:   "permanent <id> [id...]",
		Short: "Permanently delete items and everything derived from them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					res, err := c.Deletion.Delete(cmd.Context(), args[0], requester)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted %s (%d rows, saga %s)\n", res.ContentID, res.Rows, res.SagaID)
					return nil
				}
				res := c.Deletion.BulkDelete(cmd.Context(), args, requester)
				renderBulkResult(out, res)
				if len(res.Failed) > 0 || len(res.Inconsistent) > 0 {
					return fmt.Errorf("%d of %d deletes did not complete", len(res.Failed)+len(res.Inconsistent), len(args))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&requester, "requester", "r", "", "Only delete items owned by this user")
	return cmd
}

func newDeleteSoftCommand(ctx *commandContext) *cobra.Command {
	var requester string
	cmd := &cobra.Command{
		Use:   "soft <id>",
		Short: "Hide an item for the recovery window before permanent removal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				if err := c.Deletion.SoftDelete(cmd.Context(), args[0], requester); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Soft-deleted %s; restorable for %d days\n", args[0], c.Config.Deletion.RecoveryWindowDays)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&requester, "requester", "r", "", "Only delete items owned by this user")
	return cmd
}

func newDeleteRestoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a soft-deleted item inside its recovery window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				if err := c.Deletion.Restore(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", args[0])
				return nil
			})
		},
	}
}

func newDeleteSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Permanently delete soft-deleted items past the recovery window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				res, err := c.Deletion.Sweep(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				renderBulkResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func newDeleteReconcileCommand(ctx *commandContext) *cobra.Command {
	var includeInconsistent bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Advance stalled deletion sagas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				results, err := c.Deletion.Reconcile(cmd.Context(), deletion.ReconcileOptions{
					IncludeInconsistent: includeInconsistent || c.Config.Deletion.ReconcileInconsistent,
				})
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(results))
				for _, res := range results {
					errText := ""
					if res.Err != nil {
						errText = res.Err.Error()
					}
					rows = append(rows, []string{res.SagaID, res.ContentID, string(res.Outcome), strconv.FormatInt(res.Rows, 10), errText})
				}
				printTable(cmd.OutOrStdout(), "No stalled sagas",
					[]string{"Saga", "Content", "Outcome", "Rows", "Error"}, rows,
					alignLeft, alignLeft, alignLeft, alignRight, alignLeft)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&includeInconsistent, "include-inconsistent", false, "Also re-run the primary delete of inconsistent sagas")
	return cmd
}

func renderBulkResult(out io.Writer, res deletion.BulkResult) {
	rows := make([][]string, 0, len(res.Succeeded)+len(res.Failed)+len(res.Inconsistent))
	for _, id := range res.Succeeded {
		rows = append(rows, []string{id, "deleted", ""})
	}
	for _, f := range res.Failed {
		rows = append(rows, []string{f.ContentID, "failed", f.Err.Error()})
	}
	for _, id := range res.Inconsistent {
		rows = append(rows, []string{id, "inconsistent", "primary delete failed after derived data was removed"})
	}
	printTable(out, "Nothing to delete", []string{"Content", "Result", "Detail"}, rows)
}
