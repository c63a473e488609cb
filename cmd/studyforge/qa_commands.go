package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"studyforge/internal/daemonrun"
)

func newQACommand(ctx *commandContext) *cobra.Command {
	qaCmd := &cobra.Command{
		Use:   "qa",
		Short: "Ask questions about processed material",
	}
	qaCmd.AddCommand(newQAAskCommand(ctx))
	qaCmd.AddCommand(newQAHistoryCommand(ctx))
	return qaCmd
}

func newQAAskCommand(ctx *commandContext) *cobra.Command {
	var session string
	var user string
	cmd := &cobra.Command{
		Use:   "ask <content-id> <question...>",
		Short: "Stream an answer grounded in the item's vectorized chunks",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args[1:], " ")
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				out := cmd.OutOrStdout()
				answer, err := c.QA.Ask(cmd.Context(), args[0], session, user, question, func(token string) error {
					_, err := fmt.Fprint(out, token)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				fmt.Fprintf(cmd.ErrOrStderr(), "session %s (%d sources)\n", answer.SessionID, len(answer.Entry.Sources))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Continue an existing chat session")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Asking user id")
	return cmd
}

func newQAHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the exchanges of a chat session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				entries, err := c.QA.History(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "No history")
					return nil
				}
				for _, e := range entries {
					fmt.Fprintf(out, "[%s] Q: %s\n", formatTime(e.CreatedAt), e.Question)
					fmt.Fprintf(out, "A: %s\n\n", e.Answer)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
