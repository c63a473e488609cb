package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"studyforge/internal/content"
	"studyforge/internal/daemonrun"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Spaced-repetition flashcard review",
	}
	reviewCmd.AddCommand(newReviewDueCommand(ctx))
	reviewCmd.AddCommand(newReviewGradeCommand(ctx))
	return reviewCmd
}

func newReviewDueCommand(ctx *commandContext) *cobra.Command {
	var showBack bool
	cmd := &cobra.Command{
		Use:   "due <content-id>",
		Short: "List flashcards due for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				cards, err := c.Reviews.Due(cmd.Context(), args[0], time.Now())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(cards))
				for _, card := range cards {
					row := []string{card.ID, card.Front}
					if showBack {
						row = append(row, card.Back)
					}
					row = append(row, strconv.Itoa(card.SpacedRepetition.Repetitions), nextReview(card))
					rows = append(rows, row)
				}
				headers := []string{"Card", "Front"}
				if showBack {
					headers = append(headers, "Back")
				}
				headers = append(headers, "Reps", "Due")
				printTable(cmd.OutOrStdout(), "No cards due", headers, rows)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showBack, "answers", false, "Include the back of each card")
	return cmd
}

func newReviewGradeCommand(ctx *commandContext) *cobra.Command {
	var responseTime time.Duration
	cmd := &cobra.Command{
		Use:   "grade <card-id> <quality 0-5>",
		Short: "Record a review and reschedule the card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			quality, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quality must be an integer between 0 and 5: %w", err)
			}
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				card, err := c.Reviews.Review(cmd.Context(), args[0], quality, responseTime)
				if err != nil {
					return err
				}
				sr := card.SpacedRepetition
				fmt.Fprintf(cmd.OutOrStdout(), "Next review %s (interval %d days, ease %.2f)\n", nextReview(card), sr.IntervalDays, sr.EaseFactor)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&responseTime, "time", 0, "Time taken to answer")
	return cmd
}

func nextReview(card *content.Flashcard) string {
	if card.SpacedRepetition.NextReviewDate == nil {
		return "now"
	}
	return card.SpacedRepetition.NextReviewDate.Local().Format("2006-01-02")
}
