package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"studyforge/internal/content"
	"studyforge/internal/daemonrun"
)

func newQuizCommand(ctx *commandContext) *cobra.Command {
	quizCmd := &cobra.Command{
		Use:   "quiz",
		Short: "Generate and take adaptive quizzes",
	}
	quizCmd.AddCommand(newQuizListCommand(ctx))
	quizCmd.AddCommand(newQuizGenerateCommand(ctx))
	quizCmd.AddCommand(newQuizShowCommand(ctx))
	quizCmd.AddCommand(newQuizStartCommand(ctx))
	quizCmd.AddCommand(newQuizSubmitCommand(ctx))
	quizCmd.AddCommand(newQuizAbandonCommand(ctx))
	return quizCmd
}

func newQuizListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list <content-id>",
		Short: "List the active quiz of each difficulty",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				quizzes, err := c.Store.ListActiveQuizzes(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(quizzes))
				for _, q := range quizzes {
					rows = append(rows, []string{
						q.ID,
						string(q.Difficulty),
						strconv.Itoa(q.Version),
						strconv.Itoa(len(q.Questions)),
						q.GeneratedBy,
						formatTime(q.CreatedAt),
					})
				}
				printTable(cmd.OutOrStdout(), "No quizzes", []string{"Quiz", "Difficulty", "Version", "Questions", "Generator", "Created"}, rows,
					alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft)
				return nil
			})
		},
	}
}

func newQuizGenerateCommand(ctx *commandContext) *cobra.Command {
	var difficulty string
	var requester string
	cmd := &cobra.Command{
		Use:   "generate <content-id>",
		Short: "Generate a new quiz version, superseding the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, ok := content.ParseDifficulty(difficulty)
			if !ok {
				return fmt.Errorf("unknown difficulty %q", difficulty)
			}
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				quiz, err := c.Quizzes.Generate(cmd.Context(), args[0], requester, level)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated %s quiz %s (version %d, %d questions)\n",
					quiz.Difficulty, quiz.ID, quiz.Version, len(quiz.Questions))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&difficulty, "difficulty", "d", string(content.DifficultyIntermediate), "beginner, intermediate, or advanced")
	cmd.Flags().StringVarP(&requester, "requester", "r", "", "Requesting user id")
	return cmd
}

func newQuizShowCommand(ctx *commandContext) *cobra.Command {
	var answers bool
	cmd := &cobra.Command{
		Use:   "show <quiz-id>",
		Short: "Print the questions of a quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				quiz, err := c.Store.GetQuiz(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if quiz == nil {
					return fmt.Errorf("quiz %s not found", args[0])
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s, version %d)\n", quiz.Title, quiz.Difficulty, quiz.Version)
				for i, q := range quiz.Questions {
					fmt.Fprintf(out, "\n%d. [%s] %s  (%s, %g pts)\n", i+1, q.ID, q.Prompt, q.Type, q.Points)
					for _, opt := range q.Options {
						fmt.Fprintf(out, "     - %s\n", opt)
					}
					if answers {
						fmt.Fprintf(out, "   Answer: %s\n", q.CorrectAnswer)
						if q.Explanation != "" {
							fmt.Fprintf(out, "   Why: %s\n", q.Explanation)
						}
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&answers, "answers", false, "Include correct answers")
	return cmd
}

func newQuizStartCommand(ctx *commandContext) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "start <quiz-id>",
		Short: "Open an attempt on an active quiz",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(user) == "" {
				return fmt.Errorf("--user is required")
			}
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				attempt, err := c.Attempts.Start(cmd.Context(), args[0], user)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started attempt %s\n", attempt.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User taking the quiz")
	return cmd
}

func newQuizSubmitCommand(ctx *commandContext) *cobra.Command {
	var answersFile string
	var timeSpent time.Duration
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "submit <attempt-id>",
		Short: "Grade an attempt from a JSON answers file",
		Long: `Grade an attempt. The answers file maps question ids to answers:

  {"q1": "Paris", "q2": ["mitochondria", "ribosome"], "q3": true}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			submitted, err := readAnswers(answersFile)
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				attempt, rec, err := c.Attempts.Submit(cmd.Context(), args[0], submitted, timeSpent)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{
						"attemptId":      attempt.ID,
						"score":          attempt.Score,
						"maxScore":       attempt.MaxScore,
						"percentage":     attempt.Percentage,
						"answers":        attempt.Answers,
						"performance":    attempt.Performance,
						"recommendation": rec,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Score %g / %g (%s)\n", attempt.Score, attempt.MaxScore, formatPercent(attempt.Percentage))
				rows := make([][]string, 0, len(attempt.Answers))
				for _, a := range attempt.Answers {
					rows = append(rows, []string{a.QuestionID, a.Answer.String(), yesNo(a.Correct), fmt.Sprintf("%g", a.PointsAwarded)})
				}
				printTable(out, "No answers", []string{"Question", "Answer", "Correct", "Points"}, rows,
					alignLeft, alignLeft, alignLeft, alignRight)
				if len(attempt.Performance.StrongTopics) > 0 {
					fmt.Fprintf(out, "Strong: %s\n", strings.Join(attempt.Performance.StrongTopics, ", "))
				}
				if len(attempt.Performance.WeakTopics) > 0 {
					fmt.Fprintf(out, "Weak:   %s\n", strings.Join(attempt.Performance.WeakTopics, ", "))
				}
				fmt.Fprintf(out, "Next difficulty: %s (%s)\n", rec.Difficulty, rec.Change)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&answersFile, "answers", "a", "", "Path to the JSON answers file")
	cmd.Flags().DurationVar(&timeSpent, "time", 0, "Total time spent on the attempt")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

func newQuizAbandonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <attempt-id>",
		Short: "Close an attempt without grading",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				if _, err := c.Attempts.Abandon(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Abandoned attempt %s\n", args[0])
				return nil
			})
		},
	}
}

// readAnswers decodes a question-id keyed answers file in question id order.
func readAnswers(path string) ([]content.SubmittedAnswer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}
	var raw map[string]content.AnswerValue
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]content.SubmittedAnswer, 0, len(ids))
	for _, id := range ids {
		out = append(out, content.SubmittedAnswer{QuestionID: id, Answer: raw[id]})
	}
	return out, nil
}
