package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"studyforge/internal/content"
	"studyforge/internal/daemonrun"
	"studyforge/internal/workflow"
)

type contentView struct {
	ID           string         `json:"id"`
	Owner        string         `json:"owner"`
	Type         string         `json:"type"`
	Title        string         `json:"title"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Deleted      bool           `json:"deleted"`
	DeletedAt    *time.Time     `json:"deletedAt,omitempty"`
	Stages       content.Stages `json:"stages"`
	CreatedAt    time.Time      `json:"createdAt"`
}

func toContentView(item *content.Content) contentView {
	return contentView{
		ID:           item.ID,
		Owner:        item.Owner,
		Type:         string(item.Type),
		Title:        item.Title,
		Status:       string(item.Status),
		ErrorMessage: item.ErrorMessage,
		Deleted:      item.Deleted,
		DeletedAt:    item.DeletedAt,
		Stages:       item.Stages,
		CreatedAt:    item.CreatedAt,
	}
}

func newContentCommand(ctx *commandContext) *cobra.Command {
	contentCmd := &cobra.Command{
		Use:   "content",
		Short: "Register and inspect study material",
	}

	contentCmd.AddCommand(newContentAddCommand(ctx))
	contentCmd.AddCommand(newContentListCommand(ctx))
	contentCmd.AddCommand(newContentShowCommand(ctx))
	contentCmd.AddCommand(newContentProcessCommand(ctx))
	contentCmd.AddCommand(newContentResumeCommand(ctx))

	return contentCmd
}

func newContentAddCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var title string
	var process bool

	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a transcript (.srt, .vtt) or text document (.txt, .md)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(owner) == "" {
				return errors.New("--owner is required")
			}
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				item, err := c.AddFile(cmd.Context(), args[0], owner, title)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Registered %s (%s) as %s\n", item.Title, item.Type, item.ID)
				if !process {
					fmt.Fprintln(out, "The daemon will process it on its next poll")
					return nil
				}
				fmt.Fprintln(out, "Processing...")
				if err := c.Workflow.Process(cmd.Context(), item.ID); err != nil {
					return err
				}
				return printContentResult(cmd, c, item.ID)
			})
		},
	}
	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Owning user id")
	cmd.Flags().StringVarP(&title, "title", "t", "", "Display title (defaults to the file name)")
	cmd.Flags().BoolVar(&process, "process", false, "Run the pipeline in this process instead of leaving it for the daemon")
	return cmd
}

func newContentListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var statuses []string
	var deleted string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List content items",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := content.ListFilter{Owner: strings.TrimSpace(owner)}
			for _, s := range statuses {
				filter.Statuses = append(filter.Statuses, content.Status(strings.TrimSpace(s)))
			}
			switch strings.ToLower(strings.TrimSpace(deleted)) {
			case "", "no":
			case "only":
				filter.OnlyDeleted = true
			case "include":
				filter.IncludeDeleted = true
			default:
				return fmt.Errorf("--deleted must be one of no, only, include")
			}
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				items, err := c.Store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					views := make([]contentView, 0, len(items))
					for _, item := range items {
						views = append(views, toContentView(item))
					}
					return writeJSON(cmd, views)
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						item.ID,
						item.Title,
						item.Owner,
						string(item.Status),
						stageSummary(item.Stages),
						formatTime(item.CreatedAt),
					})
				}
				printTable(cmd.OutOrStdout(), "No content", []string{"ID", "Title", "Owner", "Status", "Stages", "Created"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&owner, "owner", "o", "", "Only items owned by this user")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&deleted, "deleted", "", "Soft-deleted items: no (default), only, include")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newContentShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one content item with its stage states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				item, err := c.Store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("content %s not found", args[0])
				}
				if asJSON {
					return writeJSON(cmd, toContentView(item))
				}
				renderContent(cmd, item)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newContentProcessCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Run the full pipeline for an item in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				if err := c.Workflow.Process(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printContentResult(cmd, c, args[0])
			})
		},
	}
}

func newContentResumeCommand(ctx *commandContext) *cobra.Command {
	var from string
	cmd := &cobra.Command{
		Use:   "resume <id>",
		Short: "Resume processing from the first incomplete stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := workflow.ResumeStage(strings.TrimSpace(from))
			if err != nil {
				return err
			}
			return ctx.withComponents(cmd, func(c *daemonrun.Components) error {
				if err := c.Workflow.Resume(cmd.Context(), args[0], stage); err != nil {
					return err
				}
				return printContentResult(cmd, c, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Restart at this stage (transcription, vectorization, summarization, flashcardGeneration, quizGeneration)")
	return cmd
}

func printContentResult(cmd *cobra.Command, c *daemonrun.Components, id string) error {
	item, err := c.Store.GetByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("content %s not found", id)
	}
	renderContent(cmd, item)
	return nil
}

func renderContent(cmd *cobra.Command, item *content.Content) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s  %s\n", item.ID, item.Title)
	fmt.Fprintf(out, "  Owner:   %s\n", item.Owner)
	fmt.Fprintf(out, "  Type:    %s\n", item.Type)
	fmt.Fprintf(out, "  Status:  %s\n", item.Status)
	if item.IsPaused() {
		if item.Pause.RecoveryAt != nil {
			fmt.Fprintf(out, "  Resumes: %s\n", formatTime(*item.Pause.RecoveryAt))
		}
		if item.Pause.Suggestion != "" {
			fmt.Fprintf(out, "  Hint:    %s\n", item.Pause.Suggestion)
		}
	}
	if item.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:   %s\n", item.ErrorMessage)
	}
	fmt.Fprintf(out, "  Deleted: %s\n", yesNo(item.Deleted))

	rows := make([][]string, 0, len(content.StageOrder))
	for _, name := range content.StageOrder {
		rec := item.Stages.Get(name)
		rows = append(rows, []string{
			string(name),
			string(rec.Status),
			strconv.Itoa(rec.Progress) + "%",
			strconv.Itoa(rec.RetryCount),
			rec.Error,
		})
	}
	fmt.Fprint(out, renderTable(
		[]string{"Stage", "Status", "Progress", "Retries", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
}

// stageSummary renders a compact completed/total count.
func stageSummary(stages content.Stages) string {
	done := 0
	for _, name := range content.StageOrder {
		if stages.Get(name).Status == content.StageCompleted {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(content.StageOrder))
}
