package main

import (
	"fmt"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/cli"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/review"
	"github.com/spf13/cobra"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work through meetings waiting for a decision",
		Long: `Meetings the engine could not confidently match wait here. Approve one with
a task to post it, reject it, or mark it as needing no entry.

Running "hours review" with no subcommand starts an interactive session.`,
		RunE: runReviewInteractive,
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewDecideCmd("reject", "Reject a review item", model.ReviewRejected))
	cmd.AddCommand(reviewDecideCmd("skip", "Mark a review item as needing no time entry", model.ReviewNoEntryNeeded))
	cmd.AddCommand(reviewStatsCmd())
	return cmd
}

func runReviewInteractive(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.reviewQueue(cmd.Context(), true)
	if err != nil {
		return err
	}
	items, err := q.Pending(cmd.Context(), a.userID())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		writeLine(out, cli.FormatSuccess("Nothing to review"))
		return nil
	}

	p := cli.NewReviewPrompter(cmd.InOrStdin(), out, q, a.userID())
	stats, err := p.Run(cmd.Context(), items)
	writeLine(out, cli.RenderBox("Review session", fmt.Sprintf(
		"Approved: %d\nRejected: %d\nNo entry: %d\nSkipped:  %d\nFailed:   %d",
		stats.Approved, stats.Rejected, stats.NoEntry, stats.Skipped, stats.Failed)))
	return err
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statusFlag, _ := cmd.Flags().GetString("status")
			var status model.ReviewStatus
			if statusFlag != "all" {
				s, err := model.ParseReviewStatus(statusFlag)
				if err != nil {
					return err
				}
				status = s
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.reviewQueue(cmd.Context(), false)
			if err != nil {
				return err
			}
			items, err := q.List(cmd.Context(), a.userID(), status)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				writeLine(cmd.OutOrStdout(), cli.FormatInfo("No review items"))
				return nil
			}
			writeLine(cmd.OutOrStdout(), renderReviewTable(items))
			return nil
		},
	}
	cmd.Flags().String("status", string(model.ReviewPending), "status to show (pending, approved, rejected, no_entry_needed, all)")
	return cmd
}

func renderReviewTable(items []model.ReviewItem) string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		top := ""
		if len(item.SuggestedTasks) > 0 {
			top = item.SuggestedTasks[0].Title
		}
		rows = append(rows, []string{
			shortID(item.ID),
			item.StartTime.Format("2006-01-02 15:04"),
			truncate(item.Subject, 40),
			fmt.Sprintf("%.2f", model.HoursFromSeconds(item.DurationSeconds)),
			cli.FormatConfidence(item.Confidence),
			truncate(top, 30),
			string(item.Status),
		})
	}
	return cli.RenderTable([]string{"ID", "Start", "Subject", "Hours", "Conf", "Top suggestion", "Status"}, rows)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <review-id>",
		Short: "Approve a review item and post it to a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, _ := cmd.Flags().GetString("task")
			feedback, _ := cmd.Flags().GetString("feedback")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.reviewQueue(cmd.Context(), true)
			if err != nil {
				return err
			}
			id, err := resolveReviewID(cmd, q, a.userID(), args[0])
			if err != nil {
				return err
			}

			result, err := q.Submit(cmd.Context(), review.Submission{
				UserID:   a.userID(),
				ItemID:   id,
				TaskID:   taskID,
				Feedback: feedback,
				Status:   model.ReviewApproved,
			})
			if err != nil && !result.Applied {
				return err
			}
			if err != nil {
				writeLine(cmd.ErrOrStderr(), cli.FormatWarning(err.Error()))
			}
			if !result.Applied {
				writeLine(cmd.OutOrStdout(), alreadyDecided(result.Item))
				return nil
			}
			msg := fmt.Sprintf("Approved %q", result.Item.Subject)
			if result.Posted != nil && result.Posted.TimeEntry != nil {
				msg += fmt.Sprintf(", posted %.2f hours", result.Posted.TimeEntry.Hours)
			}
			writeLine(cmd.OutOrStdout(), cli.FormatSuccess(msg))
			return nil
		},
	}
	cmd.Flags().String("task", "", "task id to post the meeting to (required)")
	cmd.Flags().String("feedback", "", "note stored with the decision")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func reviewDecideCmd(use, short string, status model.ReviewStatus) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <review-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			feedback, _ := cmd.Flags().GetString("feedback")

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.reviewQueue(cmd.Context(), false)
			if err != nil {
				return err
			}
			id, err := resolveReviewID(cmd, q, a.userID(), args[0])
			if err != nil {
				return err
			}
			result, err := q.Submit(cmd.Context(), review.Submission{
				UserID:   a.userID(),
				ItemID:   id,
				Feedback: feedback,
				Status:   status,
			})
			if err != nil {
				return err
			}
			if !result.Applied {
				writeLine(cmd.OutOrStdout(), alreadyDecided(result.Item))
				return nil
			}
			writeLine(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("%q marked %s", result.Item.Subject, status)))
			return nil
		},
	}
	cmd.Flags().String("feedback", "", "note stored with the decision")
	return cmd
}

func alreadyDecided(item model.ReviewItem) string {
	return cli.FormatWarning(fmt.Sprintf("%q was already %s; decision recorded without changes", item.Subject, item.Status))
}

// resolveReviewID expands a short id prefix, as printed by "review list",
// to the full review id.
func resolveReviewID(cmd *cobra.Command, q *review.Queue, userID, prefix string) (string, error) {
	if item, err := q.Get(cmd.Context(), userID, prefix); err == nil {
		return item.ID, nil
	}
	items, err := q.List(cmd.Context(), userID, "")
	if err != nil {
		return "", err
	}
	var matches []string
	for _, item := range items {
		if strings.HasPrefix(item.ID, prefix) {
			matches = append(matches, item.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no review item matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q matches %d review items, use more characters", prefix, len(matches))
	}
}

func reviewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show review queue statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			q, err := a.reviewQueue(cmd.Context(), false)
			if err != nil {
				return err
			}
			stats, err := q.Stats(cmd.Context(), a.userID())
			if err != nil {
				return err
			}
			writeLine(cmd.OutOrStdout(), cli.RenderBox("Review queue", fmt.Sprintf(
				"Pending:            %d\nReviewed:           %d\nApproval rate:      %.1f%%\nAverage confidence: %.2f",
				stats.TotalPending, stats.TotalReviewed, stats.ApprovalRate, stats.AverageConfidence)))
			return nil
		},
	}
}
