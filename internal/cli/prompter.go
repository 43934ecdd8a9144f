package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/review"
)

// Decider applies review decisions.
type Decider interface {
	Submit(ctx context.Context, sub review.Submission) (review.SubmitResult, error)
}

// SessionStats counts what happened in an interactive review session.
type SessionStats struct {
	Approved int
	Rejected int
	NoEntry  int
	Skipped  int
	Failed   int
}

// ErrQuit is returned when the user ends a session early.
var ErrQuit = errors.New("review session ended")

// ReviewPrompter walks a user through pending review items.
type ReviewPrompter struct {
	reader  *LineReader
	writer  io.Writer
	decider Decider
	userID  string
	stats   SessionStats
}

// NewReviewPrompter creates a prompter reading answers from r.
func NewReviewPrompter(r io.Reader, w io.Writer, decider Decider, userID string) *ReviewPrompter {
	return &ReviewPrompter{
		reader:  NewLineReader(r),
		writer:  w,
		decider: decider,
		userID:  userID,
	}
}

// Stats returns the session counters.
func (p *ReviewPrompter) Stats() SessionStats {
	return p.stats
}

// Run prompts for each item in order. It stops early on "q", on
// cancellation, or when input runs out.
func (p *ReviewPrompter) Run(ctx context.Context, items []model.ReviewItem) (SessionStats, error) {
	for i, item := range items {
		p.printf("%s\n", RenderBox(fmt.Sprintf("Review %d of %d", i+1, len(items)), describeItem(item)))

		err := p.decide(ctx, item)
		if errors.Is(err, ErrQuit) {
			p.stats.Skipped += len(items) - i
			return p.stats, nil
		}
		if err != nil {
			return p.stats, err
		}
	}
	return p.stats, nil
}

func (p *ReviewPrompter) decide(ctx context.Context, item model.ReviewItem) error {
	for {
		p.printf("%s", FormatPrompt("[1-9] approve suggestion, t <task id>, r reject, n no entry, s skip, q quit"))
		line, err := p.reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return ErrQuit
		}
		if err != nil {
			return err
		}

		sub, ok, err := p.parse(line, item)
		if errors.Is(err, ErrQuit) {
			return err
		}
		if err != nil {
			p.printf("%s\n", FormatWarning(err.Error()))
			continue
		}
		if !ok {
			p.stats.Skipped++
			return nil
		}

		result, err := p.decider.Submit(ctx, sub)
		if err != nil && !result.Applied {
			p.stats.Failed++
			p.printf("%s\n", FormatError(fmt.Sprintf("Decision not applied: %v", err)))
			return nil
		}
		if err != nil {
			p.printf("%s\n", FormatWarning(err.Error()))
		}

		switch sub.Status {
		case model.ReviewApproved:
			p.stats.Approved++
			msg := "Approved"
			if result.Posted != nil && result.Posted.TimeEntry != nil {
				msg = fmt.Sprintf("Posted %.2f hours to task %s", result.Posted.TimeEntry.Hours, sub.TaskID)
			}
			p.printf("%s\n", FormatSuccess(msg))
		case model.ReviewRejected:
			p.stats.Rejected++
			p.printf("%s\n", FormatInfo("Rejected"))
		case model.ReviewNoEntryNeeded:
			p.stats.NoEntry++
			p.printf("%s\n", FormatInfo("Marked as needing no entry"))
		}
		return nil
	}
}

// parse turns an answer into a submission. ok is false for a skip.
func (p *ReviewPrompter) parse(line string, item model.ReviewItem) (review.Submission, bool, error) {
	sub := review.Submission{UserID: p.userID, ItemID: item.ID}
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return sub, false, fmt.Errorf("please choose an option")
	}

	switch fields[0] {
	case "q", "quit":
		return sub, false, ErrQuit
	case "s", "skip":
		return sub, false, nil
	case "r", "reject":
		sub.Status = model.ReviewRejected
		return sub, true, nil
	case "n", "none":
		sub.Status = model.ReviewNoEntryNeeded
		return sub, true, nil
	case "t", "task":
		if len(fields) < 2 {
			return sub, false, fmt.Errorf("usage: t <task id>")
		}
		sub.Status = model.ReviewApproved
		sub.TaskID = strings.Fields(line)[1]
		return sub, true, nil
	}

	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 || n > len(item.SuggestedTasks) {
		return sub, false, fmt.Errorf("unknown choice %q", line)
	}
	sub.Status = model.ReviewApproved
	sub.TaskID = item.SuggestedTasks[n-1].ID
	return sub, true, nil
}

func (p *ReviewPrompter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.writer, format, args...)
}

func describeItem(item model.ReviewItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", BoldStyle.Render(item.Subject))
	fmt.Fprintf(&b, "%s  %s  %.2f hours\n",
		item.StartTime.Format("Mon Jan 2 2006"),
		item.StartTime.Format("15:04")+"-"+item.EndTime.Format("15:04"),
		model.HoursFromSeconds(item.DurationSeconds))
	if item.Reason != "" {
		fmt.Fprintf(&b, "%s\n", SubtleStyle.Render(item.Reason))
	}
	if len(item.Participants) > 0 {
		fmt.Fprintf(&b, "With: %s\n", strings.Join(item.Participants, ", "))
	}

	if len(item.SuggestedTasks) == 0 {
		b.WriteString(WarningStyle.Render("No suggested tasks"))
		return b.String()
	}
	b.WriteString("\nSuggestions:")
	for i, s := range item.SuggestedTasks {
		fmt.Fprintf(&b, "\n  [%d] %s %s (%s / %s)", i+1, FormatConfidence(s.Confidence), s.Title, s.Project, s.Module)
		if s.Reason != "" {
			fmt.Fprintf(&b, "\n      %s", SubtleStyle.Render(s.Reason))
		}
	}
	return b.String()
}
