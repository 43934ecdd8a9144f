// Package engine runs the meeting-to-time-entry pipeline: collect meetings,
// drop duplicates, match tasks, then post or queue each meeting for review.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/calendar"
	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/dedup"
	"github.com/Veraticus/the-hours-must-flow/internal/identity"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/poster"
	"github.com/Veraticus/the-hours-must-flow/internal/router"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/google/uuid"
)

// Failure stages.
const (
	StageMatch  = "match"
	StagePost   = "post"
	StageLedger = "ledger"
	StageReview = "review"
)

// Skip reasons set by the runner itself.
const (
	SkipAlreadyReviewed = "Already reviewed"
	SkipAlreadyPosted   = "Already posted"
)

const noSubject = "(no subject)"

// recordRetry is the policy for re-writing a ledger record after the time
// entry was already accepted.
var recordRetry = service.RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
}

// Config holds configuration options for the runner.
type Config struct {
	Location     *time.Location
	PersonID     string
	BatchSize    int
	MeetingDelay time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Location:     time.UTC,
		BatchSize:    20,
		MeetingDelay: 500 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", common.ErrInvalidConfig, c.BatchSize)
	}
	if c.MeetingDelay < 0 {
		return fmt.Errorf("%w: meeting delay must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// Deps are the collaborators a Runner composes. Calendar is only needed by
// Run; Entries and Ledger only by Reconcile.
type Deps struct {
	Calendar service.CalendarSource
	Catalog  service.TaskCatalog
	Entries  service.TimeEntryLister
	Ledger   PostedIndex
	Dedup    DuplicateClassifier
	Matcher  TaskMatcher
	Router   Router
	Poster   Poster
	Reviews  ReviewQueue
}

// Progress is reported after each meeting is routed.
type Progress struct {
	MeetingID string
	Action    router.Action
	Done      int
	Total     int
}

// Runner executes the pipeline.
type Runner struct {
	deps     Deps
	logger   *slog.Logger
	progress func(Progress)
	sleep    func(ctx context.Context, d time.Duration) error
	newID    func() string
	now      func() time.Time
	retry    service.RetryOptions
	cfg      Config
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithProgress registers a callback invoked after each meeting.
func WithProgress(fn func(Progress)) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithSleep replaces the pacing sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(r *Runner) { r.sleep = sleep }
}

// New creates a runner.
func New(deps Deps, cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Catalog == nil || deps.Dedup == nil || deps.Matcher == nil ||
		deps.Router == nil || deps.Poster == nil || deps.Reviews == nil {
		return nil, fmt.Errorf("%w: runner needs catalog, dedup, matcher, router, poster and review queue", common.ErrMissingConfig)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	r := &Runner{
		deps:   deps,
		logger: slog.Default(),
		sleep:  sleepContext,
		newID:  uuid.NewString,
		now:    time.Now,
		retry:  recordRetry,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run collects the user's meetings in dateRange and processes them. When an
// entry lister is configured the ledger is reconciled first, so entries
// whose ledger write was lost count as duplicates.
func (r *Runner) Run(ctx context.Context, userID string, dateRange service.DateRange) (*RunResult, error) {
	if r.deps.Calendar == nil {
		return nil, fmt.Errorf("%w: no calendar source", common.ErrMissingConfig)
	}

	meetings, err := calendar.Collect(ctx, r.deps.Calendar, userID, dateRange, r.logger)
	if err != nil {
		return nil, err
	}

	if r.deps.Entries != nil && r.deps.Ledger != nil && r.cfg.PersonID != "" {
		report, err := r.Reconcile(ctx, userID, meetings, dateRange)
		if err != nil {
			r.logger.Warn("Reconciliation failed, continuing", "user_id", userID, "error", err)
		} else if len(report.Repaired) > 0 {
			r.logger.Info("Repaired ledger from time tracker",
				"user_id", userID,
				"repaired", len(report.Repaired))
		}
	}

	return r.Process(ctx, userID, meetings)
}

// Process runs already collected meetings through the pipeline. Meetings
// are handled one at a time in batches of BatchSize, paced by MeetingDelay.
// Cancellation is honored between meetings; the partial result is returned
// alongside the context error.
func (r *Runner) Process(ctx context.Context, userID string, meetings []model.Meeting) (*RunResult, error) {
	result := newRunResult(r.newID(), userID, r.now())
	result.Total = len(meetings)
	defer func() { result.FinishedAt = r.now() }()

	if len(meetings) == 0 {
		r.logger.Info("No meetings to process", "user_id", userID)
		return result, nil
	}

	tasks, err := r.deps.Catalog.FetchTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrTaskCatalogFailed, err)
	}
	index := model.NewTaskIndex(tasks)

	pending, err := r.dropDecided(ctx, userID, meetings, result)
	if err != nil {
		return nil, err
	}

	classified, err := r.deps.Dedup.Classify(ctx, userID, pending)
	if err != nil {
		return nil, fmt.Errorf("duplicate check failed: %w", err)
	}
	for _, m := range classified.Duplicates {
		result.Duplicates = append(result.Duplicates, classified.Decisions[m.ID])
	}

	unique := classified.Unique
	r.logger.Info("Processing meetings",
		"user_id", userID,
		"total", len(meetings),
		"duplicates", len(result.Duplicates),
		"to_match", len(unique),
		"tasks", len(tasks))

	done := len(meetings) - len(unique)
	for start := 0; start < len(unique); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(unique))
		r.logger.Debug("Processing batch",
			"user_id", userID,
			"from", start,
			"to", end)

		for i, m := range unique[start:end] {
			if start+i > 0 {
				if err := r.sleep(ctx, r.cfg.MeetingDelay); err != nil {
					return result, fmt.Errorf("run interrupted after %d meetings: %w", done, err)
				}
			}
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("run interrupted after %d meetings: %w", done, err)
			}

			action := r.processMeeting(ctx, userID, m, tasks, index, result)
			done++
			if r.progress != nil {
				r.progress(Progress{MeetingID: m.ID, Action: action, Done: done, Total: len(meetings)})
			}
		}
	}

	r.logger.Info("Run complete",
		"user_id", userID,
		"posted", len(result.Posted),
		"queued", len(result.Queued),
		"duplicates", len(result.Duplicates),
		"skipped", len(result.Skipped),
		"failures", len(result.Failures))
	return result, nil
}

func (r *Runner) dropDecided(ctx context.Context, userID string, meetings []model.Meeting, result *RunResult) ([]model.Meeting, error) {
	pending := make([]model.Meeting, 0, len(meetings))
	for _, m := range meetings {
		decided, err := r.deps.Reviews.IsDecided(ctx, userID, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check review state: %w", err)
		}
		if decided {
			result.skip(m, SkipAlreadyReviewed)
			continue
		}
		pending = append(pending, m)
	}
	return pending, nil
}

func (r *Runner) processMeeting(ctx context.Context, userID string, m model.Meeting, tasks []model.Task, index model.TaskIndex, result *RunResult) router.Action {
	outcome, matchErr := r.deps.Matcher.MatchFailOpen(ctx, m, userID, tasks)
	if matchErr != nil {
		result.fail(m, StageMatch, matchErr)
	}

	decision := r.deps.Router.Route(outcome, matchErr)
	if decision.Action != router.ActionSkip {
		result.Buckets[r.deps.Router.Bucket(decision.Confidence)]++
	}

	switch decision.Action {
	case router.ActionAutoPost:
		return r.autoPost(ctx, userID, m, decision, index, result)
	case router.ActionReview:
		r.queue(ctx, userID, m, decision, index, result)
	default:
		result.skip(m, decision.Reason)
	}
	return decision.Action
}

func (r *Runner) autoPost(ctx context.Context, userID string, m model.Meeting, d router.Decision, index model.TaskIndex, result *RunResult) router.Action {
	task := index[d.Best.TaskID]
	posted, err := r.deps.Poster.Post(ctx, poster.Request{Meeting: m, Task: task, UserID: userID})

	var unrecorded *poster.UnrecordedError
	switch {
	case err == nil:
		result.Posted = append(result.Posted, *posted)
		return router.ActionAutoPost

	case errors.As(err, &unrecorded):
		result.Posted = append(result.Posted, unrecorded.Entry)
		r.retryRecord(ctx, m, unrecorded.Entry, result)
		return router.ActionAutoPost

	case errors.Is(err, poster.ErrAlreadyPosted):
		result.skip(m, SkipAlreadyPosted)
		return router.ActionSkip

	case poster.IsPrecondition(err):
		r.logger.Info("Cannot auto-post, queueing for review",
			"meeting_id", m.ID,
			"task_id", d.Best.TaskID,
			"error", err)
		d.Reason = preconditionReason(err)
		r.queue(ctx, userID, m, d, index, result)
		return router.ActionReview

	default:
		result.fail(m, StagePost, err)
		return router.ActionAutoPost
	}
}

func preconditionReason(err error) string {
	switch {
	case errors.Is(err, poster.ErrUnresolvedTask):
		return "Matched task has no project or module"
	case errors.Is(err, poster.ErrZeroDuration), errors.Is(err, poster.ErrNonPositiveHours):
		return "Attended time rounds to zero hours"
	default:
		return err.Error()
	}
}

// retryRecord retries a ledger write for a time entry that already exists.
func (r *Runner) retryRecord(ctx context.Context, m model.Meeting, entry model.PostedEntry, result *RunResult) {
	err := common.WithRetry(ctx, func() error {
		return r.deps.Poster.Record(ctx, entry)
	}, r.retry)
	if err != nil {
		r.logger.Error("Ledger still missing posted entry; reconcile will repair it",
			"meeting_id", m.ID,
			"fingerprint", entry.Fingerprint,
			"error", err)
		result.fail(m, StageLedger, err)
	}
}

func (r *Runner) queue(ctx context.Context, userID string, m model.Meeting, d router.Decision, index model.TaskIndex, result *RunResult) {
	item := buildReviewItem(userID, m, d, index)
	queued, created, err := r.deps.Reviews.Enqueue(ctx, item)
	if err != nil {
		result.fail(m, StageReview, err)
		return
	}
	if !created {
		result.skip(m, SkipAlreadyReviewed)
		return
	}
	result.Queued = append(result.Queued, queued)
}

func buildReviewItem(userID string, m model.Meeting, d router.Decision, index model.TaskIndex) model.ReviewItem {
	subject := strings.TrimSpace(m.Subject)
	if subject == "" {
		subject = noSubject
	}

	suggestions := make([]model.SuggestedTask, 0, len(d.Suggestions))
	for _, s := range d.Suggestions {
		task := index[s.TaskID]
		title := s.TaskTitle
		if title == "" {
			title = task.Title
		}
		suggestions = append(suggestions, model.SuggestedTask{
			ID:          s.TaskID,
			Title:       title,
			Description: task.Description,
			Project:     task.Project,
			Module:      task.Module,
			Reason:      s.Reason,
			Confidence:  s.Confidence,
		})
	}

	return model.ReviewItem{
		StartTime:       m.Start,
		EndTime:         m.End,
		UserID:          userID,
		MeetingID:       m.ID,
		Fingerprint:     identity.Fingerprint(userID, m.Subject, m.Start),
		Subject:         subject,
		Reason:          d.Reason,
		Participants:    m.Participants(),
		SuggestedTasks:  suggestions,
		DurationSeconds: m.DurationFor(userID),
		Confidence:      d.Confidence,
	}
}

var _ DuplicateClassifier = (*dedup.Classifier)(nil)
