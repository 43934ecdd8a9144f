// Package review holds meetings that need a human to pick a task. Items move
// from pending to one terminal status; every decision is kept as an
// immutable audit record.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/poster"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
	"github.com/Veraticus/the-hours-must-flow/internal/storage"
	"github.com/google/uuid"
)

// Submission errors.
var (
	ErrTaskRequired  = errors.New("approval requires a task id")
	ErrInvalidStatus = errors.New("invalid review status")
)

// Poster is the time-entry writer invoked on approval.
type Poster interface {
	Post(ctx context.Context, req poster.Request) (*model.PostedEntry, error)
}

type reviewsDocument struct {
	Reviews []model.ReviewItem `json:"reviews"`
}

type decisionsDocument struct {
	Decisions []model.ReviewDecision `json:"decisions"`
}

func (d *reviewsDocument) Init() {
	if d.Reviews == nil {
		d.Reviews = []model.ReviewItem{}
	}
}

func (d *decisionsDocument) Init() {
	if d.Decisions == nil {
		d.Decisions = []model.ReviewDecision{}
	}
}

// Submission is a human decision on a review item.
type Submission struct {
	UserID    string
	ItemID    string
	TaskID    string
	Feedback  string
	DecidedBy string
	Status    model.ReviewStatus
}

// SubmitResult reports what a submission did.
type SubmitResult struct {
	Posted   *model.PostedEntry
	Item     model.ReviewItem
	Decision model.ReviewDecision
	Applied  bool
}

// Queue is the durable review queue.
type Queue struct {
	store   service.DocumentStore
	catalog service.TaskCatalog
	poster  Poster
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
	mu      sync.Mutex
}

// NewQueue creates a review queue. catalog and poster are needed only for approvals.
func NewQueue(store service.DocumentStore, catalog service.TaskCatalog, p Poster, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:   store,
		catalog: catalog,
		poster:  p,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

func (q *Queue) loadReviews(ctx context.Context) ([]model.ReviewItem, error) {
	doc, err := storage.LoadCollection[reviewsDocument](ctx, q.store, storage.CollectionReviews, q.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load reviews: %w", err)
	}
	items := make([]model.ReviewItem, 0, len(doc.Reviews))
	for _, item := range doc.Reviews {
		if err := storage.ValidateRecord(item); err != nil {
			q.logger.Warn("Dropping malformed review item",
				"id", item.ID,
				"meeting_id", item.MeetingID,
				"error", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (q *Queue) saveReviews(ctx context.Context, items []model.ReviewItem) error {
	if err := storage.SaveCollection(ctx, q.store, storage.CollectionReviews, reviewsDocument{Reviews: items}); err != nil {
		return fmt.Errorf("failed to save reviews: %w", err)
	}
	return nil
}

func (q *Queue) appendDecision(ctx context.Context, d model.ReviewDecision) error {
	doc, err := storage.LoadCollection[decisionsDocument](ctx, q.store, storage.CollectionDecisions, q.logger)
	if err != nil {
		return fmt.Errorf("failed to load decisions: %w", err)
	}
	doc.Decisions = append(doc.Decisions, d)
	if err := storage.SaveCollection(ctx, q.store, storage.CollectionDecisions, doc); err != nil {
		return fmt.Errorf("failed to save decisions: %w", err)
	}
	return nil
}

func sameUser(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func findItem(items []model.ReviewItem, userID, id string) int {
	for i, item := range items {
		if sameUser(item.UserID, userID) && (item.ID == id || item.MeetingID == id) {
			return i
		}
	}
	return -1
}

// Enqueue adds or refreshes a pending item for (userID, meetingID). A meeting
// whose item is already decided is left untouched and reports false.
func (q *Queue) Enqueue(ctx context.Context, item model.ReviewItem) (model.ReviewItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadReviews(ctx)
	if err != nil {
		return model.ReviewItem{}, false, err
	}

	now := q.now().UTC()
	item.Status = model.ReviewPending
	item.UpdatedAt = now

	idx := -1
	for i, existing := range items {
		if sameUser(existing.UserID, item.UserID) && existing.MeetingID == item.MeetingID {
			idx = i
			break
		}
	}

	if idx >= 0 {
		existing := items[idx]
		if existing.Status.IsTerminal() {
			q.logger.Debug("Review already decided, not requeueing",
				"meeting_id", item.MeetingID,
				"status", existing.Status)
			return existing, false, nil
		}
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	} else {
		item.ID = q.newID()
		item.CreatedAt = now
	}

	if err := storage.ValidateRecord(item); err != nil {
		return model.ReviewItem{}, false, err
	}

	if idx >= 0 {
		items[idx] = item
	} else {
		items = append(items, item)
	}
	if err := q.saveReviews(ctx, items); err != nil {
		return model.ReviewItem{}, false, err
	}

	q.logger.Info("Queued meeting for review",
		"meeting_id", item.MeetingID,
		"reason", item.Reason,
		"confidence", item.Confidence)
	return item, true, nil
}

// Get returns the item with the given review or meeting id.
func (q *Queue) Get(ctx context.Context, userID, id string) (model.ReviewItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadReviews(ctx)
	if err != nil {
		return model.ReviewItem{}, err
	}
	idx := findItem(items, userID, id)
	if idx < 0 {
		return model.ReviewItem{}, fmt.Errorf("review %s: %w", id, common.ErrNotFound)
	}
	return items[idx], nil
}

// IsDecided reports whether the meeting has a terminal review.
func (q *Queue) IsDecided(ctx context.Context, userID, meetingID string) (bool, error) {
	item, err := q.Get(ctx, userID, meetingID)
	if errors.Is(err, common.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return item.Status.IsTerminal(), nil
}

// List returns the user's items, optionally filtered by status, most recent
// meeting first.
func (q *Queue) List(ctx context.Context, userID string, status model.ReviewStatus) ([]model.ReviewItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadReviews(ctx)
	if err != nil {
		return nil, err
	}

	var out []model.ReviewItem
	for _, item := range items {
		if !sameUser(item.UserID, userID) {
			continue
		}
		if status != "" && item.Status != status {
			continue
		}
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}

// Pending returns the user's pending items, most recent meeting first.
func (q *Queue) Pending(ctx context.Context, userID string) ([]model.ReviewItem, error) {
	return q.List(ctx, userID, model.ReviewPending)
}

// Submit applies a decision. Approval posts the time entry synchronously; if
// posting fails the item stays pending and no decision is recorded. Decisions
// on already-decided items are recorded without changing status.
func (q *Queue) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	if !sub.Status.IsTerminal() {
		return SubmitResult{}, fmt.Errorf("%w: %q", ErrInvalidStatus, sub.Status)
	}
	if sub.Status == model.ReviewApproved && strings.TrimSpace(sub.TaskID) == "" {
		return SubmitResult{}, ErrTaskRequired
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.loadReviews(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	idx := findItem(items, sub.UserID, sub.ItemID)
	if idx < 0 {
		return SubmitResult{}, fmt.Errorf("review %s: %w", sub.ItemID, common.ErrNotFound)
	}
	item := items[idx]

	decidedBy := sub.DecidedBy
	if decidedBy == "" {
		decidedBy = sub.UserID
	}
	decision := model.ReviewDecision{
		DecidedAt: q.now().UTC(),
		ID:        q.newID(),
		MeetingID: item.MeetingID,
		UserID:    item.UserID,
		TaskID:    sub.TaskID,
		Status:    sub.Status,
		Feedback:  sub.Feedback,
		DecidedBy: decidedBy,
	}
	result := SubmitResult{Item: item, Decision: decision}

	if item.Status.IsTerminal() {
		q.logger.Info("Recording decision on already decided review",
			"meeting_id", item.MeetingID,
			"status", item.Status,
			"submitted", sub.Status)
		return result, q.appendDecision(ctx, decision)
	}

	var postErr error
	if sub.Status == model.ReviewApproved {
		result.Posted, postErr = q.post(ctx, item, sub.TaskID)
		var unrecorded *poster.UnrecordedError
		if postErr != nil && !errors.As(postErr, &unrecorded) {
			return result, fmt.Errorf("approval of %s not applied: %w", item.MeetingID, postErr)
		}
	}

	item.Status = sub.Status
	item.UpdatedAt = decision.DecidedAt
	items[idx] = item
	if err := q.saveReviews(ctx, items); err != nil {
		return result, err
	}
	if err := q.appendDecision(ctx, decision); err != nil {
		return result, err
	}

	result.Item = item
	result.Applied = true
	return result, postErr
}

func (q *Queue) post(ctx context.Context, item model.ReviewItem, taskID string) (*model.PostedEntry, error) {
	if q.poster == nil || q.catalog == nil {
		return nil, fmt.Errorf("%w: no time tracker configured for approvals", common.ErrMissingConfig)
	}

	tasks, err := q.catalog.FetchTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrTaskCatalogFailed, err)
	}
	task, ok := model.NewTaskIndex(tasks)[taskID]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, common.ErrNotFound)
	}

	posted, err := q.poster.Post(ctx, poster.Request{
		Meeting: item.Meeting(),
		Task:    task,
		UserID:  item.UserID,
	})
	if errors.Is(err, poster.ErrAlreadyPosted) {
		q.logger.Info("Approved meeting was already posted",
			"meeting_id", item.MeetingID)
		return nil, nil
	}
	return posted, err
}

// Stats summarizes the user's queue.
func (q *Queue) Stats(ctx context.Context, userID string) (model.ReviewStats, error) {
	items, err := q.List(ctx, userID, "")
	if err != nil {
		return model.ReviewStats{}, err
	}

	var stats model.ReviewStats
	approved := 0
	confidence := 0.0
	for _, item := range items {
		confidence += item.Confidence
		switch item.Status {
		case model.ReviewPending:
			stats.TotalPending++
		case model.ReviewApproved:
			approved++
			stats.TotalReviewed++
		default:
			stats.TotalReviewed++
		}
	}
	if stats.TotalReviewed > 0 {
		stats.ApprovalRate = float64(approved) / float64(stats.TotalReviewed) * 100
	}
	if len(items) > 0 {
		stats.AverageConfidence = confidence / float64(len(items))
	}
	return stats, nil
}

// Decisions returns the user's decision history, oldest first.
func (q *Queue) Decisions(ctx context.Context, userID string) ([]model.ReviewDecision, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	doc, err := storage.LoadCollection[decisionsDocument](ctx, q.store, storage.CollectionDecisions, q.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load decisions: %w", err)
	}
	var out []model.ReviewDecision
	for _, d := range doc.Decisions {
		if sameUser(d.UserID, userID) {
			out = append(out, d)
		}
	}
	return out, nil
}
