package engine

import (
	"context"

	"github.com/Veraticus/the-hours-must-flow/internal/dedup"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/poster"
	"github.com/Veraticus/the-hours-must-flow/internal/router"
)

// DuplicateClassifier splits meetings into already-posted and new.
type DuplicateClassifier interface {
	Classify(ctx context.Context, userID string, meetings []model.Meeting) (dedup.Result, error)
}

// TaskMatcher ranks candidate tasks for a meeting.
type TaskMatcher interface {
	MatchFailOpen(ctx context.Context, m model.Meeting, userEmail string, tasks []model.Task) (model.MatchOutcome, error)
}

// Router turns a match outcome into an action.
type Router interface {
	Route(outcome model.MatchOutcome, matchErr error) router.Decision
	Bucket(confidence float64) router.Bucket
}

// Poster writes time entries and their ledger records.
type Poster interface {
	Post(ctx context.Context, req poster.Request) (*model.PostedEntry, error)
	Record(ctx context.Context, record model.PostedEntry) error
}

// ReviewQueue holds meetings for a human decision.
type ReviewQueue interface {
	Enqueue(ctx context.Context, item model.ReviewItem) (model.ReviewItem, bool, error)
	IsDecided(ctx context.Context, userID, meetingID string) (bool, error)
}

// PostedIndex reads the ledger by fingerprint.
type PostedIndex interface {
	Index(ctx context.Context, userID string) (map[string]model.PostedEntry, error)
}
