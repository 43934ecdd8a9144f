// Package service defines the interfaces for the collaborators the engine composes.
package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

// DateRange represents a time period with start and end dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// CalendarSource provides meetings and their attendance reports.
type CalendarSource interface {
	FetchMeetings(ctx context.Context, userID string, dateRange DateRange) ([]model.Meeting, error)
	FetchAttendance(ctx context.Context, userID string, meeting model.Meeting) ([]model.RawAttendance, error)
}

// TaskCatalog provides the tasks time can be logged against.
type TaskCatalog interface {
	FetchTasks(ctx context.Context) ([]model.Task, error)
}

// TimeEntrySink accepts time entries for an external time tracker.
type TimeEntrySink interface {
	PostTimeEntry(ctx context.Context, entry model.TimeEntry) (PostResult, error)
}

// TimeEntryLister lists entries already present in the external time tracker.
type TimeEntryLister interface {
	ListTimeEntries(ctx context.Context, personID string, dateRange DateRange) ([]model.TimeEntry, error)
}

// PostResult is what the time tracker returns for a created entry.
type PostResult struct {
	Created time.Time
	Updated time.Time
	ID      string
	Raw     json.RawMessage
}

// DocumentStore persists whole JSON documents by collection name.
// Load returns (nil, nil) when a collection has never been saved.
type DocumentStore interface {
	Load(ctx context.Context, collection string) ([]byte, error)
	Save(ctx context.Context, collection string, data []byte) error
	// Backup stores a copy of unreadable data and returns where it went.
	Backup(ctx context.Context, collection string, data []byte) (string, error)
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions returns the retry policy used by HTTP collaborators.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}
