package engine

import (
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/dedup"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/router"
)

// Skip is a meeting that was intentionally left alone.
type Skip struct {
	MeetingID string
	Subject   string
	Reason    string
}

// Failure is a meeting that could not be processed at some stage.
type Failure struct {
	Err       error
	MeetingID string
	Subject   string
	Stage     string
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Buckets    map[router.Bucket]int
	RunID      string
	UserID     string
	Posted     []model.PostedEntry
	Queued     []model.ReviewItem
	Duplicates []dedup.Decision
	Skipped    []Skip
	Failures   []Failure
	Total      int
}

func newRunResult(runID, userID string, started time.Time) *RunResult {
	return &RunResult{
		StartedAt: started,
		Buckets:   make(map[router.Bucket]int),
		RunID:     runID,
		UserID:    userID,
	}
}

func (r *RunResult) skip(m model.Meeting, reason string) {
	r.Skipped = append(r.Skipped, Skip{MeetingID: m.ID, Subject: m.Subject, Reason: reason})
}

func (r *RunResult) fail(m model.Meeting, stage string, err error) {
	r.Failures = append(r.Failures, Failure{Err: err, MeetingID: m.ID, Subject: m.Subject, Stage: stage})
}

// PostedHours is the total of hours posted during the run.
func (r *RunResult) PostedHours() float64 {
	var total float64
	for _, p := range r.Posted {
		if p.TimeEntry != nil {
			total += p.TimeEntry.Hours
		}
	}
	return total
}

// Duration is how long the run took.
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
