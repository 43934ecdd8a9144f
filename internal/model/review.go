package model

import (
	"fmt"
	"time"
)

// ReviewStatus is the state of a review item.
type ReviewStatus string

// Review states. Pending is the only initial state; the rest are terminal.
const (
	ReviewPending       ReviewStatus = "pending"
	ReviewApproved      ReviewStatus = "approved"
	ReviewRejected      ReviewStatus = "rejected"
	ReviewNoEntryNeeded ReviewStatus = "no_entry_needed"
)

// IsTerminal reports whether no further transition is allowed.
func (s ReviewStatus) IsTerminal() bool {
	return s == ReviewApproved || s == ReviewRejected || s == ReviewNoEntryNeeded
}

// IsValid reports whether s is a known status.
func (s ReviewStatus) IsValid() bool {
	return s == ReviewPending || s.IsTerminal()
}

// ParseReviewStatus converts user input into a status.
func ParseReviewStatus(s string) (ReviewStatus, error) {
	status := ReviewStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown review status %q", s)
	}
	return status, nil
}

// SuggestedTask is a ranked candidate attached to a review item.
type SuggestedTask struct {
	ID          string  `json:"id" validate:"required"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Project     string  `json:"project"`
	Module      string  `json:"module"`
	Reason      string  `json:"reason"`
	Confidence  float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// ReviewItem is a meeting waiting for a human to pick a task.
type ReviewItem struct {
	StartTime       time.Time       `json:"startTime" validate:"required"`
	EndTime         time.Time       `json:"endTime" validate:"required"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	ID              string          `json:"id" validate:"required"`
	UserID          string          `json:"userId" validate:"required"`
	MeetingID       string          `json:"meetingId"`
	Fingerprint     string          `json:"fingerprint,omitempty"`
	Subject         string          `json:"subject" validate:"required"`
	Status          ReviewStatus    `json:"status" validate:"required,oneof=pending approved rejected no_entry_needed"`
	Reason          string          `json:"reason"`
	Participants    []string        `json:"participants,omitempty"`
	SuggestedTasks  []SuggestedTask `json:"suggestedTasks" validate:"dive"`
	DurationSeconds int             `json:"duration"`
	Confidence      float64         `json:"confidence"`
}

// ReviewDecision is an immutable audit record of a human decision.
type ReviewDecision struct {
	DecidedAt time.Time    `json:"decidedAt" validate:"required"`
	ID        string       `json:"id" validate:"required"`
	MeetingID string       `json:"meetingId" validate:"required"`
	UserID    string       `json:"userId" validate:"required"`
	TaskID    string       `json:"taskId,omitempty"`
	Status    ReviewStatus `json:"status" validate:"required"`
	Feedback  string       `json:"feedback,omitempty"`
	DecidedBy string       `json:"decidedBy"`
}

// ReviewStats summarizes a user's review queue.
type ReviewStats struct {
	TotalPending      int     `json:"totalPending"`
	TotalReviewed     int     `json:"totalReviewed"`
	ApprovalRate      float64 `json:"approvalRate"`
	AverageConfidence float64 `json:"averageConfidence"`
}

// Meeting rebuilds the reviewed meeting with the user's attended duration,
// which is all a time entry needs.
func (r ReviewItem) Meeting() Meeting {
	return Meeting{
		ID:      r.MeetingID,
		Subject: r.Subject,
		Start:   r.StartTime,
		End:     r.EndTime,
		Attendance: Attendance{
			Records: []AttendanceRecord{{
				Name:            r.UserID,
				Email:           r.UserID,
				DurationSeconds: r.DurationSeconds,
			}},
			Summary: AttendanceSummary{
				TotalDuration:    r.DurationSeconds,
				AverageDuration:  float64(r.DurationSeconds),
				ParticipantCount: 1,
			},
		},
	}
}
