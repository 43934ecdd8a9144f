package testutil

import (
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

// UserEmail is the acting user in fixtures.
const UserEmail = "u@x.com"

// MeetingBuilder builds meetings fluently.
//
// Example:
//
//	m := testutil.NewMeeting("m1").
//		WithSubject("Sprint Planning").
//		At(time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC), time.Hour).
//		Attended(testutil.UserEmail, 3000).
//		Build()
type MeetingBuilder struct {
	m model.Meeting
}

// NewMeeting starts a meeting with the given id, a one-hour slot on
// 2025-01-06 10:00 UTC, and no attendance.
func NewMeeting(id string) *MeetingBuilder {
	start := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	return &MeetingBuilder{m: model.Meeting{
		ID:        id,
		Subject:   "Meeting " + id,
		Start:     start,
		End:       start.Add(time.Hour),
		Organizer: "organizer@x.com",
		IsOnline:  true,
	}}
}

// WithSubject sets the subject.
func (b *MeetingBuilder) WithSubject(subject string) *MeetingBuilder {
	b.m.Subject = subject
	return b
}

// At sets start and duration.
func (b *MeetingBuilder) At(start time.Time, d time.Duration) *MeetingBuilder {
	b.m.Start = start
	b.m.End = start.Add(d)
	return b
}

// Attended adds an attendance record.
func (b *MeetingBuilder) Attended(email string, seconds int) *MeetingBuilder {
	b.m.Attendance.Records = append(b.m.Attendance.Records, model.AttendanceRecord{
		Name:            email,
		Email:           email,
		DurationSeconds: seconds,
		Role:            "Attendee",
	})
	total := 0
	for _, r := range b.m.Attendance.Records {
		total += r.DurationSeconds
	}
	n := len(b.m.Attendance.Records)
	b.m.Attendance.Summary = model.AttendanceSummary{
		TotalDuration:    total,
		AverageDuration:  float64(total) / float64(n),
		ParticipantCount: n,
	}
	return b
}

// Build returns the meeting.
func (b *MeetingBuilder) Build() model.Meeting {
	return b.m
}

// SprintPlanningTask is the catalog task used by the sprint planning scenario.
func SprintPlanningTask() model.Task {
	return model.Task{
		ID:        "t-sprint",
		Title:     "Sprint Planning - Team Alpha",
		Project:   "Alpha",
		ProjectID: "p-alpha",
		Module:    "Ceremonies",
		ModuleID:  "mod-ceremonies",
		Status:    "Open",
	}
}

// Catalog returns a small task catalog including SprintPlanningTask.
func Catalog() []model.Task {
	return []model.Task{
		SprintPlanningTask(),
		{
			ID:          "t-infra",
			Title:       "Infrastructure Upgrades",
			Description: "Kubernetes cluster maintenance",
			Project:     "Platform",
			ProjectID:   "p-platform",
			Module:      "Ops",
			ModuleID:    "mod-ops",
			Status:      "Open",
			Priority:    "High",
		},
		{
			ID:        "t-billing",
			Title:     "Invoice Export",
			Project:   "Finance",
			ProjectID: "p-finance",
			Module:    "Reporting",
			ModuleID:  "mod-reporting",
			Status:    "Open",
		},
	}
}
