package model

import (
	"fmt"
	"strings"
	"time"
)

// Meeting is a calendar meeting with attendance folded in.
type Meeting struct {
	Start       time.Time  `json:"startTime"`
	End         time.Time  `json:"endTime"`
	ID          string     `json:"id"`
	Subject     string     `json:"subject"`
	Organizer   string     `json:"organizer,omitempty"`
	BodyPreview string     `json:"bodyPreview,omitempty"`
	JoinURL     string     `json:"joinUrl,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Attendance  Attendance `json:"attendance"`
	IsOnline    bool       `json:"isOnline"`
}

// Attendee is an invited participant as listed on the calendar event.
type Attendee struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Attendance is the normalized attendance report of a meeting.
type Attendance struct {
	Records []AttendanceRecord `json:"records"`
	Summary AttendanceSummary  `json:"summary"`
}

// AttendanceRecord is one participant's attendance.
type AttendanceRecord struct {
	Name            string               `json:"name"`
	Email           string               `json:"email"`
	Role            string               `json:"role,omitempty"`
	Intervals       []AttendanceInterval `json:"intervals,omitempty"`
	DurationSeconds int                  `json:"duration"`
}

// AttendanceInterval is a single join/leave span.
type AttendanceInterval struct {
	JoinTime        time.Time `json:"joinDateTime"`
	LeaveTime       time.Time `json:"leaveDateTime"`
	DurationSeconds int       `json:"durationInSeconds"`
}

// AttendanceSummary aggregates attendance across all participants.
// It is informational; billing only ever uses the acting user's own record.
type AttendanceSummary struct {
	TotalDuration    int     `json:"totalDuration"`
	AverageDuration  float64 `json:"averageDuration"`
	ParticipantCount int     `json:"totalParticipants"`
}

// RawAttendance is an attendance entry as delivered by a calendar provider.
type RawAttendance struct {
	DisplayName     string
	Email           string
	Role            string
	Intervals       []AttendanceInterval
	DurationSeconds int
}

// Validate checks the meeting's structural invariants.
func (m *Meeting) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("meeting id is required")
	}
	if !m.Start.IsZero() && !m.End.IsZero() && !m.End.After(m.Start) {
		return fmt.Errorf("meeting %s ends at %s, not after start %s",
			m.ID, m.End.Format(time.RFC3339), m.Start.Format(time.RFC3339))
	}
	return nil
}

// DurationFor returns the attended seconds for the given user email.
// Matching is case-insensitive; an absent record yields 0.
func (m *Meeting) DurationFor(email string) int {
	email = strings.TrimSpace(email)
	if email == "" {
		return 0
	}
	for _, rec := range m.Attendance.Records {
		if strings.EqualFold(strings.TrimSpace(rec.Email), email) {
			return rec.DurationSeconds
		}
	}
	return 0
}

// ScheduledDuration is the calendar length of the meeting.
func (m *Meeting) ScheduledDuration() time.Duration {
	if m.Start.IsZero() || m.End.IsZero() {
		return 0
	}
	return m.End.Sub(m.Start)
}

// Participants returns the display names of everyone who attended,
// falling back to invited attendees when no attendance report exists.
func (m *Meeting) Participants() []string {
	var names []string
	if len(m.Attendance.Records) > 0 {
		for _, rec := range m.Attendance.Records {
			names = append(names, rec.Name)
		}
		return names
	}
	for _, a := range m.Attendees {
		if a.Name != "" {
			names = append(names, a.Name)
		} else {
			names = append(names, a.Email)
		}
	}
	return names
}
