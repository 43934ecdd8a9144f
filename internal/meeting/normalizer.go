// Package meeting turns raw calendar events and attendance reports into
// normalized meetings and optionally analyzes them for task matching.
package meeting

import (
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

// UnknownParticipant is the name used when a provider omits a display name.
const UnknownParticipant = "Unknown"

// Normalize folds raw attendance into the meeting. It never fails: missing or
// empty attendance yields an empty record set and a zero summary.
func Normalize(m model.Meeting, raw []model.RawAttendance) model.Meeting {
	m.Subject = strings.TrimSpace(m.Subject)
	m.Attendance = model.Attendance{Records: []model.AttendanceRecord{}}

	if len(raw) == 0 {
		return m
	}

	total := 0
	for _, r := range raw {
		name := strings.TrimSpace(r.DisplayName)
		if name == "" {
			name = UnknownParticipant
		}
		seconds := r.DurationSeconds
		if seconds < 0 {
			seconds = 0
		}
		if seconds == 0 && len(r.Intervals) > 0 {
			seconds = sumIntervals(r.Intervals)
		}

		m.Attendance.Records = append(m.Attendance.Records, model.AttendanceRecord{
			Name:            name,
			Email:           strings.TrimSpace(r.Email),
			Role:            r.Role,
			Intervals:       r.Intervals,
			DurationSeconds: seconds,
		})
		total += seconds
	}

	n := len(m.Attendance.Records)
	m.Attendance.Summary = model.AttendanceSummary{
		TotalDuration:    total,
		AverageDuration:  float64(total) / float64(n),
		ParticipantCount: n,
	}
	return m
}

func sumIntervals(intervals []model.AttendanceInterval) int {
	total := 0
	for _, iv := range intervals {
		switch {
		case iv.DurationSeconds > 0:
			total += iv.DurationSeconds
		case !iv.JoinTime.IsZero() && iv.LeaveTime.After(iv.JoinTime):
			total += int(iv.LeaveTime.Sub(iv.JoinTime).Seconds())
		}
	}
	return total
}
