package model

import (
	"fmt"
	"sort"
)

// MatchSource identifies which tier produced a match.
type MatchSource string

// Match sources.
const (
	MatchSourceKeyword MatchSource = "keyword"
	MatchSourceAI      MatchSource = "ai"
)

// MeetingDetails echoes the meeting a match was produced for.
type MeetingDetails struct {
	Subject        string `json:"subject"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	ActualDuration int    `json:"actualDuration"`
}

// TaskMatch is a candidate task for a meeting.
type TaskMatch struct {
	TaskID         string         `json:"taskId"`
	TaskTitle      string         `json:"taskTitle"`
	Reason         string         `json:"reason"`
	Source         MatchSource    `json:"source"`
	MeetingDetails MeetingDetails `json:"meetingDetails"`
	Confidence     float64        `json:"confidence"`
}

// Validate ensures the match has usable data.
func (m *TaskMatch) Validate() error {
	if m.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", m.Confidence)
	}
	return nil
}

// TaskMatches is a slice of TaskMatch that supports sorting and utility methods.
type TaskMatches []TaskMatch

// Len implements sort.Interface.
func (r TaskMatches) Len() int {
	return len(r)
}

// Less implements sort.Interface - higher confidence comes first, then the
// more descriptive reason.
func (r TaskMatches) Less(i, j int) bool {
	if r[i].Confidence != r[j].Confidence {
		return r[i].Confidence > r[j].Confidence
	}
	if len(r[i].Reason) != len(r[j].Reason) {
		return len(r[i].Reason) > len(r[j].Reason)
	}
	return r[i].TaskID < r[j].TaskID
}

// Swap implements sort.Interface.
func (r TaskMatches) Swap(i, j int) {
	r[i], r[j] = r[j], r[i]
}

// Sort sorts the matches by confidence in descending order.
func (r TaskMatches) Sort() {
	sort.Stable(r)
}

// Best returns the highest-confidence match, or nil if empty.
func (r TaskMatches) Best() *TaskMatch {
	if len(r) == 0 {
		return nil
	}
	r.Sort()
	return &r[0]
}

// Top returns the N highest-confidence matches.
func (r TaskMatches) Top(n int) TaskMatches {
	if n <= 0 {
		return TaskMatches{}
	}
	r.Sort()
	if n > len(r) {
		n = len(r)
	}
	out := make(TaskMatches, n)
	copy(out, r[:n])
	return out
}

// AboveThreshold returns matches with confidence >= threshold.
func (r TaskMatches) AboveThreshold(threshold float64) TaskMatches {
	var out TaskMatches
	for _, m := range r {
		if m.Confidence >= threshold {
			out = append(out, m)
		}
	}
	return out
}

// MatchOutcome is the result of matching one meeting against the catalog.
type MatchOutcome struct {
	SkipReason string
	Matches    TaskMatches
	Skipped    bool
}
