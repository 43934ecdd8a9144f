package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the day format time trackers expect.
const DateLayout = "2006-01-02"

// TimeEntry is a billable time record in the external time tracker.
type TimeEntry struct {
	ID          string  `json:"id,omitempty"`
	ProjectID   string  `json:"projectid" validate:"required"`
	ModuleID    string  `json:"moduleid" validate:"required"`
	TaskID      string  `json:"taskid" validate:"required"`
	WorktypeID  string  `json:"worktypeid"`
	PersonID    string  `json:"personid"`
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Description string  `json:"description"`
	Hours       float64 `json:"time" validate:"gt=0"`
	Billable    bool    `json:"billable"`
}

// UnmarshalJSON accepts the loosely typed records Intervals returns, where
// ids and hours may be strings or numbers and billable may be "t" or "f".
func (e *TimeEntry) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID          json.RawMessage `json:"id"`
		ProjectID   json.RawMessage `json:"projectid"`
		ModuleID    json.RawMessage `json:"moduleid"`
		TaskID      json.RawMessage `json:"taskid"`
		WorktypeID  json.RawMessage `json:"worktypeid"`
		PersonID    json.RawMessage `json:"personid"`
		Date        string          `json:"date"`
		Description string          `json:"description"`
		Hours       json.RawMessage `json:"time"`
		Billable    json.RawMessage `json:"billable"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := TimeEntry{Date: raw.Date, Description: raw.Description}
	var err error
	for _, f := range []struct {
		dst *string
		src json.RawMessage
	}{
		{&out.ID, raw.ID},
		{&out.ProjectID, raw.ProjectID},
		{&out.ModuleID, raw.ModuleID},
		{&out.TaskID, raw.TaskID},
		{&out.WorktypeID, raw.WorktypeID},
		{&out.PersonID, raw.PersonID},
	} {
		if *f.dst, err = looseString(f.src); err != nil {
			return err
		}
	}

	hours, err := looseString(raw.Hours)
	if err != nil {
		return fmt.Errorf("time: %w", err)
	}
	if hours != "" {
		if out.Hours, err = strconv.ParseFloat(hours, 64); err != nil {
			return fmt.Errorf("time: %w", err)
		}
	}

	billable, err := looseString(raw.Billable)
	if err != nil {
		return fmt.Errorf("billable: %w", err)
	}
	switch strings.ToLower(billable) {
	case "", "f", "false", "0", "n", "no":
	case "t", "true", "1", "y", "yes":
		out.Billable = true
	default:
		return fmt.Errorf("billable: unrecognized value %q", billable)
	}

	*e = out
	return nil
}

// looseString renders a JSON string, number or boolean as text; null and
// absent values are empty.
func looseString(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return "", nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// PostedEntry is one ledger record: a meeting that has been turned into a time entry.
type PostedEntry struct {
	PostedAt        time.Time       `json:"postedAt" validate:"required"`
	StartTime       time.Time       `json:"startTime"`
	Fingerprint     string          `json:"fingerprint" validate:"required"`
	MeetingID       string          `json:"meetingId,omitempty"`
	UserID          string          `json:"userId" validate:"required"`
	Subject         string          `json:"subject,omitempty"`
	RawResponse     json.RawMessage `json:"rawResponse,omitempty"`
	TimeEntry       *TimeEntry      `json:"timeEntry,omitempty"`
	DurationSeconds int             `json:"durationSeconds"`
}

// HasTimeEntry reports whether the record carries a posted time entry.
func (p *PostedEntry) HasTimeEntry() bool {
	return p.TimeEntry != nil && p.TimeEntry.TaskID != ""
}

// HoursFromSeconds converts seconds to decimal hours rounded to two places.
func HoursFromSeconds(seconds int) float64 {
	return math.Round(float64(seconds)/3600*100) / 100
}
