package matcher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/llm"
	"github.com/Veraticus/the-hours-must-flow/internal/meeting"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

const timeLayout = time.RFC3339

type matchingContext struct {
	ProjectContext string `json:"projectContext"`
	IsActive       bool   `json:"isActive"`
	HasPriority    bool   `json:"hasPriority"`
	HasDescription bool   `json:"hasDescription"`
}

type promptTask struct {
	model.Task
	MatchingContext matchingContext `json:"matchingContext"`
}

type promptMeeting struct {
	Analysis   promptAnalysis   `json:"analysis"`
	Subject    string           `json:"subject"`
	StartTime  string           `json:"startTime"`
	EndTime    string           `json:"endTime"`
	Attendance model.Attendance `json:"attendance"`
	Duration   int              `json:"duration"`
}

type promptAnalysis struct {
	KeyPoints           []string `json:"keyPoints"`
	SuggestedCategories []string `json:"suggestedCategories"`
	Patterns            []string `json:"patterns,omitempty"`
	Confidence          float64  `json:"confidence"`
}

func buildMatchingPrompt(analysis meeting.Analysis, mt model.Meeting, tasks []model.Task) (string, error) {
	meetingJSON, err := json.MarshalIndent(promptMeeting{
		Subject:   analysis.Subject,
		StartTime: analysis.StartTime,
		EndTime:   analysis.EndTime,
		Duration:  analysis.DurationSeconds,
		Analysis: promptAnalysis{
			KeyPoints:           nonNil(analysis.KeyPoints),
			SuggestedCategories: nonNil(analysis.SuggestedCategories),
			Patterns:            analysis.Patterns,
			Confidence:          analysis.Confidence,
		},
		Attendance: mt.Attendance,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	annotated := make([]promptTask, 0, len(tasks))
	for _, t := range tasks {
		annotated = append(annotated, promptTask{
			Task: t,
			MatchingContext: matchingContext{
				IsActive:       t.IsActive(),
				HasPriority:    strings.TrimSpace(t.Priority) != "",
				HasDescription: strings.TrimSpace(t.Description) != "",
				ProjectContext: t.Project,
			},
		})
	}
	tasksJSON, err := json.MarshalIndent(annotated, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`Match this meeting with the most relevant time-tracking task(s).

Meeting Details:
%s

Available Tasks:
%s

Respond with JSON only, in this format:
{
  "matchedTasks": [
    {
      "taskId": "string",
      "taskTitle": "string",
      "meetingDetails": {
        "subject": "string",
        "startTime": "string",
        "endTime": "string",
        "actualDuration": number
      },
      "confidence": number,
      "reason": "string"
    }
  ]
}

Notes:
1. Only include tasks with meaningful relevance to the meeting
2. Confidence is a number between 0 and 1
3. Give a clear reason for each match
4. actualDuration is the attended duration in seconds from the meeting details`, meetingJSON, tasksJSON), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// flexString accepts JSON strings and numbers; task catalogs use numeric IDs.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type rawDetails struct {
	Subject        *string  `json:"subject"`
	StartTime      *string  `json:"startTime"`
	EndTime        *string  `json:"endTime"`
	ActualDuration *float64 `json:"actualDuration"`
}

type rawCandidate struct {
	TaskID         *flexString `json:"taskId"`
	TaskTitle      *string     `json:"taskTitle"`
	MeetingDetails *rawDetails `json:"meetingDetails"`
	Confidence     *float64    `json:"confidence"`
	Reason         *string     `json:"reason"`
}

func (c rawCandidate) complete() bool {
	if c.TaskID == nil || *c.TaskID == "" ||
		c.TaskTitle == nil || *c.TaskTitle == "" ||
		c.Reason == nil || *c.Reason == "" ||
		c.Confidence == nil {
		return false
	}
	d := c.MeetingDetails
	return d != nil &&
		d.Subject != nil && *d.Subject != "" &&
		d.StartTime != nil && *d.StartTime != "" &&
		d.EndTime != nil && *d.EndTime != "" &&
		d.ActualDuration != nil
}

// ParseMatches reads the model's matchedTasks answer. Candidates missing a
// required field, with confidence outside [0, 1], or naming a task not in
// the catalog are dropped and counted. Only a response with no readable JSON
// object is an error.
func ParseMatches(text string, catalog model.TaskIndex) (model.TaskMatches, int, error) {
	var envelope struct {
		MatchedTasks []json.RawMessage `json:"matchedTasks"`
	}
	if err := llm.DecodeJSONObject(text, &envelope); err != nil {
		return nil, 0, err
	}

	matches := make(model.TaskMatches, 0, len(envelope.MatchedTasks))
	dropped := 0
	for _, raw := range envelope.MatchedTasks {
		var c rawCandidate
		if err := json.Unmarshal(raw, &c); err != nil || !c.complete() {
			dropped++
			continue
		}
		if _, known := catalog[string(*c.TaskID)]; !known {
			dropped++
			continue
		}

		match := model.TaskMatch{
			TaskID:    string(*c.TaskID),
			TaskTitle: *c.TaskTitle,
			Reason:    *c.Reason,
			Source:    model.MatchSourceAI,
			MeetingDetails: model.MeetingDetails{
				Subject:        *c.MeetingDetails.Subject,
				StartTime:      *c.MeetingDetails.StartTime,
				EndTime:        *c.MeetingDetails.EndTime,
				ActualDuration: int(*c.MeetingDetails.ActualDuration),
			},
			Confidence: *c.Confidence,
		}
		if err := match.Validate(); err != nil {
			dropped++
			continue
		}
		matches = append(matches, match)
	}

	return matches, dropped, nil
}
