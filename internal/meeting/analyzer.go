package meeting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/llm"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

// Analysis is the AI reading of a meeting that the matcher feeds into its prompt.
type Analysis struct {
	MeetingID           string   `json:"meetingId"`
	Subject             string   `json:"subject"`
	StartTime           string   `json:"startTime"`
	EndTime             string   `json:"endTime"`
	KeyPoints           []string `json:"keyPoints"`
	SuggestedCategories []string `json:"suggestedCategories"`
	Patterns            []string `json:"patterns,omitempty"`
	DurationSeconds     int      `json:"actualDuration"`
	RelevanceScore      float64  `json:"relevanceScore"`
	Confidence          float64  `json:"confidence"`
}

// Analyzer extracts key points and categories from meetings.
// A nil client disables the AI pass.
type Analyzer struct {
	client      llm.Client
	logger      *slog.Logger
	temperature float64
	maxTokens   int
}

// NewAnalyzer creates an analyzer backed by client.
func NewAnalyzer(client llm.Client, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		client:      client,
		logger:      logger,
		temperature: 0.3,
		maxTokens:   500,
	}
}

// Analyze returns the meeting analysis for userEmail. AI failures are logged
// and produce a base analysis carrying only subject, times, and duration.
func (a *Analyzer) Analyze(ctx context.Context, m model.Meeting, userEmail string) Analysis {
	base := Analysis{
		MeetingID:       m.ID,
		Subject:         m.Subject,
		StartTime:       m.Start.UTC().Format(time.RFC3339),
		EndTime:         m.End.UTC().Format(time.RFC3339),
		DurationSeconds: m.DurationFor(userEmail),
		RelevanceScore:  0.5,
		Confidence:      0.5,
	}
	if a == nil || a.client == nil {
		return base
	}

	text, err := a.client.Complete(ctx, buildAnalysisPrompt(m, base.DurationSeconds), llm.CompletionOptions{
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		a.logger.Warn("Meeting analysis failed, continuing without it",
			"meeting_id", m.ID,
			"error", err)
		return base
	}

	var parsed struct {
		KeyPoints           []string `json:"keyPoints"`
		SuggestedCategories []string `json:"suggestedCategories"`
		Patterns            []string `json:"patterns"`
		RelevanceScore      *float64 `json:"relevanceScore"`
		Confidence          *float64 `json:"confidence"`
	}
	if err := llm.DecodeJSONObject(text, &parsed); err != nil {
		a.logger.Warn("Meeting analysis unreadable",
			"meeting_id", m.ID,
			"error", err)
		return base
	}

	base.KeyPoints = cleanList(parsed.KeyPoints)
	base.SuggestedCategories = cleanList(parsed.SuggestedCategories)
	base.Patterns = cleanList(parsed.Patterns)
	if parsed.RelevanceScore != nil && inUnit(*parsed.RelevanceScore) {
		base.RelevanceScore = *parsed.RelevanceScore
	}
	if parsed.Confidence != nil && inUnit(*parsed.Confidence) {
		base.Confidence = *parsed.Confidence
	}
	return base
}

func inUnit(f float64) bool {
	return f >= 0 && f <= 1
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		item = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(item), "-"))
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func buildAnalysisPrompt(m model.Meeting, durationSeconds int) string {
	var sb strings.Builder

	sb.WriteString("Analyze this meeting so it can be matched to a time-tracking task.\n\n")
	sb.WriteString(fmt.Sprintf("Meeting Subject: %s\n", m.Subject))
	sb.WriteString(fmt.Sprintf("Date: %s to %s\n", m.Start.UTC().Format(time.RFC3339), m.End.UTC().Format(time.RFC3339)))
	if m.Organizer != "" {
		sb.WriteString(fmt.Sprintf("Organizer: %s\n", m.Organizer))
	}
	if participants := m.Participants(); len(participants) > 0 {
		sb.WriteString(fmt.Sprintf("Attendees: %s\n", strings.Join(participants, ", ")))
	} else {
		sb.WriteString("Attendees: None\n")
	}
	preview := strings.TrimSpace(m.BodyPreview)
	if preview == "" {
		preview = "No preview available"
	}
	sb.WriteString(fmt.Sprintf("Preview: %s\n", preview))
	sb.WriteString(fmt.Sprintf("Actual Duration: %d seconds\n\n", durationSeconds))

	sb.WriteString(`Respond with JSON only:
{
  "keyPoints": ["short phrases describing what the meeting was about"],
  "suggestedCategories": ["kinds of work this meeting belongs to"],
  "patterns": ["recurring themes, e.g. standup, planning, client call"],
  "relevanceScore": 0.0,
  "confidence": 0.0
}`)
	return sb.String()
}
