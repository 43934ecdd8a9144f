// Package matcher scores a meeting against the task catalog. A deterministic
// keyword tier runs first; the AI tier is consulted only when it finds nothing.
package matcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/llm"
	"github.com/Veraticus/the-hours-must-flow/internal/meeting"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
	"github.com/Veraticus/the-hours-must-flow/internal/pattern"
)

// SkipNoAttendance is the skip reason for meetings the user did not attend.
const SkipNoAttendance = "No attendance recorded"

// Config tunes matching.
type Config struct {
	KeywordConfidence float64
	Temperature       float64
	MaxTokens         int
}

// DefaultConfig returns the standard matcher settings.
func DefaultConfig() Config {
	return Config{
		KeywordConfidence: 0.9,
		Temperature:       0.3,
		MaxTokens:         1000,
	}
}

// Validate checks configuration ranges.
func (c Config) Validate() error {
	if c.KeywordConfidence <= 0 || c.KeywordConfidence > 1 {
		return fmt.Errorf("%w: keyword confidence must be in (0, 1], got %.2f", common.ErrInvalidConfig, c.KeywordConfidence)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2, got %.2f", common.ErrInvalidConfig, c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("%w: max tokens must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// Matcher produces ranked task candidates for meetings.
type Matcher struct {
	keywords pattern.Matcher
	analyzer *meeting.Analyzer
	client   llm.Client
	logger   *slog.Logger
	cfg      Config
}

// New creates a matcher. keywords may be nil to use the default keyword
// table; a nil client disables the AI tier.
func New(keywords pattern.Matcher, client llm.Client, cfg Config, logger *slog.Logger) (*Matcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if keywords == nil {
		keywords = pattern.NewKeywordMatcher(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		keywords: keywords,
		analyzer: meeting.NewAnalyzer(client, logger),
		client:   client,
		logger:   logger,
		cfg:      cfg,
	}, nil
}

// Match ranks tasks for the meeting on behalf of userEmail. Meetings the
// user did not attend are skipped without consulting either tier.
func (m *Matcher) Match(ctx context.Context, mt model.Meeting, userEmail string, tasks []model.Task) (model.MatchOutcome, error) {
	duration := mt.DurationFor(userEmail)
	if duration <= 0 {
		m.logger.Debug("Skipping meeting without attendance",
			"meeting_id", mt.ID,
			"user_id", userEmail)
		return model.MatchOutcome{Skipped: true, SkipReason: SkipNoAttendance}, nil
	}
	if len(tasks) == 0 {
		return model.MatchOutcome{}, nil
	}

	details := model.MeetingDetails{
		Subject:        mt.Subject,
		StartTime:      mt.Start.UTC().Format(timeLayout),
		EndTime:        mt.End.UTC().Format(timeLayout),
		ActualDuration: duration,
	}

	if matches := m.keywordMatches(mt.Subject, details, tasks); len(matches) > 0 {
		matches.Sort()
		m.logger.Debug("Keyword match",
			"meeting_id", mt.ID,
			"task_id", matches[0].TaskID,
			"candidates", len(matches))
		return model.MatchOutcome{Matches: matches}, nil
	}

	if m.client == nil {
		return model.MatchOutcome{}, nil
	}

	matches, err := m.aiMatches(ctx, mt, userEmail, tasks)
	if err != nil {
		return model.MatchOutcome{}, err
	}
	matches.Sort()
	return model.MatchOutcome{Matches: matches}, nil
}

// MatchFailOpen runs Match and converts any failure into an empty outcome.
// The error is still returned so the router can record why.
func (m *Matcher) MatchFailOpen(ctx context.Context, mt model.Meeting, userEmail string, tasks []model.Task) (model.MatchOutcome, error) {
	outcome, err := m.Match(ctx, mt, userEmail, tasks)
	if err != nil {
		m.logger.Warn("Task matching failed",
			"meeting_id", mt.ID,
			"error", err)
		return model.MatchOutcome{}, err
	}
	return outcome, nil
}

func (m *Matcher) keywordMatches(subject string, details model.MeetingDetails, tasks []model.Task) model.TaskMatches {
	var matches model.TaskMatches
	for _, task := range tasks {
		hit, ok := m.keywords.Match(subject, task)
		if !ok {
			continue
		}
		matches = append(matches, model.TaskMatch{
			TaskID:         task.ID,
			TaskTitle:      task.Title,
			Reason:         hit.Reason,
			Source:         model.MatchSourceKeyword,
			MeetingDetails: details,
			Confidence:     m.cfg.KeywordConfidence,
		})
	}
	return matches
}

func (m *Matcher) aiMatches(ctx context.Context, mt model.Meeting, userEmail string, tasks []model.Task) (model.TaskMatches, error) {
	analysis := m.analyzer.Analyze(ctx, mt, userEmail)

	prompt, err := buildMatchingPrompt(analysis, mt, tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to build matching prompt: %w", err)
	}

	text, err := m.client.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: m.cfg.Temperature,
		MaxTokens:   m.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("task matching request failed: %w", err)
	}

	matches, dropped, err := ParseMatches(text, model.NewTaskIndex(tasks))
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		m.logger.Debug("Dropped invalid match candidates",
			"meeting_id", mt.ID,
			"dropped", dropped)
	}
	return matches, nil
}
