// Package dedup decides which collected meetings have already been turned
// into time entries. A deterministic tier runs first and is authoritative;
// an AI tier handles what it cannot resolve and fails open to "unique".
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/identity"
	"github.com/Veraticus/the-hours-must-flow/internal/llm"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

// DurationTolerance is the largest attended-duration difference at which a
// fingerprint hit is still the same posting.
const DurationTolerance = 60 * time.Second

// PostedLister supplies a user's ledger entries.
type PostedLister interface {
	ListForUser(ctx context.Context, userID string) ([]model.PostedEntry, error)
}

// Config tunes the AI tier.
type Config struct {
	BatchSize          int
	BatchDelay         time.Duration
	DuplicateThreshold float64
	Temperature        float64
	MaxTokens          int
}

// DefaultConfig returns the standard comparison settings.
func DefaultConfig() Config {
	return Config{
		BatchSize:          3,
		BatchDelay:         15 * time.Second,
		DuplicateThreshold: 0.8,
		Temperature:        0.3,
		MaxTokens:          1000,
	}
}

// Validate checks configuration ranges.
func (c Config) Validate() error {
	switch {
	case c.BatchSize < 1:
		return fmt.Errorf("%w: dedup batch size must be at least 1, got %d", common.ErrInvalidConfig, c.BatchSize)
	case c.BatchDelay < 0:
		return fmt.Errorf("%w: dedup batch delay must not be negative", common.ErrInvalidConfig)
	case c.DuplicateThreshold < 0 || c.DuplicateThreshold > 1:
		return fmt.Errorf("%w: duplicate threshold must be between 0 and 1, got %.2f", common.ErrInvalidConfig, c.DuplicateThreshold)
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("%w: temperature must be between 0 and 2, got %.2f", common.ErrInvalidConfig, c.Temperature)
	case c.MaxTokens < 1:
		return fmt.Errorf("%w: max tokens must be positive", common.ErrInvalidConfig)
	}
	return nil
}

// Tier identifies which comparison settled a decision.
type Tier int

// Decision tiers.
const (
	TierNone Tier = iota
	TierDeterministic
	TierAI
)

// Criteria is the AI's breakdown of what matched.
type Criteria struct {
	TitleMatch    bool `json:"titleMatch"`
	DateMatch     bool `json:"dateMatch"`
	DurationMatch bool `json:"durationMatch"`
}

// Decision explains why a meeting was classified the way it was.
type Decision struct {
	MeetingID   string
	Fingerprint string
	MatchedKey  string
	Reason      string
	Criteria    Criteria
	Confidence  float64
	Tier        Tier
	Duplicate   bool
}

// Result partitions the input meetings.
type Result struct {
	Decisions  map[string]Decision
	Duplicates []model.Meeting
	Unique     []model.Meeting
}

// Classifier partitions meetings into already-posted duplicates and unique ones.
type Classifier struct {
	ledger PostedLister
	client llm.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
	cfg    Config
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithSleep replaces the inter-batch wait, which tests use to avoid real delays.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Classifier) { c.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// NewClassifier creates a classifier. A nil client disables the AI tier.
func NewClassifier(ledger PostedLister, client llm.Client, cfg Config, opts ...Option) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{
		ledger: ledger,
		client: client,
		cfg:    cfg,
		logger: slog.Default(),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classify partitions meetings for userID. Only a ledger read failure is
// returned as an error; AI trouble degrades to "unique".
func (c *Classifier) Classify(ctx context.Context, userID string, meetings []model.Meeting) (Result, error) {
	result := Result{Decisions: make(map[string]Decision, len(meetings))}
	if len(meetings) == 0 {
		return result, nil
	}

	posted, err := c.ledger.ListForUser(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("failed to read ledger: %w", err)
	}
	byKey := make(map[string]model.PostedEntry, len(posted))
	for _, p := range posted {
		if _, ok := byKey[p.Fingerprint]; !ok {
			byKey[p.Fingerprint] = p
		}
	}

	var unresolved []model.Meeting
	for _, m := range meetings {
		d := deterministic(userID, m, byKey)
		if d.Duplicate {
			c.logger.Debug("Duplicate by fingerprint",
				"meeting_id", m.ID,
				"fingerprint", d.Fingerprint)
			result.Decisions[m.ID] = d
			result.Duplicates = append(result.Duplicates, m)
			continue
		}
		unresolved = append(unresolved, m)
	}

	for start := 0; start < len(unresolved); start += c.cfg.BatchSize {
		if start > 0 {
			if err := c.sleep(ctx, c.cfg.BatchDelay); err != nil {
				c.logger.Warn("Duplicate comparison interrupted, treating remaining meetings as unique",
					"remaining", len(unresolved)-start,
					"error", err)
				for _, m := range unresolved[start:] {
					c.unique(&result, userID, m, "comparison interrupted")
				}
				break
			}
		}

		end := min(start+c.cfg.BatchSize, len(unresolved))
		c.logger.Debug("Comparing batch",
			"batch", start/c.cfg.BatchSize+1,
			"size", end-start)

		for _, m := range unresolved[start:end] {
			d := c.compare(ctx, userID, m, posted)
			result.Decisions[m.ID] = d
			if d.Duplicate {
				result.Duplicates = append(result.Duplicates, m)
			} else {
				result.Unique = append(result.Unique, m)
			}
		}
	}

	c.logger.Info("Duplicate classification complete",
		"user_id", userID,
		"duplicates", len(result.Duplicates),
		"unique", len(result.Unique))
	return result, nil
}

func (c *Classifier) unique(result *Result, userID string, m model.Meeting, reason string) {
	result.Decisions[m.ID] = Decision{
		MeetingID:   m.ID,
		Fingerprint: identity.Fingerprint(userID, m.Subject, m.Start),
		Reason:      reason,
	}
	result.Unique = append(result.Unique, m)
}

// deterministic applies the fingerprint rule: same key, a recorded time
// entry, and attended durations within DurationTolerance.
func deterministic(userID string, m model.Meeting, byKey map[string]model.PostedEntry) Decision {
	fp := identity.Fingerprint(userID, m.Subject, m.Start)
	d := Decision{MeetingID: m.ID, Fingerprint: fp}

	entry, ok := byKey[fp]
	if !ok || !entry.HasTimeEntry() {
		return d
	}

	diff := time.Duration(m.DurationFor(userID)-entry.DurationSeconds) * time.Second
	if diff.Abs() >= DurationTolerance {
		return d
	}

	d.Duplicate = true
	d.Tier = TierDeterministic
	d.MatchedKey = entry.Fingerprint
	d.Confidence = 1
	d.Reason = "fingerprint and attended duration match a posted entry"
	return d
}

// comparable posted entries share the meeting's calendar day.
func comparables(m model.Meeting, posted []model.PostedEntry) []model.PostedEntry {
	day := m.Start.UTC().Format(model.DateLayout)
	var out []model.PostedEntry
	for _, p := range posted {
		if p.StartTime.IsZero() {
			continue
		}
		if p.StartTime.UTC().Format(model.DateLayout) == day {
			out = append(out, p)
		}
	}
	return out
}

func (c *Classifier) compare(ctx context.Context, userID string, m model.Meeting, posted []model.PostedEntry) Decision {
	d := Decision{
		MeetingID:   m.ID,
		Fingerprint: identity.Fingerprint(userID, m.Subject, m.Start),
		Reason:      "no posted entry on the same day",
	}
	if c.client == nil {
		d.Reason = "no comparison model configured"
		return d
	}

	candidates := comparables(m, posted)
	for _, p := range candidates {
		answer, err := c.ask(ctx, userID, m, p)
		if err != nil {
			c.logger.Warn("AI duplicate comparison failed, treating as unique",
				"meeting_id", m.ID,
				"posted", p.Fingerprint,
				"error", err)
			d.Reason = "comparison failed"
			return d
		}

		if answer.IsDuplicate && answer.Confidence >= c.cfg.DuplicateThreshold {
			return Decision{
				MeetingID:   m.ID,
				Fingerprint: d.Fingerprint,
				MatchedKey:  p.Fingerprint,
				Reason:      answer.Reason,
				Criteria:    answer.MatchingCriteria,
				Confidence:  answer.Confidence,
				Tier:        TierAI,
				Duplicate:   true,
			}
		}
		d.Reason = answer.Reason
		d.Criteria = answer.MatchingCriteria
		d.Confidence = answer.Confidence
		d.Tier = TierAI
	}
	return d
}

type comparison struct {
	Reason           string   `json:"reason"`
	MatchingCriteria Criteria `json:"matchingCriteria"`
	Confidence       float64  `json:"confidence"`
	IsDuplicate      bool     `json:"isDuplicate"`
}

func (c *Classifier) ask(ctx context.Context, userID string, m model.Meeting, p model.PostedEntry) (comparison, error) {
	prompt, err := buildComparisonPrompt(userID, m, p)
	if err != nil {
		return comparison{}, err
	}

	text, err := c.client.Complete(ctx, prompt, llm.CompletionOptions{
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return comparison{}, err
	}

	var answer comparison
	if err := llm.DecodeJSONObject(text, &answer); err != nil {
		return comparison{}, err
	}
	if answer.Confidence < 0 || answer.Confidence > 1 {
		return comparison{}, fmt.Errorf("%w: confidence %.2f out of range", common.ErrMalformedAnswer, answer.Confidence)
	}
	return answer, nil
}

type comparedMeeting struct {
	ID             string   `json:"id"`
	Subject        string   `json:"subject"`
	StartTime      string   `json:"startTime"`
	EndTime        string   `json:"endTime,omitempty"`
	Description    string   `json:"description,omitempty"`
	Attendees      []string `json:"attendees,omitempty"`
	ActualDuration int      `json:"actualDuration"`
}

func buildComparisonPrompt(userID string, m model.Meeting, p model.PostedEntry) (string, error) {
	newMeeting, err := json.MarshalIndent(comparedMeeting{
		ID:             m.ID,
		Subject:        m.Subject,
		StartTime:      m.Start.UTC().Format(time.RFC3339),
		EndTime:        m.End.UTC().Format(time.RFC3339),
		Description:    m.BodyPreview,
		Attendees:      m.Participants(),
		ActualDuration: m.DurationFor(userID),
	}, "", "  ")
	if err != nil {
		return "", err
	}

	subject := p.Subject
	if subject == "" && p.TimeEntry != nil {
		subject = p.TimeEntry.Description
	}
	postedMeeting, err := json.MarshalIndent(comparedMeeting{
		ID:             p.Fingerprint,
		Subject:        subject,
		StartTime:      p.StartTime.UTC().Format(time.RFC3339),
		ActualDuration: p.DurationSeconds,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`Compare these meetings and determine whether the new meeting is the same instance as the previously posted one.

New Meeting:
%s

Previously Posted Meeting:
%s

Focus on:
1. Meeting title and description similarity
2. Date and start time
3. Actual attended duration (a key differentiator)

Recurring meetings with the same title are different instances when they occur
on different dates or have significantly different actual durations.

Respond with JSON only:
{
  "isDuplicate": boolean,
  "confidence": number between 0 and 1,
  "reason": string,
  "matchingCriteria": {"titleMatch": boolean, "dateMatch": boolean, "durationMatch": boolean}
}`, newMeeting, postedMeeting), nil
}
