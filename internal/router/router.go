// Package router turns match outcomes into exactly one action per meeting.
package router

import (
	"fmt"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/model"
)

// Review reasons.
const (
	ReasonNoMatch       = "No matching tasks found"
	ReasonLowConfidence = "Low confidence match"
	ReasonMatchError    = "Error during task matching"
	ReasonNoAttendance  = "No attendance recorded"
)

// Action is what should happen to a routed meeting.
type Action string

// Routing actions.
const (
	ActionAutoPost Action = "auto_post"
	ActionReview   Action = "review"
	ActionSkip     Action = "skip"
)

// Bucket is a reporting band for match confidence.
type Bucket string

// Confidence buckets.
const (
	BucketHigh      Bucket = "high"
	BucketMedium    Bucket = "medium"
	BucketLow       Bucket = "low"
	BucketUnmatched Bucket = "unmatched"
)

// Config holds routing thresholds.
type Config struct {
	ReviewThreshold    float64
	HighThreshold      float64
	MediumThreshold    float64
	SuggestionLimit    int
	ReviewZeroDuration bool
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		ReviewThreshold: 0.7,
		HighThreshold:   0.8,
		MediumThreshold: 0.5,
		SuggestionLimit: 5,
	}
}

// Validate checks that thresholds are ordered and within [0, 1].
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"review threshold": c.ReviewThreshold,
		"high threshold":   c.HighThreshold,
		"medium threshold": c.MediumThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be between 0 and 1, got %.2f", common.ErrInvalidConfig, name, v)
		}
	}
	if c.MediumThreshold > c.HighThreshold {
		return fmt.Errorf("%w: medium threshold %.2f exceeds high threshold %.2f",
			common.ErrInvalidConfig, c.MediumThreshold, c.HighThreshold)
	}
	if c.SuggestionLimit < 1 {
		return fmt.Errorf("%w: suggestion limit must be at least 1", common.ErrInvalidConfig)
	}
	return nil
}

// Decision is the routing result for one meeting.
type Decision struct {
	Best        *model.TaskMatch
	Action      Action
	Reason      string
	Suggestions model.TaskMatches
	Confidence  float64
}

// Router applies the confidence policy.
type Router struct {
	cfg Config
}

// New creates a router.
func New(cfg Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{cfg: cfg}, nil
}

// Route decides what happens to a meeting given its match outcome and any
// matching error. Every input maps to exactly one action.
func (r *Router) Route(outcome model.MatchOutcome, matchErr error) Decision {
	if matchErr != nil {
		return Decision{Action: ActionReview, Reason: ReasonMatchError}
	}

	if outcome.Skipped {
		if r.cfg.ReviewZeroDuration {
			return Decision{Action: ActionReview, Reason: ReasonNoAttendance}
		}
		reason := outcome.SkipReason
		if reason == "" {
			reason = ReasonNoAttendance
		}
		return Decision{Action: ActionSkip, Reason: reason}
	}

	if len(outcome.Matches) == 0 {
		return Decision{Action: ActionReview, Reason: ReasonNoMatch}
	}

	suggestions := outcome.Matches.Top(r.cfg.SuggestionLimit)
	best := suggestions[0]
	d := Decision{
		Best:        &best,
		Suggestions: suggestions,
		Confidence:  best.Confidence,
	}
	if best.Confidence >= r.cfg.ReviewThreshold {
		d.Action = ActionAutoPost
		return d
	}
	d.Action = ActionReview
	d.Reason = ReasonLowConfidence
	return d
}

// Bucket classifies a confidence for reporting.
func (r *Router) Bucket(confidence float64) Bucket {
	switch {
	case confidence >= r.cfg.HighThreshold:
		return BucketHigh
	case confidence >= r.cfg.MediumThreshold:
		return BucketMedium
	case confidence > 0:
		return BucketLow
	default:
		return BucketUnmatched
	}
}
