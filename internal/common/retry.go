package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/service"
)

var (
	// ErrRateLimit indicates that the API rate limit has been exceeded.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrMaxRetries indicates that all retry attempts have been exhausted.
	ErrMaxRetries = errors.New("max retries exceeded")
)

// RetryableError carries a retry verdict for the wrapped error. RetryAfter,
// when set, is the server's requested wait before the next attempt.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration
	Retryable  bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// RetryAfter marks err as retryable no sooner than d from now.
func RetryAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err, Retryable: true, RetryAfter: d}
}

// ParseRetryAfter reads a Retry-After header given either as seconds or as
// an HTTP date. It returns 0 when the header is absent or unreadable.
func ParseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}

func withDefaults(opts service.RetryOptions) service.RetryOptions {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}
	return opts
}

// nextDelay picks the wait after a failed attempt. A server-requested wait
// wins, capped at MaxDelay; a bare rate limit waits the full MaxDelay.
func nextDelay(err error, backoff time.Duration, opts service.RetryOptions) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) && re.RetryAfter > 0 {
		return min(re.RetryAfter, opts.MaxDelay)
	}
	if errors.Is(err, ErrRateLimit) {
		return opts.MaxDelay
	}
	return backoff
}

// WithRetry runs operation until it succeeds, returns a Permanent error,
// runs out of attempts, or ctx ends. Backoff is exponential.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	opts = withDefaults(opts)
	backoff := opts.InitialDelay

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		var re *RetryableError
		if errors.As(err, &re) && !re.Retryable {
			return err
		}
		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, opts.MaxAttempts, err)
		}

		delay := nextDelay(err, backoff, opts)
		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*opts.Multiplier), opts.MaxDelay)
	}
}
