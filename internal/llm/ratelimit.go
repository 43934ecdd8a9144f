package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter throttles requests and estimated prompt tokens per minute.
type rateLimiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// newRateLimiter creates a limiter for the given per-minute budgets.
// A zero token budget disables token accounting.
func newRateLimiter(requestsPerMinute, tokensPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	rl := &rateLimiter{
		requests: rate.NewLimiter(perMinute(requestsPerMinute), requestsPerMinute),
	}
	if tokensPerMinute > 0 {
		rl.tokens = rate.NewLimiter(perMinute(tokensPerMinute), tokensPerMinute)
	}
	return rl
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// wait blocks until both budgets allow the request or the context is canceled.
func (rl *rateLimiter) wait(ctx context.Context, prompt string) error {
	if rl.tokens != nil {
		n := estimateTokens(prompt)
		if n > rl.tokens.Burst() {
			n = rl.tokens.Burst()
		}
		if err := rl.tokens.WaitN(ctx, n); err != nil {
			return fmt.Errorf("rate limiter canceled: %w", err)
		}
	}
	if err := rl.requests.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter canceled: %w", err)
	}
	return nil
}

// estimateTokens approximates prompt size at four characters per token.
func estimateTokens(prompt string) int {
	n := (len(prompt) + 3) / 4
	if n < 1 {
		return 1
	}
	return n
}
