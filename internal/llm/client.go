package llm

import (
	"context"
	"time"
)

// Client defines the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error)
}

// CompletionOptions tunes a single completion request.
// Zero values fall back to the provider defaults from Config.
type CompletionOptions struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Config holds configuration for the LLM client.
type Config struct {
	Provider          string
	APIKey            string
	Model             string
	Endpoint          string
	Deployment        string
	APIVersion        string
	MaxRetries        int
	RetryDelay        time.Duration
	CacheTTL          time.Duration
	RequestsPerMinute int
	TokensPerMinute   int
	Temperature       float64
	MaxTokens         int
}

const defaultSystemPrompt = "You are a precise assistant for reconciling calendar meetings with time-tracking tasks. " +
	"When asked for JSON, respond with a single valid JSON object and nothing else."
