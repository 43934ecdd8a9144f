package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/Veraticus/the-hours-must-flow/internal/service"
)

// NewClient creates a raw provider client based on the provided configuration.
func NewClient(cfg Config) (Client, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return newOpenAIClient(cfg)
	case "azure", "azure-openai":
		return newAzureOpenAIClient(cfg)
	case "anthropic":
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported LLM provider: %s", common.ErrInvalidConfig, cfg.Provider)
	}
}

// Completer wraps a provider client with rate limiting, retries, and caching.
type Completer struct {
	client      Client
	cache       *completionCache
	logger      *slog.Logger
	rateLimiter *rateLimiter
	retryOpts   service.RetryOptions
}

// NewCompleter creates a Completer for the configured provider.
func NewCompleter(cfg Config, logger *slog.Logger) (*Completer, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewCompleterWithClient(client, cfg, logger), nil
}

// NewCompleterWithClient wraps an existing client, which is how tests inject fakes.
func NewCompleterWithClient(client Client, cfg Config, logger *slog.Logger) *Completer {
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Completer{
		client:      client,
		cache:       newCompletionCache(cfg.CacheTTL),
		logger:      logger,
		retryOpts:   retryOpts,
		rateLimiter: newRateLimiter(cfg.RequestsPerMinute, cfg.TokensPerMinute),
	}
}

// Complete returns a cached completion when available, otherwise waits for
// rate-limit capacity and calls the provider with retries.
func (c *Completer) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	key := cacheKey(prompt, opts)
	if text, ok := c.cache.get(key); ok {
		c.logger.Debug("Using cached completion", "prompt_chars", len(prompt))
		return text, nil
	}

	var text string
	err := common.WithRetry(ctx, func() error {
		if err := c.rateLimiter.wait(ctx, prompt); err != nil {
			return common.Permanent(err)
		}
		var callErr error
		text, callErr = c.client.Complete(ctx, prompt, opts)
		return callErr
	}, c.retryOpts)
	if err != nil {
		return "", fmt.Errorf("completion failed: %w", err)
	}

	c.cache.set(key, text)
	return text, nil
}

// Close releases background resources.
func (c *Completer) Close() {
	c.cache.Close()
}
