package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicClient implements the Client interface for the Anthropic Messages API.
type anthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (*anthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: anthropic API key is required", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// Retries are owned by Completer.
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &anthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// Complete sends a single-turn message and concatenates the text blocks of the reply.
func (c *anthropicClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	system := opts.System
	if system == "" {
		system = defaultSystemPrompt
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   int64(pickInt(opts.MaxTokens, c.maxTokens, 1000)),
		Temperature: anthropic.Float(pick(opts.Temperature, c.temperature, 0.3)),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", statusError("anthropic", apiErr.StatusCode, []byte(apiErr.Error()))
		}
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w: anthropic response had no text content", common.ErrMalformedAnswer)
	}

	return text.String(), nil
}
