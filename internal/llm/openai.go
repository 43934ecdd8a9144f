package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Veraticus/the-hours-must-flow/internal/common"
)

const (
	defaultOpenAIBaseURL   = "https://api.openai.com"
	defaultAzureAPIVersion = "2024-02-15-preview"
)

// openAIClient implements the Client interface for OpenAI and Azure OpenAI
// chat completions.
type openAIClient struct {
	httpClient  *http.Client
	url         string
	apiKey      string
	model       string
	azure       bool
	temperature float64
	maxTokens   int
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// newOpenAIClient creates a new OpenAI API client.
func newOpenAIClient(cfg Config) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", common.ErrMissingConfig)
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	base := strings.TrimRight(cfg.Endpoint, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}

	return &openAIClient{
		url:         base + "/v1/chat/completions",
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  newHTTPClient(),
	}, nil
}

// newAzureOpenAIClient creates a client for an Azure OpenAI deployment.
func newAzureOpenAIClient(cfg Config) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Azure OpenAI API key is required", common.ErrMissingConfig)
	}
	if cfg.Endpoint == "" || cfg.Deployment == "" {
		return nil, fmt.Errorf("%w: Azure OpenAI endpoint and deployment are required", common.ErrMissingConfig)
	}

	version := cfg.APIVersion
	if version == "" {
		version = defaultAzureAPIVersion
	}

	return &openAIClient{
		url: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			strings.TrimRight(cfg.Endpoint, "/"), cfg.Deployment, version),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		azure:       true,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  newHTTPClient(),
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Complete sends a chat completion request and returns the raw message content.
func (c *openAIClient) Complete(ctx context.Context, prompt string, opts CompletionOptions) (string, error) {
	system := opts.System
	if system == "" {
		system = defaultSystemPrompt
	}

	requestBody := map[string]any{
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": pick(opts.Temperature, c.temperature, 0.3),
		"max_tokens":  pickInt(opts.MaxTokens, c.maxTokens, 1000),
	}
	if c.model != "" {
		requestBody["model"] = c.model
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.azure {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if err := statusError("OpenAI", resp.StatusCode, body); err != nil {
		return "", err
	}

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(response.Choices) == 0 || response.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: no completion choices returned", common.ErrMalformedAnswer)
	}

	return response.Choices[0].Message.Content, nil
}

// statusError classifies a non-200 response for the retry loop.
func statusError(provider string, status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s API error (status %d): %w", provider, status, common.ErrRateLimit)
	case status >= 500:
		return fmt.Errorf("%s API error (status %d): %s", provider, status, string(body))
	default:
		return common.Permanent(fmt.Errorf("%s API error (status %d): %s", provider, status, string(body)))
	}
}

func pick(values ...float64) float64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}

func pickInt(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
