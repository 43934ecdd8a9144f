package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockClient is a scripted Client for tests.
// Responders are consulted in order; the first whose Contains matches the
// prompt answers it. Unmatched prompts get Default, or an error when unset.
type MockClient struct {
	Default    *MockResponse
	Responders []MockResponse
	calls      []MockCall
	mu         sync.Mutex
}

// MockResponse is one scripted answer.
type MockResponse struct {
	Err      error
	Contains string
	Text     string
}

// MockCall records a Complete invocation.
type MockCall struct {
	Prompt  string
	Options CompletionOptions
}

// NewMockClient creates a mock that answers every prompt with text.
func NewMockClient(text string) *MockClient {
	return &MockClient{Default: &MockResponse{Text: text}}
}

// NewFailingMockClient creates a mock whose every call fails with err.
func NewFailingMockClient(err error) *MockClient {
	return &MockClient{Default: &MockResponse{Err: err}}
}

// On registers a response for prompts containing substr.
func (m *MockClient) On(substr, text string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responders = append(m.Responders, MockResponse{Contains: substr, Text: text})
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(_ context.Context, prompt string, opts CompletionOptions) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: opts})

	for _, r := range m.Responders {
		if strings.Contains(prompt, r.Contains) {
			return r.Text, r.Err
		}
	}
	if m.Default != nil {
		return m.Default.Text, m.Default.Err
	}
	return "", fmt.Errorf("mock: no response scripted for prompt")
}

// Calls returns a copy of the recorded calls.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many completions were requested.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
