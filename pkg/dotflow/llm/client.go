// Package llm abstracts the model providers that back codergen stages.
//
// A Client turns CompletionRequests into responses; implementations
// exist for the Claude CLI binary (ClaudeCLI), the OpenAI API
// (OpenAI), and tests (MockClient). Clients must be safe for
// concurrent use: parallel stages may share one client.
package llm

import (
	"context"
	"sync"
)

// Client is a completion provider.
type Client interface {
	// Complete performs a single completion call.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Stream performs a completion call delivering output
	// incrementally. The channel closes after the final chunk.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}

// MockClient is a scripted Client for tests and dry runs. It records
// every request and replies with a fixed response, a cycling response
// list, a canned error, or a custom function.
type MockClient struct {
	mu           sync.Mutex
	response     string
	responses    []string
	nextResponse int
	err          error
	completeFn   func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Calls holds every request received, oldest first.
	Calls []CompletionRequest
}

// NewMockClient creates a mock that always answers with response.
func NewMockClient(response string) *MockClient {
	return &MockClient{response: response}
}

// WithResponses makes the mock cycle through the given responses, one
// per call, wrapping around at the end.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.responses = responses
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.err = err
	return m
}

// WithCompleteFunc replaces the canned behavior entirely.
func (m *MockClient) WithCompleteFunc(fn func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)) *MockClient {
	m.completeFn = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	if m.completeFn != nil {
		fn := m.completeFn
		m.mu.Unlock()
		return fn(ctx, req)
	}
	content := m.response
	if len(m.responses) > 0 {
		content = m.responses[m.nextResponse%len(m.responses)]
		m.nextResponse++
	}
	m.mu.Unlock()

	return &CompletionResponse{
		Content:      content,
		Model:        "mock",
		FinishReason: "stop",
		Usage:        approximateUsage(req, content),
	}, nil
}

// Stream implements Client. The mock delivers the whole response as
// one final chunk.
func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk, 1)
	usage := resp.Usage
	ch <- StreamChunk{Content: resp.Content, Done: true, Usage: &usage}
	close(ch)
	return ch, nil
}

// CallCount returns how many requests the mock has received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil before any call.
func (m *MockClient) LastCall() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	call := m.Calls[len(m.Calls)-1]
	return &call
}

// Reset clears recorded calls and restarts the response cycle.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.nextResponse = 0
}

// approximateUsage fabricates plausible token counts (roughly four
// characters per token, never zero) so usage-dependent code paths can
// be exercised without a live provider.
func approximateUsage(req CompletionRequest, content string) TokenUsage {
	input := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		input += len(msg.Content)
	}
	usage := TokenUsage{
		InputTokens:  input/4 + 1,
		OutputTokens: len(content)/4 + 1,
	}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	return usage
}
