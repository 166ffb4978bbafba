package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockChatClient is a configurable mock for testing tool-calling loops.
// Set ChatFunc, or queue scripted replies with Script.
type MockChatClient struct {
	// ChatFunc is called when Chat is invoked. If nil, the next scripted
	// reply is returned; with no script left, an empty final answer.
	ChatFunc func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	mu       sync.Mutex
	script   []scripted
	calls    int
	requests []ChatRequest
}

type scripted struct {
	resp *ChatResponse
	err  error
}

// NewMockChatClient creates a new mock with sensible defaults.
func NewMockChatClient() *MockChatClient {
	return &MockChatClient{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// Script queues replies returned in order by Chat.
func (m *MockChatClient) Script(responses ...*ChatResponse) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.script = append(m.script, scripted{resp: r})
	}
	return m
}

// ScriptError queues an error reply.
func (m *MockChatClient) ScriptError(err error) *MockChatClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, scripted{err: err})
	return m
}

// Chat implements ChatClient. The request is recorded with a copy of its
// message slice so later history changes do not alter it.
func (m *MockChatClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.calls++
	recorded := *req
	recorded.Messages = append([]Message(nil), req.Messages...)
	m.requests = append(m.requests, recorded)

	if m.ChatFunc != nil {
		fn := m.ChatFunc
		m.mu.Unlock()
		return fn(ctx, req)
	}
	defer m.mu.Unlock()

	if len(m.script) == 0 {
		return &ChatResponse{}, nil
	}
	next := m.script[0]
	m.script = m.script[1:]
	return next.resp, next.err
}

// Calls returns the number of Chat invocations.
func (m *MockChatClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Request returns the i-th recorded request.
func (m *MockChatClient) Request(i int) ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < 0 || i >= len(m.requests) {
		panic(fmt.Sprintf("mock: no request %d (have %d)", i, len(m.requests)))
	}
	return m.requests[i]
}

// GetModel implements ChatClient.
func (m *MockChatClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements ChatClient.
func (m *MockChatClient) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// ToolCallResponse builds a reply requesting one tool call.
func ToolCallResponse(id, name, arguments string) *ChatResponse {
	return &ChatResponse{
		ToolCalls: []ToolCall{{
			ID:       id,
			Type:     "function",
			Function: ToolCallFunc{Name: name, Arguments: arguments},
		}},
		FinishReason: "tool_calls",
	}
}

// TextResponse builds a final-answer reply.
func TextResponse(text string) *ChatResponse {
	return &ChatResponse{Content: text, FinishReason: "stop"}
}
