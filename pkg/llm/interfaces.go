// Package llm provides hosted chat-model clients with tool calling.
package llm

import (
	"context"
)

// ChatClient sends one conversation turn to a hosted model.
// Use this interface for dependency injection to enable mocking in tests.
type ChatClient interface {
	// Chat sends the conversation and tool definitions and returns either
	// final text or the tool calls the model requested.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure the provider clients implement ChatClient at compile time.
var (
	_ ChatClient = (*OpenAIClient)(nil)
	_ ChatClient = (*AnthropicClient)(nil)
	_ ChatClient = (*MockChatClient)(nil)
)
