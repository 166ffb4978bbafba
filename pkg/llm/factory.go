package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Provider names accepted by NewChatClient.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds configuration for creating a chat client.
type Config struct {
	Provider       string        // "openai" (default) or "anthropic"
	Endpoint       string        // Base URL; empty uses the provider default
	Model          string        // Model name, e.g. "gpt-4o-mini"
	APIKey         string        // Optional for local OpenAI-compatible endpoints
	RequestTimeout time.Duration // Per-request timeout; zero means none
}

// NewChatClient creates the client for cfg.Provider.
func NewChatClient(cfg *Config, logger *zap.Logger) (ChatClient, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		client, err := NewOpenAIClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("create anthropic client: api key is required")
		}
		client, err := NewAnthropicClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
