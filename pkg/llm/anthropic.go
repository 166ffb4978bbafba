package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const (
	DefaultAnthropicEndpoint = "https://api.anthropic.com/v1"
	defaultAnthropicTokens   = 4096
)

// AnthropicClient talks to the Anthropic Messages API.
type AnthropicClient struct {
	client   *anthropic.Client
	endpoint string
	model    string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewAnthropicClient creates an Anthropic Messages client.
func NewAnthropicClient(cfg *Config, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultAnthropicEndpoint
	}

	return &AnthropicClient{
		client:   anthropic.NewClient(cfg.APIKey, anthropic.WithBaseURL(endpoint)),
		endpoint: endpoint,
		model:    cfg.Model,
		timeout:  cfg.RequestTimeout,
		logger:   logger.Named("llm"),
	}, nil
}

// Chat sends one Messages request with tools.
func (c *AnthropicClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicTokens
	}
	temperature := float32(req.Temperature)

	c.logger.Debug("LLM request",
		zap.String("model", c.model),
		zap.Int("message_count", len(req.Messages)),
		zap.Int("tool_count", len(req.Tools)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      req.SystemPrompt,
		Messages:    buildAnthropicMessages(req.Messages),
		Tools:       buildAnthropicTools(req.Tools),
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		llmErr := ClassifyError(err)
		llmErr.Model = c.model
		llmErr.Endpoint = c.endpoint
		return nil, llmErr
	}

	out := &ChatResponse{
		FinishReason:     string(resp.StopReason),
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
	}
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				out.Content += *block.Text
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			use := block.MessageContentToolUse
			args := string(use.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:       use.ID,
				Type:     "function",
				Function: ToolCallFunc{Name: use.Name, Arguments: args},
			})
		}
	}

	c.logger.Info("LLM request completed",
		zap.Int("prompt_tokens", out.PromptTokens),
		zap.Int("completion_tokens", out.CompletionTokens),
		zap.Int("tool_calls", len(out.ToolCalls)),
		zap.Duration("elapsed", time.Since(start)))

	return out, nil
}

// GetModel returns the configured model name.
func (c *AnthropicClient) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *AnthropicClient) GetEndpoint() string {
	return c.endpoint
}

// buildAnthropicMessages converts history into Messages API form. Tool
// results become tool_result blocks on a user message; consecutive results
// share one message as the API requires.
func buildAnthropicMessages(messages []Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			// Carried in MessagesRequest.System.
			continue
		case RoleAssistant:
			var content []anthropic.MessageContent
			if m.Content != "" {
				content = append(content, anthropic.NewTextMessageContent(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				content = append(content, anthropic.NewToolUseMessageContent(tc.ID, tc.Function.Name, input))
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
		case RoleTool:
			block := anthropic.NewToolResultMessageContent(m.ToolCallID, m.Content, m.IsError)
			if n := len(out); n > 0 && out[n-1].Role == anthropic.RoleUser && isToolResultMessage(out[n-1]) {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{block}})
		default:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(m.Content)},
			})
		}
	}
	return out
}

func isToolResultMessage(m anthropic.Message) bool {
	for _, c := range m.Content {
		if c.Type != anthropic.MessagesContentTypeToolResult {
			return false
		}
	}
	return len(m.Content) > 0
}

func buildAnthropicTools(tools []ToolDefinition) []anthropic.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolDefinition, len(tools))
	for i, t := range tools {
		out[i] = anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		}
	}
	return out
}
