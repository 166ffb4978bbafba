package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnthropicClient_ToolUse(t *testing.T) {
	var sent map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &sent))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5-20250929",
			"content": [
				{"type": "text", "text": "Let me look that up."},
				{"type": "tool_use", "id": "toolu_1", "name": "run_query", "input": {"sql": "SELECT 1"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 9}
		}`))
	}))
	defer server.Close()

	client, err := NewAnthropicClient(&Config{Endpoint: server.URL + "/v1", Model: "claude-sonnet-4-5-20250929", APIKey: "key"}, zap.NewNop())
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(), &ChatRequest{
		SystemPrompt: "You are a Pokédex.",
		Messages:     []Message{{Role: RoleUser, Content: "How fast is Pikachu?"}},
		Tools: []ToolDefinition{NewToolDefinition("run_query", "Run SQL", map[string]ParameterProperty{
			"sql": {Type: "string"},
		}, []string{"sql"})},
		Temperature: 0.1,
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me look that up.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_1", resp.ToolCalls[0].ID)
	assert.JSONEq(t, `{"sql":"SELECT 1"}`, resp.ToolCalls[0].Function.Arguments)
	assert.Equal(t, "tool_use", resp.FinishReason)
	assert.Equal(t, 20, resp.PromptTokens)

	assert.Equal(t, "You are a Pokédex.", sent["system"])
	tools := sent["tools"].([]any)
	assert.Equal(t, "run_query", tools[0].(map[string]any)["name"])
}

func TestBuildAnthropicMessages_GroupsToolResults(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "Compare Pikachu and Raichu"},
		{Role: RoleAssistant, Content: "Querying.", ToolCalls: []ToolCall{
			{ID: "a", Function: ToolCallFunc{Name: "run_query", Arguments: `{"sql":"SELECT 1"}`}},
			{ID: "b", Function: ToolCallFunc{Name: "run_query", Arguments: `not json`}},
		}},
		{Role: RoleTool, ToolCallID: "a", Content: `{"rows":[[1]]}`},
		{Role: RoleTool, ToolCallID: "b", Content: `{"error":true}`, IsError: true},
		{Role: RoleAssistant, Content: "Done."},
	}

	out := buildAnthropicMessages(history)
	require.Len(t, out, 4)

	assert.Equal(t, anthropic.RoleUser, out[0].Role)
	assert.Equal(t, anthropic.RoleAssistant, out[1].Role)
	require.Len(t, out[1].Content, 3)
	assert.Equal(t, anthropic.MessagesContentTypeToolUse, out[1].Content[1].Type)
	assert.JSONEq(t, `{}`, string(out[1].Content[2].MessageContentToolUse.Input), "invalid arguments are replaced")

	assert.Equal(t, anthropic.RoleUser, out[2].Role)
	require.Len(t, out[2].Content, 2, "consecutive tool results share one user message")
	assert.Equal(t, anthropic.MessagesContentTypeToolResult, out[2].Content[0].Type)

	assert.Equal(t, anthropic.RoleAssistant, out[3].Role)
}
