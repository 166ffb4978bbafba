package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/apperrors"
	"github.com/ekaya-inc/pokedex/pkg/llm"
	"github.com/ekaya-inc/pokedex/pkg/logging"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

// NewErrorResult creates a tool result containing a structured error.
// The error is returned as a successful JSON-RPC response so the client
// sees the details.
func NewErrorResult(code apperrors.Kind, message string) *mcp.CallToolResult {
	result := mcp.NewToolResultText(tools.NewErrorResult(code, message))
	result.IsError = true
	return result
}

func registerRegistryTools(s *Server, registry *tools.Registry) {
	for _, def := range registry.Definitions() {
		name := def.Name
		s.RegisterTool(toolFromDefinition(def), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			if args == nil {
				args = map[string]any{}
			}
			raw, err := json.Marshal(args)
			if err != nil {
				return NewErrorResult(apperrors.KindInvalidArguments, "arguments could not be encoded"), nil
			}

			result, err := registry.Call(ctx, name, raw)
			if err != nil {
				kind := apperrors.KindOf(err)
				if kind == "" {
					kind = apperrors.KindEvalFailed
				}
				s.logger.Info("Tool call failed",
					zap.String("tool", name),
					zap.String("kind", string(kind)),
					zap.String("error", logging.SanitizeError(err)))
				return NewErrorResult(kind, apperrors.MessageOf(err)), nil
			}

			encoded, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s result: %w", name, err)
			}
			return mcp.NewToolResultText(string(encoded)), nil
		})
	}
}

// toolFromDefinition converts a registry definition into an MCP tool.
// Every registry parameter is a string.
func toolFromDefinition(def llm.ToolDefinition) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(def.Description)}

	required, _ := def.Parameters["required"].([]string)
	props, _ := def.Parameters["properties"].(map[string]any)

	names := make([]string, 0, len(props))
	for n := range props {
		names = append(names, n)
	}
	slices.Sort(names)

	for _, n := range names {
		prop, _ := props[n].(map[string]any)
		var propOpts []mcp.PropertyOption
		if desc, ok := prop["description"].(string); ok && desc != "" {
			propOpts = append(propOpts, mcp.Description(desc))
		}
		if slices.Contains(required, n) {
			propOpts = append(propOpts, mcp.Required())
		}
		if minLen, ok := prop["minLength"].(int); ok && minLen > 0 {
			propOpts = append(propOpts, mcp.MinLength(minLen))
		}
		opts = append(opts, mcp.WithString(n, propOpts...))
	}

	return mcp.NewTool(def.Name, opts...)
}
