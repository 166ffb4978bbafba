package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ekaya-inc/pokedex/pkg/mirror"
)

type healthResult struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Mirror  *mirror.Stats `json:"mirror,omitempty"`
}

// registerHealthTool adds a tool returning the server version and the last
// completed mirror run.
func registerHealthTool(s *Server, version string, status StatusFunc) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health, version and the last completed mirror refresh"),
	)

	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := healthResult{Status: "ok", Version: version}
		if status != nil {
			stats, err := status(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to read mirror status: %w", err)
			}
			if stats == nil {
				res.Status = "empty"
			}
			res.Mirror = stats
		}

		result, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal health result: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
