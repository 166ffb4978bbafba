// Package mcp serves the mirror's tools to external assistants over the
// Model Context Protocol.
package mcp

import (
	"context"
	"io"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/mirror"
	"github.com/ekaya-inc/pokedex/pkg/tools"
)

// StatusFunc reports the most recent mirror run, or nil if none.
type StatusFunc func(ctx context.Context) (*mirror.Stats, error)

// Server wraps the mcp-go MCPServer.
type Server struct {
	mcp    *server.MCPServer
	logger *zap.Logger
}

// NewServer creates an MCP server exposing every tool in registry plus a
// health tool.
func NewServer(name, version string, registry *tools.Registry, status StatusFunc, logger *zap.Logger) *Server {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcp:    mcpServer,
		logger: logger.Named("mcp"),
	}
	registerRegistryTools(s, registry)
	registerHealthTool(s, version, status)
	return s
}

// MCP returns the underlying MCPServer.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// RegisterTool is a convenience wrapper for registering a tool.
func (s *Server) RegisterTool(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.mcp.AddTool(tool, handler)
}

// ServeStdio serves JSON-RPC over in/out until ctx is done or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("Serving MCP over stdio")
	return stdio.Listen(ctx, in, out)
}

// NewStreamableHTTPServer creates an HTTP transport server wrapping this MCP server.
func (s *Server) NewStreamableHTTPServer() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithStateLess(true),
	)
}

// Handler returns an http.Handler serving MCP at /mcp.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.NewStreamableHTTPServer())
	return mux
}
