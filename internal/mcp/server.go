package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/manualrag/internal/app"
)

const (
	// ServerName is the MCP server name
	ServerName = "manualrag"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp *server.MCPServer
	app *app.App
}

// NewServer registers the manual tools against a wired application
func NewServer(a *app.App) (*Server, error) {
	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp: mcpServer,
		app: a,
	}
	s.registerTools()

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown. The
// application is closed on return.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.app.Close() }()
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(acquireManualTool(), s.handleAcquireManual)
	s.mcp.AddTool(searchManualTool(), s.handleSearchManual)
	s.mcp.AddTool(indexManualTextTool(), s.handleIndexManualText)
	s.mcp.AddTool(getManualStatusTool(), s.handleGetManualStatus)
}
