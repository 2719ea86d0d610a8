package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/hygaudit/internal/audits"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes read-only audit and report tools.
type Server struct {
	audits *audits.Service
	mcp    *server.MCPServer
}

// NewServer creates a new MCP server backed by the audit service.
func NewServer(svc *audits.Service) *Server {
	s := &Server{audits: svc}

	s.mcp = server.NewMCPServer(
		"hygaudit",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(listAuditsTool, s.handleListAudits)
	s.mcp.AddTool(getAuditTool, s.handleGetAudit)
	s.mcp.AddTool(listReportVersionsTool, s.handleListReportVersions)
	s.mcp.AddTool(getCurrentReportTool, s.handleGetCurrentReport)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
