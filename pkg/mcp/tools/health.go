package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dunelens/dunelens/pkg/handlers"
)

// HealthChecker reports dependency status; handlers.HealthHandler satisfies it.
type HealthChecker interface {
	Check(ctx context.Context) handlers.HealthResponse
}

// RegisterHealthTool adds a health check tool to the MCP server.
// The tool returns the same report as GET /health.
func RegisterHealthTool(s *server.MCPServer, checker HealthChecker) {
	tool := mcp.NewTool(
		"health",
		mcp.WithDescription("Returns server health status, version and dependency status"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(checker.Check(ctx))
	})
}
