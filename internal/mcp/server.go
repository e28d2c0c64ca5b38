// Package mcp exposes the tool registry over the Model Context Protocol so
// other agents can call the travel tools directly.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/user/wayfarer/internal/runtime"
)

const serverName = "wayfarer"

// NewServer builds an MCP server with one MCP tool per registered tool. Calls
// go through the registry's executor, so parameter validation and error
// isolation match chat turns.
func NewServer(registry *runtime.Registry, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range registry.All() {
		tool := mcp.NewToolWithRawSchema(t.Name(), t.Description(), t.Parameters())
		s.AddTool(tool, handler(registry, t.Name()))
	}
	slog.Info("mcp tools registered", "tools", registry.Names())
	return s
}

func handler(registry *runtime.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode arguments: %v", err)), nil
		}

		res := registry.Execute(ctx, name, args)
		if !res.Success {
			return mcp.NewToolResultError(res.Error), nil
		}
		body, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(body)), nil
	}
}

// ServeStdio serves s over the given streams until ctx is cancelled or the
// input closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}
