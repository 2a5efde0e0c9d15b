// Package mcpserver binds a pkg/tools.Registry to a mark3labs/mcp-go server
// over stdio, the transport every supported agent client speaks.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/convomem/convomem/pkg/logger"
	"github.com/convomem/convomem/pkg/tools"
)

const (
	serverName    = "convomem"
	serverVersion = "0.1.0"
)

const serverInstructions = "convomem persists conversation history, builds an entity/relationship " +
	"knowledge graph across sessions, and assembles token-budgeted context from it. Use save_message " +
	"after each turn, search_messages/semantic_search/hybrid_search to recall prior discussion, and " +
	"get_context_summary or get_relevant_snippets to pull prior context back into a budget."

// Build constructs an MCP server exposing every tool in reg.
func Build(reg *tools.Registry) *server.MCPServer {
	srv := server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(serverInstructions),
	)

	for _, name := range reg.Names() {
		description, schema, ok := reg.Describe(name)
		if !ok {
			continue
		}
		schemaBytes, err := json.Marshal(schema)
		if err != nil {
			logger.L.WithError(err).WithField("tool", name).Error("failed to marshal tool schema for MCP registration")
			continue
		}
		srv.AddTool(mcp.NewToolWithRawSchema(name, description, schemaBytes), handlerFor(reg, name))
	}

	return srv
}

// Serve runs srv over stdio until stdin closes or ctx is cancelled.
func Serve(ctx context.Context, srv *server.MCPServer) error {
	return server.ServeStdio(srv, server.WithStdioContextFunc(func(_ context.Context) context.Context { return ctx }))
}

func handlerFor(reg *tools.Registry, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("failed to marshal tool arguments: " + err.Error()), nil
		}

		envelope := reg.Execute(ctx, name, raw)
		body, err := json.Marshal(envelope)
		if err != nil {
			return mcp.NewToolResultError("failed to marshal tool result: " + err.Error()), nil
		}

		result := mcp.NewToolResultText(string(body))
		result.IsError = !envelope.Success
		return result, nil
	}
}
