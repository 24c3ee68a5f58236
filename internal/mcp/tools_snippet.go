package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// SnippetArgument identifies a snippet.
type SnippetArgument struct {
	ID int `json:"id" jsonschema:"Snippet id as shown in search and list results"`
}

// SnippetHandler handles the get_snippet tool.
type SnippetHandler struct {
	snippets SnippetSource
}

// NewSnippetHandler creates a new snippet handler.
func NewSnippetHandler(snippets SnippetSource) *SnippetHandler {
	return &SnippetHandler{snippets: snippets}
}

// Handle returns one snippet with its full code.
func (h *SnippetHandler) Handle(_ context.Context, _ *mcp.CallToolRequest, args SnippetArgument) (*mcp.CallToolResult, any, error) {
	if args.ID < 0 {
		return errorResult(fmt.Sprintf("Invalid snippet id: %d", args.ID)), nil, nil
	}

	snippet, ok := h.snippets.Snippet(args.ID)
	if !ok {
		return errorResult(fmt.Sprintf("Snippet not found: %d", args.ID)), nil, nil
	}

	var sb strings.Builder
	writeSnippet(&sb, 1, snippet, "")
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SnippetHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_snippet",
		Description: "Fetch a single snippet by id",
	}
}

// RegisterSnippetTool registers get_snippet with an MCP server.
func RegisterSnippetTool(server *mcp.Server, snippets SnippetSource) {
	handler := NewSnippetHandler(snippets)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}
