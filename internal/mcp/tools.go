package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/snipsearch/internal/discovery"
	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/retriever"
)

// SearchArgument defines semantic search parameters.
type SearchArgument struct {
	Query      string `json:"query" jsonschema:"Natural-language question, code fragment or comma-separated tags"`
	TopK       int    `json:"top_k,omitempty" jsonschema:"Number of nearest matches to fetch (default 3)"`
	Difficulty string `json:"difficulty,omitempty" jsonschema:"Keep only snippets of this difficulty (easy, medium, hard or all)"`
}

// ListArgument defines snippet listing filters.
type ListArgument struct {
	Category   string `json:"category,omitempty" jsonschema:"Category name as returned by list_categories"`
	Difficulty string `json:"difficulty,omitempty" jsonschema:"Keep only snippets of this difficulty"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of snippets to return"`
}

// CatalogSearchArgument defines lexical search parameters.
type CatalogSearchArgument struct {
	Query      string `json:"query" jsonschema:"Words to look for in snippet questions and tags"`
	Category   string `json:"category,omitempty" jsonschema:"Restrict to a category"`
	Difficulty string `json:"difficulty,omitempty" jsonschema:"Restrict to a difficulty"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of snippets to return (default 10)"`
	Exact      bool   `json:"exact,omitempty" jsonschema:"Match the query as a phrase instead of tolerating typos"`
}

// ExplainArgument carries the code to explain.
type ExplainArgument struct {
	Code string `json:"code" jsonschema:"Source code to explain"`
}

// CategoriesArgument is empty; list_categories takes no parameters.
type CategoriesArgument struct{}

// SearchHandler handles the search_snippets tool.
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// Handle runs a semantic search and returns formatted results.
func (h *SearchHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args SearchArgument) (*mcp.CallToolResult, any, error) {
	results, err := h.searcher.Search(ctx, retriever.Query{
		Text:       args.Query,
		TopK:       args.TopK,
		Difficulty: args.Difficulty,
	})
	if err != nil {
		if errors.Is(err, retriever.ErrInvalidQuery) {
			return errorResult(err.Error()), nil, nil
		}
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}

	if len(results) == 0 {
		return textResult(fmt.Sprintf("No snippets found for query: %s", args.Query)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d snippets for '%s':\n\n", len(results), args.Query)
	for i, r := range results {
		writeSnippet(&sb, i+1, r.Snippet, fmt.Sprintf("**Score**: %.4f | ", r.Score))
	}
	return textResult(sb.String()), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *SearchHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "search_snippets",
		Description: "Find code snippets semantically similar to a question, a code fragment or a list of tags",
	}
}

// CatalogHandler handles the list_categories, list_snippets and search_catalog tools.
type CatalogHandler struct {
	catalog Catalog
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalog Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// HandleCategories lists categories with snippet counts.
func (h *CatalogHandler) HandleCategories(ctx context.Context, _ *mcp.CallToolRequest, _ CategoriesArgument) (*mcp.CallToolResult, any, error) {
	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to list categories: %s", err)), nil, nil
	}
	if len(categories) == 0 {
		return textResult("No categories available"), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d categories:\n\n", len(categories))
	for _, c := range categories {
		fmt.Fprintf(&sb, "- %s (%d)\n", c.Name, c.Count)
	}
	return textResult(sb.String()), nil, nil
}

// HandleList lists snippets filtered by category and difficulty.
func (h *CatalogHandler) HandleList(ctx context.Context, _ *mcp.CallToolRequest, args ListArgument) (*mcp.CallToolResult, any, error) {
	snippets := h.catalog.List(ctx, discovery.ListRequest{
		Category:   args.Category,
		Difficulty: args.Difficulty,
		Limit:      args.Limit,
	})
	if len(snippets) == 0 {
		return textResult("No snippets match the given filters"), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d snippets:\n\n", len(snippets))
	for i, s := range snippets {
		writeSnippet(&sb, i+1, s, "")
	}
	return textResult(sb.String()), nil, nil
}

// HandleSearch runs a lexical search over questions and tags.
func (h *CatalogHandler) HandleSearch(ctx context.Context, _ *mcp.CallToolRequest, args CatalogSearchArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Query) == "" {
		return errorResult("Query cannot be empty"), nil, nil
	}

	snippets, err := h.catalog.Search(ctx, discovery.SearchRequest{
		Query:      args.Query,
		Category:   args.Category,
		Difficulty: args.Difficulty,
		Limit:      args.Limit,
		Fuzzy:      !args.Exact,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("Search failed: %s", err)), nil, nil
	}
	if len(snippets) == 0 {
		return textResult(fmt.Sprintf("No snippets found for query: %s", args.Query)), nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d snippets for '%s':\n\n", len(snippets), args.Query)
	for i, s := range snippets {
		writeSnippet(&sb, i+1, s, "")
	}
	return textResult(sb.String()), nil, nil
}

// ExplainHandler handles the explain_code tool.
type ExplainHandler struct {
	explainer Explainer
}

// NewExplainHandler creates a new explain handler.
func NewExplainHandler(explainer Explainer) *ExplainHandler {
	return &ExplainHandler{explainer: explainer}
}

// Handle asks the explainer about the given code.
func (h *ExplainHandler) Handle(ctx context.Context, _ *mcp.CallToolRequest, args ExplainArgument) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(args.Code) == "" {
		return errorResult("Code cannot be empty"), nil, nil
	}

	explanation, err := h.explainer.Explain(ctx, args.Code)
	if err != nil {
		return errorResult(fmt.Sprintf("Explanation failed: %s", err)), nil, nil
	}
	return textResult(explanation), nil, nil
}

// GetToolDefinition returns the MCP tool definition.
func (h *ExplainHandler) GetToolDefinition() *mcp.Tool {
	return &mcp.Tool{
		Name:        "explain_code",
		Description: "Explain what a piece of code does in plain language",
	}
}

// RegisterSearchTool registers search_snippets with an MCP server.
func RegisterSearchTool(server *mcp.Server, searcher Searcher) {
	handler := NewSearchHandler(searcher)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

// RegisterCatalogTools registers list_categories, list_snippets and search_catalog.
func RegisterCatalogTools(server *mcp.Server, catalog Catalog) {
	handler := NewCatalogHandler(catalog)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_categories",
		Description: "List snippet categories with the number of snippets in each",
	}, handler.HandleCategories)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_snippets",
		Description: "List snippets in a category, optionally filtered by difficulty",
	}, handler.HandleList)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_catalog",
		Description: "Keyword search over snippet questions and tags, tolerant to typos unless exact is set",
	}, handler.HandleSearch)
}

// RegisterExplainTool registers explain_code with an MCP server.
func RegisterExplainTool(server *mcp.Server, explainer Explainer) {
	handler := NewExplainHandler(explainer)
	mcp.AddTool(server, handler.GetToolDefinition(), handler.Handle)
}

func writeSnippet(sb *strings.Builder, n int, s domain.Snippet, prefix string) {
	fmt.Fprintf(sb, "### %d. %s\n", n, s.Question)
	fmt.Fprintf(sb, "%s**ID**: %d | **Category**: %s | **Difficulty**: %s", prefix, s.ID, orNone(s.Category), orNone(s.Difficulty))
	if len(s.Tags) > 0 {
		fmt.Fprintf(sb, " | **Tags**: %s", strings.Join(s.Tags, ", "))
	}
	sb.WriteString("\n\n```\n")
	sb.WriteString(s.Code)
	if !strings.HasSuffix(s.Code, "\n") {
		sb.WriteString("\n")
	}
	sb.WriteString("```\n\n")
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
