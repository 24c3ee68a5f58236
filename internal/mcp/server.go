package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/snipsearch/internal/discovery"
	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/retriever"
)

// Searcher answers semantic snippet queries.
type Searcher interface {
	Search(ctx context.Context, q retriever.Query) ([]domain.ScoredSnippet, error)
}

// Catalog browses and lexically searches the corpus.
type Catalog interface {
	Categories(ctx context.Context) ([]discovery.CategoryCount, error)
	List(ctx context.Context, req discovery.ListRequest) []domain.Snippet
	Search(ctx context.Context, req discovery.SearchRequest) ([]domain.Snippet, error)
}

// SnippetSource looks snippets up by id.
type SnippetSource interface {
	Snippet(id int) (domain.Snippet, bool)
}

// Explainer explains code in natural language.
type Explainer interface {
	Explain(ctx context.Context, code string) (string, error)
}

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name      string
	Version   string
	Searcher  Searcher
	Catalog   Catalog
	Snippets  SnippetSource
	Explainer Explainer
}

// CreateServer creates the MCP server and registers a tool for every configured collaborator.
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Searcher != nil {
		RegisterSearchTool(s, cfg.Searcher)
	}
	if cfg.Catalog != nil {
		RegisterCatalogTools(s, cfg.Catalog)
	}
	if cfg.Snippets != nil {
		RegisterSnippetTool(s, cfg.Snippets)
	}
	if cfg.Explainer != nil {
		RegisterExplainTool(s, cfg.Explainer)
	}

	return s
}
