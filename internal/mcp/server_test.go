package mcp

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sha1n/snipsearch/internal/discovery"
	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/retriever"
)

type fakeSearcher struct {
	results []domain.ScoredSnippet
	err     error
	got     retriever.Query
}

func (f *fakeSearcher) Search(_ context.Context, q retriever.Query) ([]domain.ScoredSnippet, error) {
	f.got = q
	return f.results, f.err
}

type fakeExplainer struct {
	answer string
	err    error
}

func (f *fakeExplainer) Explain(_ context.Context, _ string) (string, error) {
	return f.answer, f.err
}

type fakeSnippets map[int]domain.Snippet

func (f fakeSnippets) Snippet(id int) (domain.Snippet, bool) {
	s, ok := f[id]
	return s, ok
}

func testCatalog(t *testing.T) *discovery.Catalog {
	t.Helper()
	c, err := discovery.NewCatalog([]domain.Snippet{
		{ID: 0, Question: "Drop missing values", Code: "df.dropna()", Tags: []string{"pandas"}, Category: "data-cleaning", Difficulty: "easy"},
		{ID: 1, Question: "Plot a histogram", Code: "plt.hist(xs)", Tags: []string{"matplotlib"}, Category: "viz", Difficulty: "medium"},
	})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func connect(t *testing.T, server *mcp.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect failed: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect failed: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func toolNames(t *testing.T, session *mcp.ClientSession) []string {
	t.Helper()
	res, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	return names
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", res.Content[0])
	}
	return text.Text
}

func TestCreateServer_EmptyConfig(t *testing.T) {
	server := CreateServer(ServerConfig{})
	if server == nil {
		t.Fatal("Expected server to be created even with empty config")
	}
}

func TestCreateServer_ToolsRegistered(t *testing.T) {
	server := CreateServer(ServerConfig{
		Name:      "test-server",
		Version:   "1.0.0",
		Searcher:  &fakeSearcher{},
		Catalog:   testCatalog(t),
		Snippets:  fakeSnippets{},
		Explainer: &fakeExplainer{},
	})

	want := []string{"explain_code", "get_snippet", "list_categories", "list_snippets", "search_catalog", "search_snippets"}
	if got := toolNames(t, connect(t, server)); !slices.Equal(got, want) {
		t.Errorf("tools = %v, want %v", got, want)
	}
}

func TestCreateServer_ExplainDisabled(t *testing.T) {
	server := CreateServer(ServerConfig{Name: "test-server", Searcher: &fakeSearcher{}})

	if got := toolNames(t, connect(t, server)); !slices.Equal(got, []string{"search_snippets"}) {
		t.Errorf("tools = %v", got)
	}
}

func TestSearchTool_OverProtocol(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.ScoredSnippet{
		{Snippet: domain.Snippet{ID: 4, Question: "Reverse a list", Code: "xs[::-1]", Tags: []string{"python", "list"}, Category: "Basics", Difficulty: "easy"}, Score: 0.9321},
	}}
	session := connect(t, CreateServer(ServerConfig{Name: "test-server", Searcher: searcher}))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_snippets",
		Arguments: map[string]any{"query": "reverse list", "top_k": 2, "difficulty": "easy"},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	if searcher.got != (retriever.Query{Text: "reverse list", TopK: 2, Difficulty: "easy"}) {
		t.Errorf("query = %+v", searcher.got)
	}

	text := resultText(t, res)
	for _, want := range []string{"Found 1 snippets", "**ID**: 4", "Reverse a list", "xs[::-1]", "0.9321", "python, list", "Basics"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestSearchHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid query", retriever.ErrInvalidQuery, "invalid query"},
		{"inference", domain.ErrInference, "Search failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSearchHandler(&fakeSearcher{err: tt.err})
			res, _, err := h.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "x"})
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !res.IsError {
				t.Error("Expected error result")
			}
			if text := resultText(t, res); !strings.Contains(text, tt.want) {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
		})
	}
}

func TestSearchHandler_NoResults(t *testing.T) {
	h := NewSearchHandler(&fakeSearcher{})
	res, _, _ := h.Handle(context.Background(), &mcp.CallToolRequest{}, SearchArgument{Query: "nothing"})
	if res.IsError {
		t.Error("empty results are not an error")
	}
	if text := resultText(t, res); !strings.Contains(text, "No snippets found") {
		t.Errorf("text = %q", text)
	}
}

func TestCatalogHandler(t *testing.T) {
	h := NewCatalogHandler(testCatalog(t))
	ctx := context.Background()

	t.Run("categories", func(t *testing.T) {
		res, _, _ := h.HandleCategories(ctx, &mcp.CallToolRequest{}, CategoriesArgument{})
		text := resultText(t, res)
		if !strings.Contains(text, "DATACLEANING (1)") || !strings.Contains(text, "VIZ (1)") {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("list", func(t *testing.T) {
		res, _, _ := h.HandleList(ctx, &mcp.CallToolRequest{}, ListArgument{Category: "Data Cleaning"})
		text := resultText(t, res)
		if !strings.Contains(text, "df.dropna()") || strings.Contains(text, "plt.hist") {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("list without matches", func(t *testing.T) {
		res, _, _ := h.HandleList(ctx, &mcp.CallToolRequest{}, ListArgument{Difficulty: "hard"})
		if text := resultText(t, res); !strings.Contains(text, "No snippets") {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("search", func(t *testing.T) {
		res, _, _ := h.HandleSearch(ctx, &mcp.CallToolRequest{}, CatalogSearchArgument{Query: "histgram"})
		text := resultText(t, res)
		if res.IsError || !strings.Contains(text, "Plot a histogram") {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("exact search", func(t *testing.T) {
		res, _, _ := h.HandleSearch(ctx, &mcp.CallToolRequest{}, CatalogSearchArgument{Query: "histgram", Exact: true})
		if text := resultText(t, res); !strings.Contains(text, "No snippets found") {
			t.Errorf("text = %q", text)
		}
	})

	t.Run("empty search", func(t *testing.T) {
		res, _, _ := h.HandleSearch(ctx, &mcp.CallToolRequest{}, CatalogSearchArgument{Query: " "})
		if !res.IsError {
			t.Error("Expected error result for empty query")
		}
	})
}

func TestExplainHandler(t *testing.T) {
	ctx := context.Background()

	res, _, _ := NewExplainHandler(&fakeExplainer{answer: "It sums."}).Handle(ctx, &mcp.CallToolRequest{}, ExplainArgument{Code: "sum(xs)"})
	if res.IsError || resultText(t, res) != "It sums." {
		t.Errorf("unexpected result: %+v", res)
	}

	res, _, _ = NewExplainHandler(&fakeExplainer{err: errors.New("upstream down")}).Handle(ctx, &mcp.CallToolRequest{}, ExplainArgument{Code: "sum(xs)"})
	if !res.IsError || !strings.Contains(resultText(t, res), "upstream down") {
		t.Errorf("unexpected result: %+v", res)
	}

	res, _, _ = NewExplainHandler(&fakeExplainer{}).Handle(ctx, &mcp.CallToolRequest{}, ExplainArgument{})
	if !res.IsError {
		t.Error("Expected error result for empty code")
	}
}

func TestSnippetTool_OverProtocol(t *testing.T) {
	snippets := fakeSnippets{7: {ID: 7, Question: "Read a CSV file", Code: "pd.read_csv(path)", Category: "IO"}}
	session := connect(t, CreateServer(ServerConfig{Name: "test-server", Snippets: snippets}))

	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "get_snippet",
		Arguments: map[string]any{"id": 7},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}

	text := resultText(t, res)
	for _, want := range []string{"Read a CSV file", "**ID**: 7", "pd.read_csv(path)", "IO"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestSnippetHandler_Errors(t *testing.T) {
	h := NewSnippetHandler(fakeSnippets{0: {ID: 0, Question: "q"}})

	tests := []struct {
		name string
		id   int
		want string
	}{
		{"negative", -1, "Invalid snippet id"},
		{"unknown", 3, "Snippet not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, _, err := h.Handle(context.Background(), &mcp.CallToolRequest{}, SnippetArgument{ID: tt.id})
			if err != nil {
				t.Fatalf("Handle returned error: %v", err)
			}
			if !res.IsError {
				t.Error("Expected error result")
			}
			if text := resultText(t, res); !strings.Contains(text, tt.want) {
				t.Errorf("text = %q, want %q", text, tt.want)
			}
		})
	}
}
