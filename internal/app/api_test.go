package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/sha1n/snipsearch/internal/discovery"
	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/explain"
	"github.com/sha1n/snipsearch/internal/retriever"
)

type fakeSearcher struct {
	results []domain.ScoredSnippet
	err     error
	last    retriever.Query
}

func (f *fakeSearcher) Search(_ context.Context, q retriever.Query) ([]domain.ScoredSnippet, error) {
	f.last = q
	return f.results, f.err
}

type fakeCatalog struct {
	categories []discovery.CategoryCount
	snippets   []domain.Snippet
	err        error
	lastList   discovery.ListRequest
	lastSearch discovery.SearchRequest
}

func (f *fakeCatalog) Categories(context.Context) ([]discovery.CategoryCount, error) {
	return f.categories, f.err
}

func (f *fakeCatalog) List(_ context.Context, req discovery.ListRequest) []domain.Snippet {
	f.lastList = req
	return f.snippets
}

func (f *fakeCatalog) Search(_ context.Context, req discovery.SearchRequest) ([]domain.Snippet, error) {
	f.lastSearch = req
	return f.snippets, f.err
}

type fakeExplainer struct {
	answer string
	err    error
}

func (f *fakeExplainer) Explain(_ context.Context, code string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if code == "" {
		return "", explain.ErrEmptyCode
	}
	return f.answer, nil
}

type fakeSnippets map[int]domain.Snippet

func (f fakeSnippets) Snippet(id int) (domain.Snippet, bool) {
	s, ok := f[id]
	return s, ok
}

func serveAPI(services *Services, method, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	NewAPI(services).Register(mux)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error
}

func TestAPI_Search(t *testing.T) {
	searcher := &fakeSearcher{results: []domain.ScoredSnippet{
		{Snippet: domain.Snippet{ID: 2, Question: "Reverse a list", Code: "xs[::-1]", Tags: []string{"python"}, Category: "Basics", Difficulty: "easy"}, Score: 0.9},
	}}

	rec := serveAPI(&Services{Searcher: searcher}, "POST", "/search", `{"query": "reverse", "top_k": 2, "difficulty": "easy"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected application/json, got %q", ct)
	}
	if searcher.last != (retriever.Query{Text: "reverse", TopK: 2, Difficulty: "easy"}) {
		t.Errorf("Unexpected query: %+v", searcher.last)
	}

	var results []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	for _, field := range []string{"id", "question", "code", "tags", "category", "difficulty", "score"} {
		if _, ok := results[0][field]; !ok {
			t.Errorf("Expected field %q in result", field)
		}
	}
}

func TestAPI_SearchEmptyResults(t *testing.T) {
	rec := serveAPI(&Services{Searcher: &fakeSearcher{}}, "POST", "/search", `{"query": "nothing"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("Expected an empty array, got %s", got)
	}
}

func TestAPI_SearchErrors(t *testing.T) {
	tests := []struct {
		name       string
		services   *Services
		body       string
		wantStatus int
	}{
		{"no searcher", &Services{}, `{"query": "x"}`, http.StatusServiceUnavailable},
		{"malformed body", &Services{Searcher: &fakeSearcher{}}, `{"query":`, http.StatusBadRequest},
		{"unknown field", &Services{Searcher: &fakeSearcher{}}, `{"text": "x"}`, http.StatusBadRequest},
		{"invalid query", &Services{Searcher: &fakeSearcher{err: fmt.Errorf("%w: top_k must not be negative", retriever.ErrInvalidQuery)}}, `{"query": "x", "top_k": -1}`, http.StatusBadRequest},
		{"inference failure", &Services{Searcher: &fakeSearcher{err: domain.ErrInference}}, `{"query": "x"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveAPI(tt.services, "POST", "/search", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if msg := decodeError(t, rec); msg == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestAPI_SearchWrongMethod(t *testing.T) {
	rec := serveAPI(&Services{Searcher: &fakeSearcher{}}, "GET", "/search", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", rec.Code)
	}
}

func TestAPI_Explain(t *testing.T) {
	services := &Services{Explainer: &fakeExplainer{answer: "It reverses a list."}}

	rec := serveAPI(services, "POST", "/explain", `{"code": "xs[::-1]"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp ExplainResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if resp.Explanation != "It reverses a list." {
		t.Errorf("Unexpected explanation %q", resp.Explanation)
	}
}

func TestAPI_ExplainErrors(t *testing.T) {
	tests := []struct {
		name       string
		services   *Services
		body       string
		wantStatus int
	}{
		{"disabled", &Services{}, `{"code": "x"}`, http.StatusServiceUnavailable},
		{"empty code", &Services{Explainer: &fakeExplainer{}}, `{"code": ""}`, http.StatusBadRequest},
		{"malformed body", &Services{Explainer: &fakeExplainer{}}, `nope`, http.StatusBadRequest},
		{"upstream failure", &Services{Explainer: &fakeExplainer{err: errors.New("boom")}}, `{"code": "x"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveAPI(tt.services, "POST", "/explain", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if msg := decodeError(t, rec); msg == "" {
				t.Error("Expected an error message")
			}
		})
	}
}

func TestAPI_Categories(t *testing.T) {
	catalog := &fakeCatalog{categories: []discovery.CategoryCount{{Name: "BASICS", Count: 2}, {Name: "WEB", Count: 1}}}

	rec := serveAPI(&Services{Catalog: catalog}, "GET", "/categories", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var got []discovery.CategoryCount
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(got) != 2 || got[0].Name != "BASICS" || got[0].Count != 2 {
		t.Errorf("Unexpected categories %+v", got)
	}
}

func TestAPI_CategoriesError(t *testing.T) {
	rec := serveAPI(&Services{Catalog: &fakeCatalog{err: errors.New("index closed")}}, "GET", "/categories", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rec.Code)
	}
}

func TestAPI_Snippets(t *testing.T) {
	catalog := &fakeCatalog{snippets: []domain.Snippet{{ID: 1, Question: "q", Code: "c", Category: "WEB"}}}

	rec := serveAPI(&Services{Catalog: catalog}, "GET", "/snippets?category=web&difficulty=hard&limit=5", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	want := discovery.ListRequest{Category: "web", Difficulty: "hard", Limit: 5}
	if catalog.lastList != want {
		t.Errorf("List request = %+v, want %+v", catalog.lastList, want)
	}
	var got []domain.Snippet
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("Unexpected snippets %+v", got)
	}
}

func TestAPI_SnippetsTextSearch(t *testing.T) {
	catalog := &fakeCatalog{}

	rec := serveAPI(&Services{Catalog: catalog}, "GET", "/snippets?q=revrse&exact=true&limit=2", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	want := discovery.SearchRequest{Query: "revrse", Limit: 2, Fuzzy: false}
	if catalog.lastSearch != want {
		t.Errorf("Search request = %+v, want %+v", catalog.lastSearch, want)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("Expected an empty array, got %s", got)
	}
}

func TestAPI_SnippetsInvalidLimit(t *testing.T) {
	for _, limit := range []string{"abc", "-1"} {
		rec := serveAPI(&Services{Catalog: &fakeCatalog{}}, "GET", "/snippets?limit="+limit, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: expected status 400, got %d", limit, rec.Code)
		}
	}
}

func TestAPI_SnippetByID(t *testing.T) {
	services := &Services{Snippets: fakeSnippets{3: {ID: 3, Question: "Reverse a string", Code: "s[::-1]"}}}

	rec := serveAPI(services, "GET", "/snippets/3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	var got domain.Snippet
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if got.ID != 3 || got.Code != "s[::-1]" {
		t.Errorf("Unexpected snippet %+v", got)
	}

	tests := []struct {
		target     string
		wantStatus int
	}{
		{"/snippets/9", http.StatusNotFound},
		{"/snippets/abc", http.StatusBadRequest},
		{"/snippets/-2", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := serveAPI(services, "GET", tt.target, ""); rec.Code != tt.wantStatus {
			t.Errorf("%s: expected status %d, got %d", tt.target, tt.wantStatus, rec.Code)
		}
	}

	if rec := serveAPI(&Services{}, "GET", "/snippets/3", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 without a snippet source, got %d", rec.Code)
	}
}

func TestAPI_NoCatalog(t *testing.T) {
	for _, target := range []string{"/categories", "/snippets"} {
		rec := serveAPI(&Services{}, "GET", target, "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: expected status 503, got %d", target, rec.Code)
		}
	}
}

func TestAPI_RequestID(t *testing.T) {
	rec := serveAPI(&Services{Catalog: &fakeCatalog{}}, "GET", "/categories", "")

	id := rec.Header().Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("Expected a UUID request id, got %q", id)
	}
}

func TestAPI_RequestIDPropagated(t *testing.T) {
	mux := http.NewServeMux()
	NewAPI(&Services{Catalog: &fakeCatalog{}}).Register(mux)

	want := uuid.NewString()
	req := httptest.NewRequest("GET", "/categories", nil)
	req.Header.Set(RequestIDHeader, want)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != want {
		t.Errorf("Expected request id %q to be echoed, got %q", want, got)
	}
}
