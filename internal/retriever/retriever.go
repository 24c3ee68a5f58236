// Package retriever answers semantic snippet queries.
//
// A Service is built once at startup and is read-only afterwards, so it is
// shared by every request handler without locking.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sha1n/snipsearch/internal/classify"
	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/index"
)

const (
	// DefaultTopK is the number of results returned when a query does not ask for a count.
	DefaultTopK = 3

	// DefaultMaxTopK caps top_k unless a facet index holds more rows.
	DefaultMaxTopK = 100
)

// ErrInvalidQuery indicates malformed query parameters.
var ErrInvalidQuery = errors.New("invalid query")

// Query is one retrieval request.
type Query struct {
	Text string
	// TopK is the number of nearest rows to fetch; zero selects the default.
	TopK int
	// Difficulty keeps only snippets of this difficulty; empty or "all" keeps everything.
	Difficulty string
}

// QueryEmbedder embeds a single query text.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Config tunes a Service.
type Config struct {
	DefaultTopK int
	MaxTopK     int
	// Classifier picks the facet for a query; nil selects the default rules.
	Classifier *classify.Classifier
}

// Service runs classify, embed, search and hydrate for each query.
type Service struct {
	snippets   []domain.Snippet
	entries    map[index.Facet]*index.Entry
	embedder   QueryEmbedder
	classifier *classify.Classifier
	defaultK   int
	maxK       int
}

// NewService creates a service over prepared facet entries.
func NewService(snippets []domain.Snippet, entries map[index.Facet]*index.Entry, embedder QueryEmbedder, cfg Config) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	for _, f := range index.Facets() {
		if entries[f] == nil {
			return nil, fmt.Errorf("missing index for facet %q", f)
		}
	}

	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = DefaultMaxTopK
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classify.New(nil)
	}

	// The cap never drops below the largest facet index.
	maxK := cfg.MaxTopK
	for _, e := range entries {
		if e.Index != nil {
			maxK = max(maxK, e.Index.Len())
		}
	}

	stored := make([]domain.Snippet, len(snippets))
	for i, s := range snippets {
		stored[i] = s.Clone()
	}

	return &Service{
		snippets:   stored,
		entries:    entries,
		embedder:   embedder,
		classifier: cfg.Classifier,
		defaultK:   cfg.DefaultTopK,
		maxK:       maxK,
	}, nil
}

// Len returns the corpus size.
func (s *Service) Len() int {
	return len(s.snippets)
}

// Snippet returns a copy of a corpus snippet.
func (s *Service) Snippet(id int) (domain.Snippet, bool) {
	if id < 0 || id >= len(s.snippets) {
		return domain.Snippet{}, false
	}
	return s.snippets[id].Clone(), true
}

// Snippets returns a copy of the corpus in ID order.
func (s *Service) Snippets() []domain.Snippet {
	out := make([]domain.Snippet, len(s.snippets))
	for i, snippet := range s.snippets {
		out[i] = snippet.Clone()
	}
	return out
}

// Search returns the snippets most similar to the query, best first.
// Results are copies carrying a score. The difficulty filter is applied after
// the nearest-neighbor search, so fewer than TopK results may come back.
// Failures are returned as errors; a panic in a collaborator becomes domain.ErrInference.
func (s *Service) Search(ctx context.Context, q Query) (results []domain.ScoredSnippet, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = fmt.Errorf("%w: panic during search: %v", domain.ErrInference, r)
		}
	}()

	q, err = s.normalize(q)
	if err != nil {
		return nil, err
	}

	mode, rule := s.classifier.Explain(q.Text)
	facet, err := mode.Facet()
	if err != nil {
		return nil, err
	}
	entry, ok := s.entries[facet]
	if !ok {
		return nil, fmt.Errorf("%w: no index for facet %s", domain.ErrInvalidMode, facet)
	}

	vec, err := s.embedder.EmbedQuery(ctx, q.Text)
	if err != nil {
		if errors.Is(err, domain.ErrInference) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInference, err)
	}

	hits, err := entry.Index.Search(vec, q.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInference, err)
	}

	results = make([]domain.ScoredSnippet, 0, len(hits))
	for _, hit := range hits {
		id, ok := entry.Rows.Snippet(hit.Row)
		if !ok || id >= len(s.snippets) {
			slog.Warn("Skipping index row outside the corpus, rebuild the index", "facet", facet, "row", hit.Row, "snippet", id)
			continue
		}

		snippet := s.snippets[id]
		if q.Difficulty != domain.DifficultyAll && snippet.Difficulty != q.Difficulty {
			continue
		}
		results = append(results, domain.ScoredSnippet{Snippet: snippet.Clone(), Score: hit.Score})
	}

	slog.Debug("Search completed", "mode", mode, "rule", rule, "hits", len(hits), "results", len(results))
	return results, nil
}

func (s *Service) normalize(q Query) (Query, error) {
	switch {
	case q.TopK < 0:
		return q, fmt.Errorf("%w: top_k must not be negative, got %d", ErrInvalidQuery, q.TopK)
	case q.TopK == 0:
		q.TopK = s.defaultK
	case q.TopK > s.maxK:
		q.TopK = s.maxK
	}
	if q.Difficulty == "" {
		q.Difficulty = domain.DifficultyAll
	}
	return q, nil
}
