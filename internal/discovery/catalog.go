// Package discovery browses the snippet corpus by category and searches it lexically.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/sha1n/snipsearch/internal/domain"
)

const (
	// OtherCategory collects snippets without a category.
	OtherCategory = "OTHER"

	// DefaultLimit is the result count when a request does not set one.
	DefaultLimit = 10

	// MaxBatchSize is the maximum number of documents per index batch
	MaxBatchSize = 100
)

// ErrEmptyQuery indicates a lexical search without query text.
var ErrEmptyQuery = errors.New("query cannot be empty")

// CategoryCount is a normalized category with its snippet count.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListRequest filters snippets. Empty fields match everything.
type ListRequest struct {
	Category   string
	Difficulty string
	Limit      int
}

// SearchRequest is a lexical search over question, tags and declared code symbols.
type SearchRequest struct {
	Query      string
	Category   string
	Difficulty string
	Limit      int
	// Fuzzy tolerates one edit per term; otherwise the query must match as a phrase.
	Fuzzy bool
}

// Catalog is an in-memory lexical index over the corpus.
type Catalog struct {
	snippets []domain.Snippet
	index    bleve.Index
}

type catalogDoc struct {
	Question   string `json:"question"`
	Tags       string `json:"tags"`
	Category   string `json:"category"`
	Difficulty string `json:"difficulty"`
	Text       string `json:"text"`
	Symbols    string `json:"symbols"`
}

// NormalizeCategory upper-cases a category and strips '-', '_' and spaces.
// An empty result maps to OtherCategory.
func NormalizeCategory(category string) string {
	normalized := strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ':
			return -1
		}
		return r
	}, strings.ToUpper(category))

	if normalized == "" {
		return OtherCategory
	}
	return normalized
}

// CreateIndexMapping creates the bleve mapping for catalog documents.
func CreateIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	// Searchable text, analyzed
	for _, field := range []string{domain.SnippetFieldText, domain.SnippetFieldQuestion, domain.SnippetFieldTags, domain.SnippetFieldSymbols} {
		textField := bleve.NewTextFieldMapping()
		textField.Analyzer = standard.Name
		docMapping.AddFieldMappingsAt(field, textField)
	}

	// Filters, keyword
	for _, field := range []string{domain.SnippetFieldCategory, domain.SnippetFieldDifficulty} {
		keywordField := bleve.NewTextFieldMapping()
		keywordField.Analyzer = keyword.Name
		keywordField.Store = true
		docMapping.AddFieldMappingsAt(field, keywordField)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// NewCatalog indexes the snippets in memory.
func NewCatalog(snippets []domain.Snippet) (*Catalog, error) {
	index, err := bleve.NewMemOnly(CreateIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog index: %w", err)
	}

	stored := make([]domain.Snippet, len(snippets))
	batch := index.NewBatch()
	for i, s := range snippets {
		stored[i] = s.Clone()
		tags := strings.Join(s.Tags, " ")
		doc := catalogDoc{
			Question:   s.Question,
			Tags:       tags,
			Category:   NormalizeCategory(s.Category),
			Difficulty: s.Difficulty,
			Text:       strings.TrimSpace(s.Question + " " + tags),
			Symbols:    strings.Join(ExtractSymbols(s.Code, s.Tags), " "),
		}
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to index snippet %d: %w", i, err)
		}

		if batch.Size() >= MaxBatchSize {
			if err := index.Batch(batch); err != nil {
				_ = index.Close()
				return nil, fmt.Errorf("failed to execute batch: %w", err)
			}
			batch = index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := index.Batch(batch); err != nil {
			_ = index.Close()
			return nil, fmt.Errorf("failed to execute batch: %w", err)
		}
	}

	return &Catalog{snippets: stored, index: index}, nil
}

// Close releases the index.
func (c *Catalog) Close() error {
	return c.index.Close()
}

// Len returns the number of catalogued snippets.
func (c *Catalog) Len() int {
	return len(c.snippets)
}

// Categories returns every normalized category with its snippet count,
// most populated first and then by name.
func (c *Catalog) Categories(ctx context.Context) ([]CategoryCount, error) {
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 0
	req.AddFacet(domain.SnippetFieldCategory, bleve.NewFacetRequest(domain.SnippetFieldCategory, max(len(c.snippets), 1)))

	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("category facet failed: %w", err)
	}

	counts := []CategoryCount{}
	if facet, ok := res.Facets[domain.SnippetFieldCategory]; ok && facet.Terms != nil {
		for _, term := range facet.Terms.Terms() {
			counts = append(counts, CategoryCount{Name: term.Term, Count: term.Count})
		}
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Name < counts[j].Name
	})
	return counts, nil
}

// List returns snippets in corpus order, filtered by normalized category and difficulty.
func (c *Catalog) List(_ context.Context, req ListRequest) []domain.Snippet {
	category := ""
	if req.Category != "" {
		category = NormalizeCategory(req.Category)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = len(c.snippets)
	}

	var out []domain.Snippet
	for _, s := range c.snippets {
		if len(out) >= limit {
			break
		}
		if category != "" && NormalizeCategory(s.Category) != category {
			continue
		}
		if !matchesDifficulty(req.Difficulty, s.Difficulty) {
			continue
		}
		out = append(out, s.Clone())
	}
	return out
}

// Search runs a lexical query over question, tags and code symbols, best match first.
func (c *Catalog) Search(ctx context.Context, req SearchRequest) ([]domain.Snippet, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	searchReq := bleve.NewSearchRequest(c.buildQuery(req))
	searchReq.Size = limit

	res, err := c.index.SearchInContext(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}

	out := make([]domain.Snippet, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil || id < 0 || id >= len(c.snippets) {
			continue
		}
		out = append(out, c.snippets[id].Clone())
	}
	return out, nil
}

func (c *Catalog) buildQuery(req SearchRequest) query.Query {
	var textQuery, symbolQuery query.Query
	if req.Fuzzy {
		q := bleve.NewMatchQuery(req.Query)
		q.SetField(domain.SnippetFieldText)
		q.SetFuzziness(1)
		textQuery = q

		sq := bleve.NewMatchQuery(req.Query)
		sq.SetField(domain.SnippetFieldSymbols)
		sq.SetFuzziness(1)
		symbolQuery = sq
	} else {
		q := bleve.NewMatchPhraseQuery(req.Query)
		q.SetField(domain.SnippetFieldText)
		textQuery = q

		sq := bleve.NewMatchPhraseQuery(req.Query)
		sq.SetField(domain.SnippetFieldSymbols)
		symbolQuery = sq
	}
	textQuery = bleve.NewDisjunctionQuery(textQuery, symbolQuery)

	must := []query.Query{textQuery}

	if req.Category != "" {
		categoryQuery := bleve.NewTermQuery(NormalizeCategory(req.Category))
		categoryQuery.SetField(domain.SnippetFieldCategory)
		must = append(must, categoryQuery)
	}

	if req.Difficulty != "" && req.Difficulty != domain.DifficultyAll {
		difficultyQuery := bleve.NewTermQuery(req.Difficulty)
		difficultyQuery.SetField(domain.SnippetFieldDifficulty)
		must = append(must, difficultyQuery)
	}

	if len(must) == 1 {
		return textQuery
	}
	return bleve.NewConjunctionQuery(must...)
}

func matchesDifficulty(want, got string) bool {
	return want == "" || want == domain.DifficultyAll || want == got
}
