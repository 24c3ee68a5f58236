package index

import (
	"fmt"
	"strings"

	"github.com/sha1n/snipsearch/internal/domain"
)

// Facet names one retrieval view over the corpus.
type Facet string

const (
	FacetQuestion Facet = "question"
	FacetCode     Facet = "code"
	FacetTags     Facet = "tags"
)

// CodeParts is the number of rows each snippet contributes to the code facet.
const CodeParts = 3

// Facets returns all facets in build order.
func Facets() []Facet {
	return []Facet{FacetQuestion, FacetCode, FacetTags}
}

// ParseFacet validates a facet name.
func ParseFacet(name string) (Facet, error) {
	for _, f := range Facets() {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown facet: %q", name)
}

// FacetInput is the text to embed for one facet together with its row map.
type FacetInput struct {
	Facet          Facet
	Texts          []string
	Rows           RowMap
	CorpusChecksum string
}

// NewFacetInput derives the facet texts from the corpus snippets.
//
//   - question: the question field, one row per snippet
//   - code: the code field split into three word-balanced parts, three rows per snippet
//   - tags: the tags joined by single spaces, one row per snippet
func NewFacetInput(facet Facet, snippets []domain.Snippet, checksum string) (FacetInput, error) {
	var texts []string
	var owners []int

	switch facet {
	case FacetQuestion:
		texts = make([]string, 0, len(snippets))
		for i, s := range snippets {
			texts = append(texts, s.Question)
			owners = append(owners, i)
		}
	case FacetCode:
		texts = make([]string, 0, CodeParts*len(snippets))
		for i, s := range snippets {
			for _, part := range SplitIntoThree(s.Code) {
				texts = append(texts, part)
				owners = append(owners, i)
			}
		}
	case FacetTags:
		texts = make([]string, 0, len(snippets))
		for i, s := range snippets {
			texts = append(texts, strings.Join(s.Tags, " "))
			owners = append(owners, i)
		}
	default:
		return FacetInput{}, fmt.Errorf("unknown facet: %q", facet)
	}

	return FacetInput{
		Facet:          facet,
		Texts:          texts,
		Rows:           NewRowMap(owners, len(snippets)),
		CorpusChecksum: checksum,
	}, nil
}

// SplitIntoThree splits text into three contiguous parts of whitespace-separated
// words. Part sizes are n/3, with the n%3 remainder words going one each to the
// leading parts. Parts are re-joined with single spaces and may be empty.
func SplitIntoThree(text string) [CodeParts]string {
	words := strings.Fields(text)
	n := len(words)
	k, r := n/CodeParts, n%CodeParts

	var parts [CodeParts]string
	start := 0
	for i := range CodeParts {
		size := k
		if i < r {
			size++
		}
		parts[i] = strings.Join(words[start:start+size], " ")
		start += size
	}
	return parts
}
