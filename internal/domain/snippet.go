package domain

// Snippet represents one record of the snippet corpus.
// Snippets are loaded once at startup and never mutated afterwards.
type Snippet struct {
	// ID is the snippet's position in corpus load order (0-based).
	ID int `json:"id"`

	// Question is the natural-language question the snippet answers.
	Question string `json:"question"`

	// Code is the snippet source code.
	Code string `json:"code"`

	// Tags are free-form labels, in their original order.
	Tags []string `json:"tags"`

	// Category is the raw category label from the corpus.
	Category string `json:"category"`

	// Difficulty is one of DifficultyEasy, DifficultyMedium, DifficultyHard, or empty.
	Difficulty string `json:"difficulty,omitempty"`
}

// ScoredSnippet is a copy of a corpus snippet with the similarity score attached.
type ScoredSnippet struct {
	Snippet
	Score float32 `json:"score"`
}

// Clone returns a copy of the snippet that shares no mutable state with the original.
func (s Snippet) Clone() Snippet {
	c := s
	if s.Tags != nil {
		c.Tags = make([]string, len(s.Tags))
		copy(c.Tags, s.Tags)
	}
	return c
}

// Difficulty labels used in the corpus.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"

	// DifficultyAll disables difficulty filtering.
	DifficultyAll = "all"
)

// Bleve field name constants for consistent field references in catalog queries and mappings.
const (
	SnippetFieldQuestion   = "question"
	SnippetFieldTags       = "tags"
	SnippetFieldCategory   = "category"
	SnippetFieldDifficulty = "difficulty"
	SnippetFieldText       = "text"
	SnippetFieldSymbols    = "symbols"
)
