// Package classify guesses which retrieval facet a raw query resembles.
//
// Classification is a cheap lexical heuristic evaluated as an ordered list
// of rules; the first matching rule wins and QuestionMode is the fallback.
// It is best-effort and not meant to be robust against adversarial input.
package classify

import (
	"fmt"
	"strings"

	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sha1n/snipsearch/internal/index"
)

// Mode identifies the facet a query is matched against.
type Mode int

const (
	QuestionMode Mode = iota + 1
	CodeMode
	TagsMode
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case QuestionMode:
		return "question"
	case CodeMode:
		return "code"
	case TagsMode:
		return "tags"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Facet returns the index facet queried for this mode.
func (m Mode) Facet() (index.Facet, error) {
	switch m {
	case QuestionMode:
		return index.FacetQuestion, nil
	case CodeMode:
		return index.FacetCode, nil
	case TagsMode:
		return index.FacetTags, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidMode, m)
	}
}

// Rule maps a predicate over the raw query to a mode.
type Rule struct {
	Name  string
	Mode  Mode
	Match func(text string) bool
}

// CodeTokens are substrings that mark a query as source code.
var CodeTokens = []string{
	"def ", "class ", "{", "}", "};", "==", "->", "#include",
	"import ", "for(", "while(", ":", "[", "]",
}

// DefaultRules returns the rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "tag-list", Mode: TagsMode, Match: looksLikeTagList},
		{Name: "code-token", Mode: CodeMode, Match: containsCodeToken},
	}
}

// Classifier evaluates rules in order. It holds no per-call state.
type Classifier struct {
	rules    []Rule
	fallback Mode
}

// New creates a classifier over the given rules. Nil rules selects DefaultRules.
func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{
		rules:    rules,
		fallback: QuestionMode,
	}
}

// Classify returns the mode of the first matching rule, or QuestionMode.
func (c *Classifier) Classify(text string) Mode {
	mode, _ := c.Explain(text)
	return mode
}

// Explain returns the mode and the name of the rule that selected it.
// The rule name is "fallback" when no rule matched.
func (c *Classifier) Explain(text string) (Mode, string) {
	for _, r := range c.rules {
		if r.Match(text) {
			return r.Mode, r.Name
		}
	}
	return c.fallback, "fallback"
}

// Rules returns a copy of the classifier rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

// Classify classifies text with the default rules.
func Classify(text string) Mode {
	return defaultClassifier.Classify(text)
}

var defaultClassifier = New(nil)

// looksLikeTagList matches short comma-delimited input.
func looksLikeTagList(text string) bool {
	return strings.Count(text, ",") >= 2 && len(strings.Fields(text)) < 4
}

func containsCodeToken(text string) bool {
	for _, tok := range CodeTokens {
		if strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
