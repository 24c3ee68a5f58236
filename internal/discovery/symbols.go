package discovery

import (
	"regexp"
	"slices"
	"strings"
)

// MaxSymbolLength drops captures too long to be identifiers.
const MaxSymbolLength = 64

var declarationPatterns = map[string][]*regexp.Regexp{
	"python": {
		regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*class\s+(\w+)`),
	},
	"go": {
		regexp.MustCompile(`func\s+(?:\([^)]*\)\s*)?(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s+(?:struct|interface)`),
	},
	"javascript": {
		regexp.MustCompile(`function\s*\*?\s*(\w+)`),
		regexp.MustCompile(`class\s+(\w+)`),
		regexp.MustCompile(`(?:const|let|var)\s+(\w+)\s*=`),
	},
	"typescript": {
		regexp.MustCompile(`function\s+(\w+)`),
		regexp.MustCompile(`(?:class|interface)\s+(\w+)`),
		regexp.MustCompile(`type\s+(\w+)\s*=`),
		regexp.MustCompile(`(?:const|let)\s+(\w+)\s*[:=]`),
	},
	"java": {
		regexp.MustCompile(`(?:class|interface|enum)\s+(\w+)`),
		regexp.MustCompile(`(?:public|protected|private|static)\s+[\w<>\[\]]+\s+(\w+)\s*\(`),
	},
	"rust": {
		regexp.MustCompile(`fn\s+(\w+)`),
		regexp.MustCompile(`(?:struct|enum|trait)\s+(\w+)`),
	},
	"c": {
		regexp.MustCompile(`(?m)^\s*\w+[\s*]+(\w+)\s*\([^;]*\)\s*\{`),
		regexp.MustCompile(`(?:struct|enum)\s+(\w+)`),
		regexp.MustCompile(`#define\s+(\w+)`),
	},
	"cpp": {
		regexp.MustCompile(`(?:class|struct|enum)\s+(\w+)`),
		regexp.MustCompile(`(?m)^\s*\w+[\s*&]+(\w+)\s*\([^;]*\)\s*\{`),
	},
}

var languageAliases = map[string]string{
	"py":      "python",
	"golang":  "go",
	"js":      "javascript",
	"jsx":     "javascript",
	"node":    "javascript",
	"ts":      "typescript",
	"tsx":     "typescript",
	"rs":      "rust",
	"c++":     "cpp",
	"h":       "c",
	"hpp":     "cpp",
	"kotlin":  "java",
	"android": "java",
}

// Language returns the first tag naming a known language, or "".
func Language(tags []string) string {
	for _, tag := range tags {
		name := strings.ToLower(strings.TrimSpace(tag))
		if alias, ok := languageAliases[name]; ok {
			name = alias
		}
		if _, ok := declarationPatterns[name]; ok {
			return name
		}
	}
	return ""
}

// ExtractSymbols returns the sorted, unique identifiers declared in code.
// Patterns follow the language named by tags; without one, every language is tried.
func ExtractSymbols(code string, tags []string) []string {
	var patterns []*regexp.Regexp
	if lang := Language(tags); lang != "" {
		patterns = declarationPatterns[lang]
	} else {
		for _, p := range declarationPatterns {
			patterns = append(patterns, p...)
		}
	}

	var symbols []string
	for _, re := range patterns {
		for _, match := range re.FindAllStringSubmatch(code, -1) {
			if len(match) < 2 {
				continue
			}
			symbol := strings.TrimSpace(match[1])
			if symbol != "" && len(symbol) <= MaxSymbolLength {
				symbols = append(symbols, symbol)
			}
		}
	}

	slices.Sort(symbols)
	return slices.Compact(symbols)
}
