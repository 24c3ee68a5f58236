// Package corpus loads the snippet corpus from a line-delimited JSON file.
package corpus

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sha1n/snipsearch/internal/domain"
)

// MaxLineSize is the largest accepted corpus line (4MB).
const MaxLineSize = 4 * 1024 * 1024

// Corpus is the immutable, ordered set of snippets served by the process.
type Corpus struct {
	snippets []domain.Snippet
	checksum string
}

// record is the on-disk shape of a corpus line.
type record struct {
	Question   string   `json:"question"`
	Code       string   `json:"code"`
	Tags       []string `json:"tags"`
	Category   string   `json:"category"`
	Difficulty string   `json:"difficulty"`
}

// Load reads a corpus file. A missing file is a process initialization error.
func Load(path string) (*Corpus, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: corpus file not found: %s", domain.ErrProcessInit, path)
		}
		return nil, fmt.Errorf("%w: failed to read corpus: %v", domain.ErrProcessInit, err)
	}

	c, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrProcessInit, path, err)
	}

	sum := sha256.Sum256(data)
	c.checksum = hex.EncodeToString(sum[:])
	return c, nil
}

// Parse reads line-delimited JSON snippets. Blank lines are skipped;
// snippet IDs are assigned in load order.
func Parse(r io.Reader) (*Corpus, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)

	var snippets []domain.Snippet
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid snippet: %w", lineNo, err)
		}

		snippets = append(snippets, domain.Snippet{
			ID:         len(snippets),
			Question:   rec.Question,
			Code:       rec.Code,
			Tags:       tagsOrEmpty(rec.Tags),
			Category:   rec.Category,
			Difficulty: rec.Difficulty,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan corpus: %w", err)
	}

	return &Corpus{snippets: snippets}, nil
}

// New creates a corpus from in-memory snippets, reassigning IDs by position.
func New(snippets []domain.Snippet) *Corpus {
	owned := make([]domain.Snippet, len(snippets))
	for i, s := range snippets {
		owned[i] = s.Clone()
		owned[i].ID = i
		owned[i].Tags = tagsOrEmpty(owned[i].Tags)
	}
	return &Corpus{snippets: owned}
}

// tagsOrEmpty keeps missing tags serializing as [] rather than null.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Len returns the number of snippets.
func (c *Corpus) Len() int {
	return len(c.snippets)
}

// Get returns a copy of the snippet with the given ID.
func (c *Corpus) Get(id int) (domain.Snippet, bool) {
	if id < 0 || id >= len(c.snippets) {
		return domain.Snippet{}, false
	}
	return c.snippets[id].Clone(), true
}

// Snippets returns the corpus snippets in load order.
// The returned slice must be treated as read-only.
func (c *Corpus) Snippets() []domain.Snippet {
	return c.snippets
}

// Checksum returns the SHA-256 of the corpus file, or "" for in-memory corpora.
func (c *Corpus) Checksum() string {
	return c.checksum
}
