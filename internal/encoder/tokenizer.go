package encoder

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/sha1n/snipsearch/internal/domain"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizer wraps a HuggingFace tokenizer.json definition.
type HFTokenizer struct {
	tk *tokenizer.Tokenizer
	mu sync.Mutex
}

// OpenTokenizer loads a tokenizer definition file.
func OpenTokenizer(path string) (*HFTokenizer, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w: tokenizer not found: %s", domain.ErrProcessInit, domain.ErrModelLoad, path)
	}

	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: parse tokenizer %s: %v", domain.ErrProcessInit, domain.ErrModelLoad, path, err)
	}

	return &HFTokenizer{tk: tk}, nil
}

// Encode returns the token ids of text including special tokens.
// Blank text the tokenizer rejects encodes to no tokens.
func (t *HFTokenizer) Encode(text string) ([]int64, error) {
	t.mu.Lock()
	encoding, err := t.tk.EncodeSingle(text, true)
	t.mu.Unlock()
	if err != nil {
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return nil, err
	}

	ids := make([]int64, len(encoding.Ids))
	for i, id := range encoding.Ids {
		ids[i] = int64(id)
	}
	return ids, nil
}
