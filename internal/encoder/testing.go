package encoder

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
)

// Special token ids emitted by WordTokenizer.
const (
	ClassTokenID     = 101
	SeparatorTokenID = 102
)

// WordTokenizer is a deterministic whitespace tokenizer for tests.
// Each word maps to a stable id; the sequence is wrapped in class/separator tokens.
// This is exported for use in other packages' tests.
type WordTokenizer struct {
	VocabSize int
}

// Encode tokenizes text on whitespace.
func (t WordTokenizer) Encode(text string) ([]int64, error) {
	vocab := t.VocabSize
	if vocab <= 0 {
		vocab = 30000
	}

	words := strings.Fields(text)
	ids := make([]int64, 0, len(words)+2)
	ids = append(ids, ClassTokenID)
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(strings.ToLower(w)))
		ids = append(ids, 1000+int64(h.Sum32()%uint32(vocab)))
	}
	ids = append(ids, SeparatorTokenID)
	return ids, nil
}

// HashModel is a deterministic stand-in for a transformer.
// The embedding of a token depends only on its id, so texts sharing words
// land close to each other after pooling.
type HashModel struct {
	Hidden int
	calls  atomic.Int64
}

// NewHashModel creates a HashModel with the given hidden size.
func NewHashModel(hidden int) *HashModel {
	return &HashModel{Hidden: hidden}
}

// Run returns per-token embeddings for the batch, ignoring the mask.
func (m *HashModel) Run(_ context.Context, ids, _ []int64, batch, seqLen int) ([]float32, error) {
	m.calls.Add(1)
	out := make([]float32, batch*seqLen*m.Hidden)
	for i, id := range ids {
		for h := 0; h < m.Hidden; h++ {
			out[i*m.Hidden+h] = TokenValue(id, h)
		}
	}
	return out, nil
}

// HiddenSize returns the configured width.
func (m *HashModel) HiddenSize() int {
	return m.Hidden
}

// Calls returns the number of Run invocations.
func (m *HashModel) Calls() int {
	return int(m.calls.Load())
}

// Close is a no-op.
func (m *HashModel) Close() error {
	return nil
}

// TokenValue is the HashModel embedding component h of token id, in [-1, 1).
// Distinct tokens get nearly orthogonal vectors.
func TokenValue(id int64, h int) float32 {
	x := uint64(id)*0x9E3779B97F4A7C15 + uint64(h+1)*0xBF58476D1CE4E5B9
	x ^= x >> 31
	x *= 0x94D049BB133111EB
	x ^= x >> 29
	return float32(float64(x>>11)/(1<<53)*2 - 1)
}

// NewTestEncoder returns an encoder over WordTokenizer and a HashModel.
func NewTestEncoder(hidden int) (*Encoder, *HashModel) {
	model := NewHashModel(hidden)
	enc, err := New(WordTokenizer{}, model, Config{MaxLength: 32})
	if err != nil {
		panic(err)
	}
	return enc, model
}
