// Package encoder turns text into unit-length embedding vectors.
//
// Each text is tokenized, truncated or right-padded to a fixed sequence
// length, run through a transformer model that yields per-token
// embeddings, mean-pooled over the attention mask, and L2-normalized so
// that inner product equals cosine similarity.
package encoder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sha1n/snipsearch/internal/domain"
)

const (
	// DefaultMaxLength is the fixed token sequence length fed to the model.
	DefaultMaxLength = 256

	// DefaultBatchSize is the number of texts per inference call.
	DefaultBatchSize = 32

	// DefaultCacheSize is the number of query embeddings kept in memory.
	DefaultCacheSize = 1024

	// MinTokenCount clamps the pooling denominator for all-padding inputs.
	MinTokenCount = 1e-9
)

// Tokenizer converts text to token ids.
type Tokenizer interface {
	Encode(text string) ([]int64, error)
}

// Model runs the transformer over a padded batch.
// ids and mask are row-major (batch, seqLen); the result is row-major
// (batch, seqLen, HiddenSize()).
type Model interface {
	Run(ctx context.Context, ids, mask []int64, batch, seqLen int) ([]float32, error)
	HiddenSize() int
	Close() error
}

// Config holds encoder tuning parameters. Zero values select defaults.
type Config struct {
	MaxLength int
	BatchSize int
	CacheSize int
}

// Encoder embeds text. It is safe for concurrent use.
type Encoder struct {
	tokenizer Tokenizer
	model     Model
	maxLength int
	batchSize int
	cache     *lru.Cache[string, []float32]
}

// New creates an encoder over the given tokenizer and model.
func New(tokenizer Tokenizer, model Model, cfg Config) (*Encoder, error) {
	if tokenizer == nil {
		return nil, fmt.Errorf("%w: tokenizer is nil", domain.ErrModelLoad)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: model is nil", domain.ErrModelLoad)
	}
	if model.HiddenSize() <= 0 {
		return nil, fmt.Errorf("%w: model hidden size must be positive, got %d", domain.ErrModelLoad, model.HiddenSize())
	}

	if cfg.MaxLength <= 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Encoder{
		tokenizer: tokenizer,
		model:     model,
		maxLength: cfg.MaxLength,
		batchSize: cfg.BatchSize,
		cache:     cache,
	}, nil
}

// Dimension returns the embedding vector length.
func (e *Encoder) Dimension() int {
	return e.model.HiddenSize()
}

// MaxLength returns the token sequence length.
func (e *Encoder) MaxLength() int {
	return e.maxLength
}

// Embed returns one unit-norm vector per text, in input order.
// A non-positive batchSize selects the configured default.
func (e *Encoder) Embed(ctx context.Context, texts []string, batchSize int) (vectors [][]float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			vectors = nil
			err = fmt.Errorf("%w: panic during inference: %v", domain.ErrInference, r)
		}
	}()

	if batchSize <= 0 {
		batchSize = e.batchSize
	}

	vectors = make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := min(start+batchSize, len(texts))
		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery embeds a single text as a batch of one.
// Results are memoized by content hash; callers receive their own copy.
func (e *Encoder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := ComputeHash(text)
	if v, ok := e.cache.Get(key); ok {
		return cloneVector(v), nil
	}

	vectors, err := e.Embed(ctx, []string{text}, 1)
	if err != nil {
		return nil, err
	}

	e.cache.Add(key, cloneVector(vectors[0]))
	return vectors[0], nil
}

// CacheSize returns the number of memoized query embeddings.
func (e *Encoder) CacheSize() int {
	return e.cache.Len()
}

// Close releases the model.
func (e *Encoder) Close() error {
	e.cache.Purge()
	return e.model.Close()
}

func (e *Encoder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := len(texts)
	seqLen := e.maxLength
	ids := make([]int64, batch*seqLen)
	mask := make([]int64, batch*seqLen)

	for i, text := range texts {
		tokens, err := e.tokenizer.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("%w: tokenize text %d: %v", domain.ErrInference, i, err)
		}
		if len(tokens) > seqLen {
			tokens = tokens[:seqLen]
		}
		// Remaining positions keep id 0 and mask 0
		row := i * seqLen
		copy(ids[row:], tokens)
		for j := range tokens {
			mask[row+j] = 1
		}
	}

	tokenEmbeddings, err := e.model.Run(ctx, ids, mask, batch, seqLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInference, err)
	}

	hidden := e.model.HiddenSize()
	if want := batch * seqLen * hidden; len(tokenEmbeddings) != want {
		return nil, fmt.Errorf("%w: model returned %d values, want %d (batch=%d, seq=%d, hidden=%d)",
			domain.ErrInference, len(tokenEmbeddings), want, batch, seqLen, hidden)
	}

	vectors := make([][]float32, batch)
	stride := seqLen * hidden
	for i := range batch {
		pooled := MeanPool(tokenEmbeddings[i*stride:(i+1)*stride], mask[i*seqLen:(i+1)*seqLen], hidden)
		vectors[i] = Normalize(pooled)
	}
	return vectors, nil
}

// MeanPool averages the token embeddings of active mask positions.
// tokens is row-major (len(mask), hidden).
func MeanPool(tokens []float32, mask []int64, hidden int) []float32 {
	sums := make([]float64, hidden)
	var count float64
	for s, m := range mask {
		if m == 0 {
			continue
		}
		weight := float64(m)
		count += weight
		row := tokens[s*hidden : (s+1)*hidden]
		for h, v := range row {
			sums[h] += float64(v) * weight
		}
	}
	count = max(count, MinTokenCount)

	pooled := make([]float32, hidden)
	for h, sum := range sums {
		pooled[h] = float32(sum / count)
	}
	return pooled
}

// Normalize returns v scaled to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	result := make([]float32, len(v))
	if sum == 0 {
		return result
	}

	norm := math.Sqrt(sum)
	for i, x := range v {
		result[i] = float32(float64(x) / norm)
	}
	return result
}

// ComputeHash computes the SHA-256 of text, used as the query cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func cloneVector(v []float32) []float32 {
	c := make([]float32, len(v))
	copy(c, v)
	return c
}
