package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/sha1n/snipsearch/internal/corpus"
	"github.com/sha1n/snipsearch/internal/encoder"
	"github.com/sha1n/snipsearch/internal/index"
)

// Encoder is what bootstrap needs from the text encoder.
type Encoder interface {
	index.Embedder
	QueryEmbedder
	Close() error
}

// BootstrapParams configures startup.
type BootstrapParams struct {
	CorpusPath string
	Assets     encoder.AssetsConfig
	Store      index.StoreConfig
	Rebuild    bool
	Search     Config
	// RebuildFacets names facets to purge when Rebuild is false.
	RebuildFacets []string
	// OpenEncoder loads the encoder; nil selects encoder.Open.
	OpenEncoder func(encoder.AssetsConfig) (Encoder, error)
}

// Bootstrap loads the corpus and encoder, prepares every facet index and
// returns a ready service. The returned cleanup releases the encoder.
func Bootstrap(ctx context.Context, p BootstrapParams) (*Service, func(), error) {
	start := time.Now()

	c, err := corpus.Load(p.CorpusPath)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Corpus loaded", "path", p.CorpusPath, "snippets", c.Len())

	open := p.OpenEncoder
	if open == nil {
		open = openEncoder
	}
	enc, err := open(p.Assets)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load encoder: %w", err)
	}
	cleanup := func() {
		if err := enc.Close(); err != nil {
			slog.Error("Failed to close encoder", "error", err)
		}
	}

	storeCfg := p.Store
	if storeCfg.Model == "" {
		storeCfg.Model = p.Assets.ModelPath()
	}
	if storeCfg.BatchSize <= 0 {
		storeCfg.BatchSize = p.Assets.BatchSize
	}

	rebuild, err := rebuildFacets(p)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	store, err := index.NewStore(storeCfg, enc)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	entries, err := store.Prepare(ctx, c.Snippets(), c.Checksum(), rebuild)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to prepare indexes: %w", err)
	}

	svc, err := NewService(c.Snippets(), entries, enc, p.Search)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	slog.Info("Retriever ready", "snippets", svc.Len(), "duration", time.Since(start))
	return svc, cleanup, nil
}

func rebuildFacets(p BootstrapParams) ([]index.Facet, error) {
	if p.Rebuild {
		return index.Facets(), nil
	}
	facets := make([]index.Facet, 0, len(p.RebuildFacets))
	for _, name := range p.RebuildFacets {
		f, err := index.ParseFacet(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(facets, f) {
			facets = append(facets, f)
		}
	}
	return facets, nil
}

func openEncoder(cfg encoder.AssetsConfig) (Encoder, error) {
	return encoder.Open(cfg)
}
