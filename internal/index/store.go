package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sha1n/snipsearch/internal/domain"
)

const (
	// IndexExt is the file extension of persisted indexes.
	IndexExt = ".index"

	// EmbeddingsExt is the file extension of persisted embedding matrices.
	EmbeddingsExt = ".npy"

	// DefaultLockTimeout bounds how long Prepare waits for another builder.
	DefaultLockTimeout = 5 * time.Minute
)

// Embedder produces unit-norm embeddings.
type Embedder interface {
	Embed(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
	Dimension() int
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Dir         string
	BatchSize   int
	LockTimeout time.Duration
	// Model identifies the encoder in the manifest.
	Model string
}

// Entry is a ready-to-search facet.
type Entry struct {
	Facet      Facet
	Index      *FlatIndex
	Embeddings [][]float32
	Rows       RowMap
	// Cached is true when the entry was loaded from disk instead of built.
	Cached bool
}

// Store builds, persists and loads facet indexes in one directory.
type Store struct {
	cfg      StoreConfig
	embedder Embedder
	manifest *Manifest
	lock     *BuildLock
	saveMu   sync.Mutex
}

// NewStore creates a store rooted at cfg.Dir, creating the directory if needed.
func NewStore(cfg StoreConfig, embedder Embedder) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("index directory cannot be empty")
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = DefaultLockTimeout
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	s := &Store{
		cfg:      cfg,
		embedder: embedder,
		lock:     NewBuildLock(filepath.Join(cfg.Dir, LockFilename)),
	}
	s.reloadManifest()
	return s, nil
}

// reloadManifest reads the manifest from disk, dropping facets this build does not know.
func (s *Store) reloadManifest() {
	manifest, err := LoadManifest(filepath.Join(s.cfg.Dir, ManifestFilename))
	if err != nil {
		slog.Warn("Ignoring unreadable index manifest", "error", err)
		manifest = NewManifest()
	}
	for _, name := range manifest.FacetNames() {
		if _, err := ParseFacet(name); err != nil {
			slog.Warn("Dropping unknown facet from manifest", "facet", name)
			manifest.RemoveFacet(Facet(name))
		}
	}
	s.manifest = manifest
}

// IndexPath returns the persisted index path of a facet.
func (s *Store) IndexPath(facet Facet) string {
	return filepath.Join(s.cfg.Dir, string(facet)+IndexExt)
}

// EmbeddingsPath returns the persisted embedding matrix path of a facet.
func (s *Store) EmbeddingsPath(facet Facet) string {
	return filepath.Join(s.cfg.Dir, string(facet)+EmbeddingsExt)
}

// Manifest returns the store manifest.
func (s *Store) Manifest() *Manifest {
	return s.manifest
}

// Exists reports whether both artifacts of a facet are on disk.
func (s *Store) Exists(facet Facet) bool {
	return fileExists(s.IndexPath(facet)) && fileExists(s.EmbeddingsPath(facet))
}

// GetOrBuild loads the facet from disk when both artifacts exist, otherwise
// embeds the texts, builds the index and persists it. A cached pair that
// cannot be read back consistently fails with domain.ErrCacheCorrupt.
func (s *Store) GetOrBuild(ctx context.Context, in FacetInput) (*Entry, error) {
	if len(in.Texts) != in.Rows.Len() {
		return nil, fmt.Errorf("facet %s: %d texts but %d mapped rows", in.Facet, len(in.Texts), in.Rows.Len())
	}

	if s.Exists(in.Facet) {
		entry, err := s.load(in)
		if err != nil {
			return nil, err
		}
		s.warnIfStale(in)
		slog.Info("Loaded cached index", "facet", in.Facet, "rows", entry.Index.Len())
		return entry, nil
	}

	return s.build(ctx, in)
}

// Purge removes the persisted artifacts of the given facets.
func (s *Store) Purge(facets ...Facet) error {
	var errs []error
	for _, f := range facets {
		for _, path := range []string{s.IndexPath(f), s.EmbeddingsPath(f)} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("failed to remove %s: %w", path, err))
			}
		}
		s.manifest.RemoveFacet(f)
	}
	if err := s.saveManifest(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Prepare makes all facets of the corpus ready, building them concurrently.
// Builds are serialized across processes by the directory's build lock.
// Facets listed in rebuild are purged first, unless another process built
// them while this one waited for the lock.
func (s *Store) Prepare(ctx context.Context, snippets []domain.Snippet, checksum string, rebuild []Facet) (map[Facet]*Entry, error) {
	waitStart := time.Now().UTC()
	acquired, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire build lock: %w", err)
	}
	if acquired {
		slog.Info("Acquired index build lock")
	} else {
		slog.Info("Another process is building indexes, waiting", "lock", s.lock.Path())
		if err := s.lock.Lock(ctx, s.cfg.LockTimeout); err != nil {
			return nil, fmt.Errorf("failed to acquire build lock: %w", err)
		}
		s.reloadManifest()
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			slog.Error("Failed to unlock", "error", err)
		}
	}()

	var purge []Facet
	for _, f := range rebuild {
		if s.builtSince(f, waitStart) {
			slog.Info("Index was rebuilt by another process, keeping it", "facet", f)
			continue
		}
		purge = append(purge, f)
	}
	if len(purge) > 0 {
		slog.Info("Rebuilding indexes from scratch", "facets", purge)
		if err := s.Purge(purge...); err != nil {
			return nil, err
		}
	}

	inputs := make([]FacetInput, 0, len(Facets()))
	for _, f := range Facets() {
		in, err := NewFacetInput(f, snippets, checksum)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	entries := make([]*Entry, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			entry, err := s.GetOrBuild(gctx, in)
			if err != nil {
				return fmt.Errorf("facet %s: %w", in.Facet, err)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ready := make(map[Facet]*Entry, len(entries))
	for _, e := range entries {
		ready[e.Facet] = e
	}
	slog.Info("Indexes ready", "count", len(ready))
	return ready, nil
}

func (s *Store) builtSince(facet Facet, since time.Time) bool {
	state, ok := s.manifest.FacetState(facet)
	return ok && state.BuiltAt.After(since) && s.Exists(facet)
}

func (s *Store) build(ctx context.Context, in FacetInput) (*Entry, error) {
	start := time.Now()
	slog.Info("Building index", "facet", in.Facet, "rows", len(in.Texts))

	vectors, err := s.embedder.Embed(ctx, in.Texts, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %s facet: %w", in.Facet, err)
	}

	dim := s.embedder.Dimension()
	idx := NewFlatIndex(dim)
	if err := idx.Add(vectors...); err != nil {
		return nil, err
	}

	if err := s.persist(in, idx); err != nil {
		return nil, err
	}

	s.manifest.SetFacetState(in.Facet, FacetState{
		Rows:           idx.Len(),
		Dim:            dim,
		Snippets:       in.Rows.SnippetCount(),
		CorpusChecksum: in.CorpusChecksum,
		Model:          s.cfg.Model,
		BuiltAt:        time.Now().UTC(),
	})
	if err := s.saveManifest(); err != nil {
		slog.Error("Failed to save manifest", "error", err)
	}

	slog.Info("Index built", "facet", in.Facet, "rows", idx.Len(), "duration", time.Since(start))
	return &Entry{
		Facet:      in.Facet,
		Index:      idx,
		Embeddings: rowsOf(idx),
		Rows:       in.Rows,
	}, nil
}

func (s *Store) persist(in FacetInput, idx *FlatIndex) error {
	npy, err := EncodeNPY(idx.Len(), idx.Dim(), idx.data)
	if err != nil {
		return err
	}
	raw, err := EncodeIndex(idx, in.Rows)
	if err != nil {
		return err
	}

	// The index is written last; its presence marks a complete pair.
	if err := writeFileAtomic(s.EmbeddingsPath(in.Facet), npy); err != nil {
		return err
	}
	return writeFileAtomic(s.IndexPath(in.Facet), raw)
}

func (s *Store) load(in FacetInput) (*Entry, error) {
	raw, err := os.ReadFile(s.IndexPath(in.Facet))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}
	npy, err := os.ReadFile(s.EmbeddingsPath(in.Facet))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheCorrupt, err)
	}

	idx, rows, err := DecodeIndex(raw, in.Rows.SnippetCount())
	if err != nil {
		return nil, fmt.Errorf("facet %s: %w", in.Facet, err)
	}
	n, dim, values, err := DecodeNPY(npy)
	if err != nil {
		return nil, fmt.Errorf("facet %s: %w", in.Facet, err)
	}

	if n != idx.Len() || dim != idx.Dim() {
		return nil, corrupt("facet %s: embeddings %dx%d do not match index %dx%d", in.Facet, n, dim, idx.Len(), idx.Dim())
	}
	if want := s.embedder.Dimension(); dim != want {
		return nil, corrupt("facet %s: dimension %d, encoder produces %d", in.Facet, dim, want)
	}

	embeddings := make([][]float32, n)
	for i := range embeddings {
		embeddings[i] = values[i*dim : (i+1)*dim : (i+1)*dim]
	}

	return &Entry{
		Facet:      in.Facet,
		Index:      idx,
		Embeddings: embeddings,
		Rows:       rows,
		Cached:     true,
	}, nil
}

func (s *Store) warnIfStale(in FacetInput) {
	state, ok := s.manifest.FacetState(in.Facet)
	if !ok {
		slog.Warn("Cached index has no manifest entry", "facet", in.Facet)
		return
	}
	if reasons := state.Staleness(in.Rows.SnippetCount(), in.CorpusChecksum, s.cfg.Model); len(reasons) > 0 {
		slog.Warn("Cached index may be stale, rebuild to refresh", "facet", in.Facet, "reasons", reasons)
	}
}

func (s *Store) saveManifest() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.manifest.Save(filepath.Join(s.cfg.Dir, ManifestFilename))
}

func rowsOf(idx *FlatIndex) [][]float32 {
	out := make([][]float32, idx.Len())
	for i := range out {
		out[i] = idx.data[i*idx.dim : (i+1)*idx.dim : (i+1)*idx.dim]
	}
	return out
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
