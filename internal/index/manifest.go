package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	// ManifestVersion is the current schema version
	ManifestVersion = 1

	// ManifestFilename is the manifest filename inside the index directory
	ManifestFilename = "manifest.json"
)

// Manifest records what each persisted facet was built from.
// It is advisory: a mismatch produces a warning, never a rebuild.
type Manifest struct {
	Version int                   `json:"version"`
	Facets  map[string]FacetState `json:"facets"`
	mu      sync.RWMutex          `json:"-"`
}

// FacetState describes one persisted facet.
type FacetState struct {
	Rows           int       `json:"rows"`
	Dim            int       `json:"dim"`
	Snippets       int       `json:"snippets"`
	CorpusChecksum string    `json:"corpus_checksum,omitempty"`
	Model          string    `json:"model,omitempty"`
	BuiltAt        time.Time `json:"built_at"`
}

// NewManifest creates an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Facets:  make(map[string]FacetState),
	}
}

// LoadManifest reads a manifest from disk, or returns an empty one if it doesn't exist.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewManifest(), nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if manifest.Facets == nil {
		manifest.Facets = make(map[string]FacetState)
	}

	return &manifest, nil
}

// Save writes the manifest atomically.
func (m *Manifest) Save(path string) error {
	m.mu.RLock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	return writeFileAtomic(path, data)
}

// FacetState returns the recorded state of a facet.
func (m *Manifest) FacetState(facet Facet) (FacetState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.Facets[string(facet)]
	return state, ok
}

// SetFacetState records the state of a facet.
func (m *Manifest) SetFacetState(facet Facet, state FacetState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Facets[string(facet)] = state
}

// RemoveFacet forgets a facet.
func (m *Manifest) RemoveFacet(facet Facet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Facets, string(facet))
}

// FacetNames returns the recorded facet names, sorted.
func (m *Manifest) FacetNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.Facets))
	for name := range m.Facets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Staleness lists why a persisted facet may not match the current build inputs.
// An empty result means nothing looks out of date.
func (s FacetState) Staleness(snippets int, checksum, model string) []string {
	var reasons []string
	if s.Snippets != snippets {
		reasons = append(reasons, fmt.Sprintf("snippet count %d != %d", s.Snippets, snippets))
	}
	if checksum != "" && s.CorpusChecksum != "" && s.CorpusChecksum != checksum {
		reasons = append(reasons, "corpus checksum changed")
	}
	if model != "" && s.Model != "" && s.Model != model {
		reasons = append(reasons, fmt.Sprintf("model %q != %q", s.Model, model))
	}
	return reasons
}
