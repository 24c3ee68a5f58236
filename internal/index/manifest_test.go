package index

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadManifest_Missing(t *testing.T) {
	m, err := LoadManifest(filepath.Join(t.TempDir(), ManifestFilename))
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if m.Version != ManifestVersion || len(m.Facets) != 0 {
		t.Errorf("unexpected manifest: %+v", m)
	}
}

func TestLoadManifest_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFilename)
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadManifest(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestManifest_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ManifestFilename)
	built := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := NewManifest()
	m.SetFacetState(FacetCode, FacetState{Rows: 9, Dim: 4, Snippets: 3, CorpusChecksum: "abc", Model: "m", BuiltAt: built})
	m.SetFacetState(FacetQuestion, FacetState{Rows: 3, Dim: 4, Snippets: 3})
	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	state, ok := loaded.FacetState(FacetCode)
	if !ok {
		t.Fatal("missing code facet")
	}
	if state.Rows != 9 || state.CorpusChecksum != "abc" || !state.BuiltAt.Equal(built) {
		t.Errorf("unexpected state: %+v", state)
	}
	if names := loaded.FacetNames(); !slices.Equal(names, []string{"code", "question"}) {
		t.Errorf("FacetNames = %v", names)
	}

	loaded.RemoveFacet(FacetCode)
	if _, ok := loaded.FacetState(FacetCode); ok {
		t.Error("RemoveFacet did not remove")
	}
}

func TestFacetState_Staleness(t *testing.T) {
	state := FacetState{Snippets: 3, CorpusChecksum: "abc", Model: "m1"}

	tests := []struct {
		name     string
		snippets int
		checksum string
		model    string
		stale    int
	}{
		{"fresh", 3, "abc", "m1", 0},
		{"unknown inputs", 3, "", "", 0},
		{"snippet count", 4, "abc", "m1", 1},
		{"checksum", 3, "def", "m1", 1},
		{"model", 3, "abc", "m2", 1},
		{"everything", 5, "def", "m2", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reasons := state.Staleness(tt.snippets, tt.checksum, tt.model)
			if len(reasons) != tt.stale {
				t.Errorf("Staleness = %v, want %d reasons", reasons, tt.stale)
			}
		})
	}
}
