package index

import (
	"cmp"
	"fmt"
	"slices"
)

// Hit is one nearest-neighbor result.
type Hit struct {
	Row   int
	Score float32
}

// FlatIndex is an exact inner-product index over row-major vectors.
// It is immutable once built and safe for concurrent searches.
type FlatIndex struct {
	dim  int
	data []float32
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

// Add appends vectors as new rows, in order.
func (f *FlatIndex) Add(vectors ...[]float32) error {
	for i, v := range vectors {
		if len(v) != f.dim {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), f.dim)
		}
	}
	for _, v := range vectors {
		f.data = append(f.data, v...)
	}
	return nil
}

// Dim returns the vector dimension.
func (f *FlatIndex) Dim() int {
	return f.dim
}

// Len returns the number of rows.
func (f *FlatIndex) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Vector returns a copy of a stored row.
func (f *FlatIndex) Vector(row int) []float32 {
	v := make([]float32, f.dim)
	copy(v, f.data[row*f.dim:(row+1)*f.dim])
	return v
}

// Search returns up to k rows with the highest inner product against query,
// most similar first. Equal scores keep ascending row order.
func (f *FlatIndex) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), f.dim)
	}
	if k <= 0 {
		return []Hit{}, nil
	}

	n := f.Len()
	hits := make([]Hit, n)
	for row := range n {
		hits[row] = Hit{Row: row, Score: dot(query, f.data[row*f.dim:(row+1)*f.dim])}
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return hits[:min(k, n)], nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
