package store

import (
	"context"
	"fmt"
	"sync"
)

// FlatIndex is exact nearest-neighbour search by scanning every vector.
// Its neighbours match an exact L2 scan and its distances agree with one
// within float32 rounding, which makes it the reference backend.
type FlatIndex struct {
	mu      sync.RWMutex
	dims    int
	vectors [][]float32
	closed  bool
}

var _ VectorIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty flat index. dims may be 0 when the index
// will be loaded from disk.
func NewFlatIndex(dims int) *FlatIndex {
	return &FlatIndex{dims: dims}
}

// Build copies vectors into the index.
func (f *FlatIndex) Build(_ context.Context, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.dims == 0 && len(vectors) > 0 {
		f.dims = len(vectors[0])
	}
	if err := checkDims(f.dims, vectors...); err != nil {
		return err
	}

	f.vectors = make([][]float32, len(vectors))
	for i, v := range vectors {
		f.vectors[i] = append([]float32(nil), v...)
	}
	return nil
}

// Query scans all vectors and returns the k closest.
func (f *FlatIndex) Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	if err := checkDims(f.dims, vector); err != nil {
		return nil, err
	}
	if k <= 0 || len(f.vectors) == 0 {
		return []Neighbor{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all := make([]Neighbor, len(f.vectors))
	for i, v := range f.vectors {
		all[i] = Neighbor{Ordinal: i, Distance: squaredL2(vector, v)}
	}
	sortNeighbors(all)

	return all[:min(k, len(all))], nil
}

// Save writes the vectors as a .npy matrix.
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrClosed
	}
	return SaveMatrix(path, Matrix{Rows: f.vectors, Cols: f.dims})
}

// Load reads vectors saved by Save.
func (f *FlatIndex) Load(path string) error {
	m, err := LoadMatrix(path)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if f.dims != 0 && m.Cols != f.dims {
		return fmt.Errorf("load flat index: %w", ErrDimensionMismatch{Expected: f.dims, Got: m.Cols})
	}
	f.dims = m.Cols
	f.vectors = m.Rows
	return nil
}

// Count returns the number of vectors.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dims
}

// Close drops the vectors.
func (f *FlatIndex) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.vectors = nil
	return nil
}
