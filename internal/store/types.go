// Package store provides the nearest-neighbour indexes the retrieval
// engine queries (exact flat L2, HNSW, Qdrant) and the .npy codec for the
// persisted embedding matrix.
package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Neighbor is one search hit: the ordinal of the stored vector and its
// squared Euclidean distance to the query.
type Neighbor struct {
	Ordinal  int
	Distance float32
}

// Backend names a VectorIndex implementation.
type Backend string

const (
	// BackendFlat is exact brute-force search.
	BackendFlat Backend = "flat"
	// BackendHNSW is approximate search over an in-process HNSW graph.
	BackendHNSW Backend = "hnsw"
	// BackendQdrant delegates search to a Qdrant collection.
	BackendQdrant Backend = "qdrant"
)

// ParseBackend converts a name to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendFlat, BackendHNSW, BackendQdrant:
		return b, nil
	case "":
		return BackendFlat, nil
	default:
		return "", fmt.Errorf("unknown index backend %q (valid: flat, hnsw, qdrant)", s)
	}
}

// FileName is the artifact file name used for the backend's index blob.
func (b Backend) FileName() string {
	return "index." + string(b)
}

// VectorIndex is a k-nearest-neighbour index over vectors addressed by
// ordinal (insertion position). Every backend reports squared L2 distances
// so scores do not depend on the backend.
type VectorIndex interface {
	// Build replaces the index content with vectors; vector i gets ordinal i.
	Build(ctx context.Context, vectors [][]float32) error

	// Query returns up to k neighbours ordered by ascending distance,
	// ties broken by ascending ordinal.
	Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error)

	// Save persists the index to path.
	Save(path string) error

	// Load replaces the index content with the one saved at path.
	Load(path string) error

	// Count returns the number of indexed vectors.
	Count() int

	// Dimensions returns the vector dimension.
	Dimensions() int

	Close() error
}

// Retirer is implemented by indexes whose storage outlives the process.
// Retire tells the index a newer build replaced it, so Close should also
// release that storage.
type Retirer interface {
	Retire()
}

// IndexConfig configures NewIndex.
type IndexConfig struct {
	Backend    Backend
	Dimensions int

	// HNSW parameters.
	M        int
	EfSearch int

	// Qdrant connection.
	Qdrant QdrantConfig
}

// DefaultIndexConfig returns the exact flat index configuration.
func DefaultIndexConfig(dimensions int) IndexConfig {
	return IndexConfig{
		Backend:    BackendFlat,
		Dimensions: dimensions,
		M:          16,
		EfSearch:   128,
		Qdrant:     DefaultQdrantConfig(),
	}
}

// NewIndex creates an empty index for cfg.Backend.
func NewIndex(cfg IndexConfig) (VectorIndex, error) {
	switch cfg.Backend {
	case BackendFlat, "":
		return NewFlatIndex(cfg.Dimensions), nil
	case BackendHNSW:
		return NewHNSWIndex(cfg), nil
	case BackendQdrant:
		q := cfg.Qdrant
		q.Dimensions = cfg.Dimensions
		idx, err := NewQdrantIndex(q)
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// ErrClosed is returned by indexes used after Close.
var ErrClosed = errors.New("index is closed")

// ErrDimensionMismatch indicates a vector whose length differs from the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (rebuild the index with the current embedder)", e.Expected, e.Got)
}

func checkDims(expected int, vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != expected {
			return ErrDimensionMismatch{Expected: expected, Got: len(v)}
		}
	}
	return nil
}

// squaredL2 is the distance reported by every backend.
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func sortNeighbors(ns []Neighbor) {
	slices.SortFunc(ns, func(a, b Neighbor) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Ordinal, b.Ordinal)
	})
}
