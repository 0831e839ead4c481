package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex is approximate nearest-neighbour search over a coder/hnsw
// graph keyed by ordinal. Each query pulls at least EfSearch candidates
// from the graph and re-ranks them by exact squared distance, so only
// recall (not scoring) differs from FlatIndex.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	dims   int
	m      int
	ef     int
	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

const defaultEfSearch = 128

// hnswMeta is the gob sidecar written next to the exported graph.
type hnswMeta struct {
	Dimensions int
	M          int
	EfSearch   int
	Count      int
}

// NewHNSWIndex creates an empty HNSW index.
func NewHNSWIndex(cfg IndexConfig) *HNSWIndex {
	if cfg.M <= 0 {
		cfg.M = 16
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = defaultEfSearch
	}
	h := &HNSWIndex{dims: cfg.Dimensions, m: cfg.M, ef: cfg.EfSearch}
	h.graph = h.newGraph()
	return h
}

func (h *HNSWIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = h.m
	g.EfSearch = h.ef
	g.Ml = 0.25
	return g
}

// Build inserts vectors into a fresh graph.
func (h *HNSWIndex) Build(ctx context.Context, vectors [][]float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.dims == 0 && len(vectors) > 0 {
		h.dims = len(vectors[0])
	}
	if err := checkDims(h.dims, vectors...); err != nil {
		return err
	}

	g := h.newGraph()
	for i, v := range vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		g.Add(hnsw.MakeNode(uint64(i), append([]float32(nil), v...)))
	}
	h.graph = g
	return nil
}

// Query searches the graph and returns up to k neighbours with exact
// squared distances.
func (h *HNSWIndex) Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, ErrClosed
	}
	if err := checkDims(h.dims, vector); err != nil {
		return nil, err
	}
	if k <= 0 || h.graph.Len() == 0 {
		return []Neighbor{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The graph search stops as soon as its result set is full and the
	// best candidate stops improving, so asking for only k leaves most
	// true neighbours unvisited.
	nodes := h.graph.Search(vector, h.fetchCount(k))
	out := make([]Neighbor, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, Neighbor{Ordinal: int(n.Key), Distance: squaredL2(vector, n.Value)})
	}
	sortNeighbors(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// fetchCount is how many graph candidates a top-k query re-ranks.
func (h *HNSWIndex) fetchCount(k int) int {
	return max(k, h.ef)
}

// Save exports the graph to path and its parameters to path+".meta".
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}

	if err := WriteFileAtomic(path, func(w io.Writer) error {
		return h.graph.Export(w)
	}); err != nil {
		return fmt.Errorf("export hnsw graph: %w", err)
	}

	meta := hnswMeta{Dimensions: h.dims, M: h.m, EfSearch: h.ef, Count: h.graph.Len()}
	if err := WriteFileAtomic(path+".meta", func(w io.Writer) error {
		return gob.NewEncoder(w).Encode(meta)
	}); err != nil {
		return fmt.Errorf("save hnsw metadata: %w", err)
	}
	return nil
}

// Load imports a graph written by Save.
func (h *HNSWIndex) Load(path string) error {
	meta, err := readHNSWMeta(path + ".meta")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open hnsw graph: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("failed to close hnsw graph file", slog.String("error", cerr.Error()))
		}
	}()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.dims != 0 && meta.Dimensions != h.dims {
		return fmt.Errorf("load hnsw index: %w", ErrDimensionMismatch{Expected: h.dims, Got: meta.Dimensions})
	}

	h.m, h.ef, h.dims = meta.M, meta.EfSearch, meta.Dimensions
	g := h.newGraph()
	// Import needs an io.ByteReader.
	if err := g.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("import hnsw graph: %w", err)
	}
	if g.Len() != meta.Count {
		return fmt.Errorf("hnsw graph has %d nodes, metadata says %d", g.Len(), meta.Count)
	}
	g.EfSearch = h.ef
	h.graph = g
	return nil
}

func readHNSWMeta(path string) (hnswMeta, error) {
	var meta hnswMeta
	f, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open hnsw metadata: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return meta, nil
}

// Count returns the number of graph nodes.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0
	}
	return h.graph.Len()
}

// Dimensions returns the vector dimension.
func (h *HNSWIndex) Dimensions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dims
}

// Close releases the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.graph = nil
	return nil
}
