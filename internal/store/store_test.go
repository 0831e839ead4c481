package store

import (
	"bytes"
	"cmp"
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dims int, seed int64) [][]float32 {
	r := rand.New(rand.NewSource(seed))
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dims)
		for j := range v {
			v[j] = r.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

// ============================================================================
// FlatIndex
// ============================================================================

func TestFlatIndex_ReturnsExactNearest(t *testing.T) {
	// Given an index of three points on a line
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Build(context.Background(), [][]float32{{0, 0}, {3, 0}, {1, 0}}))

	// When querying near the origin
	got, err := idx.Query(context.Background(), []float32{0.4, 0}, 3)

	// Then neighbours come back by ascending squared distance
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{0, 2, 1}, []int{got[0].Ordinal, got[1].Ordinal, got[2].Ordinal})
	assert.InDelta(t, 0.16, got[0].Distance, 1e-6)
	assert.InDelta(t, 0.36, got[1].Distance, 1e-6)
	assert.InDelta(t, 6.76, got[2].Distance, 1e-5)
}

func TestFlatIndex_DistancesWithinFloatTolerance(t *testing.T) {
	// Given random 32-dimensional vectors
	vecs := randomVectors(50, 32, 21)
	idx := NewFlatIndex(32)
	require.NoError(t, idx.Build(context.Background(), vecs))
	q := randomVectors(1, 32, 22)[0]

	// When querying every vector
	got, err := idx.Query(context.Background(), q, len(vecs))
	require.NoError(t, err)

	// Then each distance agrees with a float64 scan up to float32 rounding
	for _, n := range got {
		var want float64
		for i, x := range vecs[n.Ordinal] {
			d := float64(x) - float64(q[i])
			want += d * d
		}
		assert.InEpsilon(t, want, float64(n.Distance), 1e-5, "ordinal %d", n.Ordinal)
	}
}

func TestFlatIndex_TiesBrokenByOrdinal(t *testing.T) {
	idx := NewFlatIndex(1)
	require.NoError(t, idx.Build(context.Background(), [][]float32{{1}, {-1}, {1}}))

	got, err := idx.Query(context.Background(), []float32{0}, 3)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{got[0].Ordinal, got[1].Ordinal, got[2].Ordinal})
}

func TestFlatIndex_KLargerThanCount(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Build(context.Background(), [][]float32{{0, 0}, {1, 1}}))

	got, err := idx.Query(context.Background(), []float32{0, 0}, 40)

	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFlatIndex_DimensionMismatch(t *testing.T) {
	idx := NewFlatIndex(3)
	require.NoError(t, idx.Build(context.Background(), randomVectors(4, 3, 1)))

	_, err := idx.Query(context.Background(), []float32{1, 2}, 1)

	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Got)
}

func TestFlatIndex_BuildRejectsRaggedVectors(t *testing.T) {
	idx := NewFlatIndex(0)

	err := idx.Build(context.Background(), [][]float32{{1, 2}, {1}})

	assert.Error(t, err)
}

func TestFlatIndex_SaveLoadRoundTrip(t *testing.T) {
	// Given a built index saved to disk
	vecs := randomVectors(50, 8, 2)
	idx := NewFlatIndex(8)
	require.NoError(t, idx.Build(context.Background(), vecs))
	path := filepath.Join(t.TempDir(), "index.flat")
	require.NoError(t, idx.Save(path))

	// When loading into a fresh index
	loaded := NewFlatIndex(0)
	require.NoError(t, loaded.Load(path))

	// Then queries are identical
	assert.Equal(t, 50, loaded.Count())
	assert.Equal(t, 8, loaded.Dimensions())
	for _, q := range randomVectors(5, 8, 3) {
		want, err := idx.Query(context.Background(), q, 10)
		require.NoError(t, err)
		got, err := loaded.Query(context.Background(), q, 10)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestFlatIndex_ClosedRejects(t *testing.T) {
	idx := NewFlatIndex(2)
	require.NoError(t, idx.Close())

	_, err := idx.Query(context.Background(), []float32{0, 0}, 1)

	assert.ErrorIs(t, err, ErrClosed)
}

// ============================================================================
// NPY codec
// ============================================================================

func TestMatrix_RoundTripIsBitExact(t *testing.T) {
	m := Matrix{Rows: [][]float32{
		{1.5, -0, float32(math.Inf(1))},
		{math.SmallestNonzeroFloat32, math.MaxFloat32, 0.1},
	}, Cols: 3}

	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, m))
	got, err := ReadMatrix(&buf)

	require.NoError(t, err)
	require.Equal(t, 3, got.Cols)
	require.Len(t, got.Rows, 2)
	for i := range m.Rows {
		for j := range m.Rows[i] {
			assert.Equal(t, math.Float32bits(m.Rows[i][j]), math.Float32bits(got.Rows[i][j]))
		}
	}
}

func TestWriteMatrix_HeaderIsAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMatrix(&buf, Matrix{Rows: randomVectors(3, 5, 4), Cols: 5}))

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, []byte("\x93NUMPY\x01\x00")))
	headerLen := int(binary.LittleEndian.Uint16(data[8:10]))
	preamble := 10 + headerLen

	assert.Zero(t, preamble%64)
	assert.Equal(t, byte('\n'), data[preamble-1])
	assert.Contains(t, string(data[10:preamble]), "'descr': '<f4'")
	assert.Contains(t, string(data[10:preamble]), "'shape': (3, 5)")
	assert.Len(t, data, preamble+3*5*4)
}

func TestReadMatrix_AcceptsFloat64(t *testing.T) {
	header := "{'descr': '<f8', 'fortran_order': False, 'shape': (1, 2), }"
	var buf bytes.Buffer
	buf.WriteString("\x93NUMPY\x01\x00")
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(header)+1))
	buf.WriteString(header + "\n")
	_ = binary.Write(&buf, binary.LittleEndian, []float64{0.25, -2})

	got, err := ReadMatrix(&buf)

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.25, -2}}, got.Rows)
}

func TestReadMatrix_RejectsBadInput(t *testing.T) {
	withHeader := func(h string) []byte {
		var buf bytes.Buffer
		buf.WriteString("\x93NUMPY\x01\x00")
		_ = binary.Write(&buf, binary.LittleEndian, uint16(len(h)))
		buf.WriteString(h)
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"bad magic", []byte("NOTNUMPY..........")},
		{"truncated", []byte("\x93NU")},
		{"wrong dtype", withHeader("{'descr': '<i4', 'fortran_order': False, 'shape': (1, 1), }\n")},
		{"fortran order", withHeader("{'descr': '<f4', 'fortran_order': True, 'shape': (1, 1), }\n")},
		{"one dimensional", withHeader("{'descr': '<f4', 'fortran_order': False, 'shape': (4,), }\n")},
		{"short body", withHeader("{'descr': '<f4', 'fortran_order': False, 'shape': (2, 2), }\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadMatrix(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrBadNPY)
		})
	}
}

func TestSaveMatrix_LeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.npy")

	require.NoError(t, SaveMatrix(path, Matrix{Rows: randomVectors(2, 2, 5), Cols: 2}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "embeddings.npy", entries[0].Name())
}

// ============================================================================
// HNSWIndex
// ============================================================================

func hnswRecall(t *testing.T, h *HNSWIndex, flat *FlatIndex, queries [][]float32, k int) float64 {
	t.Helper()
	ctx := context.Background()
	hits, total := 0, 0
	for _, q := range queries {
		want, err := flat.Query(ctx, q, k)
		require.NoError(t, err)
		got, err := h.Query(ctx, q, k)
		require.NoError(t, err)
		require.LessOrEqual(t, len(got), k)

		truth := map[int]bool{}
		for _, n := range want {
			truth[n.Ordinal] = true
		}
		for _, n := range got {
			if truth[n.Ordinal] {
				hits++
			}
		}
		total += len(want)
	}
	return float64(hits) / float64(total)
}

func TestHNSWIndex_RecallAgainstFlat(t *testing.T) {
	// Given the same uniform random vectors in a flat and an HNSW index
	ctx := context.Background()
	vecs := randomVectors(300, 16, 6)
	flat := NewFlatIndex(16)
	require.NoError(t, flat.Build(ctx, vecs))
	h := NewHNSWIndex(IndexConfig{Dimensions: 16, M: 16, EfSearch: 128})
	require.NoError(t, h.Build(ctx, vecs))

	// When both answer the same top-10 queries
	recall := hnswRecall(t, h, flat, randomVectors(20, 16, 7), 10)

	// Then the re-ranked candidate pool recovers most true neighbours
	assert.Greater(t, recall, 0.8)
}

func TestHNSWIndex_SmallGraphIsEffectivelyExact(t *testing.T) {
	// Given fewer vectors than the search breadth
	ctx := context.Background()
	vecs := randomVectors(100, 8, 11)
	flat := NewFlatIndex(8)
	require.NoError(t, flat.Build(ctx, vecs))
	h := NewHNSWIndex(IndexConfig{Dimensions: 8, M: 16, EfSearch: 128})
	require.NoError(t, h.Build(ctx, vecs))

	// When queried for the top 5
	recall := hnswRecall(t, h, flat, randomVectors(10, 8, 12), 5)

	// Then the graph walk covers nearly every node
	assert.GreaterOrEqual(t, recall, 0.95)
}

func TestHNSWIndex_FetchCountCoversEfSearch(t *testing.T) {
	h := NewHNSWIndex(IndexConfig{Dimensions: 4, EfSearch: 50})

	assert.Equal(t, 50, h.fetchCount(10))
	assert.Equal(t, 80, h.fetchCount(80))
	assert.Equal(t, defaultEfSearch, NewHNSWIndex(IndexConfig{Dimensions: 4}).fetchCount(1))
}

func TestHNSWIndex_TrimsToK(t *testing.T) {
	ctx := context.Background()
	h := NewHNSWIndex(IndexConfig{Dimensions: 4})
	require.NoError(t, h.Build(ctx, randomVectors(60, 4, 13)))

	got, err := h.Query(ctx, make([]float32, 4), 3)

	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.True(t, slices.IsSortedFunc(got, func(a, b Neighbor) int { return cmp.Compare(a.Distance, b.Distance) }))
}

func TestHNSWIndex_ReportsExactDistances(t *testing.T) {
	ctx := context.Background()
	h := NewHNSWIndex(IndexConfig{Dimensions: 2})
	require.NoError(t, h.Build(ctx, [][]float32{{0, 0}, {3, 4}}))

	got, err := h.Query(ctx, []float32{0, 0}, 2)

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Ordinal)
	assert.InDelta(t, 25, got[1].Distance, 1e-5)
}

func TestHNSWIndex_EmptyGraph(t *testing.T) {
	h := NewHNSWIndex(IndexConfig{Dimensions: 4})

	got, err := h.Query(context.Background(), make([]float32, 4), 5)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHNSWIndex_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	vecs := randomVectors(100, 8, 8)
	h := NewHNSWIndex(IndexConfig{Dimensions: 8})
	require.NoError(t, h.Build(ctx, vecs))
	path := filepath.Join(t.TempDir(), "index.hnsw")
	require.NoError(t, h.Save(path))

	loaded := NewHNSWIndex(IndexConfig{})
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 100, loaded.Count())
	assert.Equal(t, 8, loaded.Dimensions())
	q := vecs[42]
	got, err := loaded.Query(ctx, q, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42, got[0].Ordinal)
	assert.Zero(t, got[0].Distance)
}

func TestHNSWIndex_LoadMissingMetadata(t *testing.T) {
	h := NewHNSWIndex(IndexConfig{})

	err := h.Load(filepath.Join(t.TempDir(), "index.hnsw"))

	assert.Error(t, err)
}

// ============================================================================
// Backends and Qdrant helpers
// ============================================================================

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want Backend
		err  bool
	}{
		{"", BackendFlat, false},
		{"flat", BackendFlat, false},
		{" HNSW ", BackendHNSW, false},
		{"qdrant", BackendQdrant, false},
		{"faiss", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "index.hnsw", BackendHNSW.FileName())
}

func TestNewIndex_LocalBackends(t *testing.T) {
	flat, err := NewIndex(DefaultIndexConfig(4))
	require.NoError(t, err)
	assert.IsType(t, &FlatIndex{}, flat)

	cfg := DefaultIndexConfig(4)
	cfg.Backend = BackendHNSW
	h, err := NewIndex(cfg)
	require.NoError(t, err)
	assert.IsType(t, &HNSWIndex{}, h)

	cfg.Backend = "annoy"
	_, err = NewIndex(cfg)
	assert.Error(t, err)
}

func TestParseQdrantAddr(t *testing.T) {
	tests := []struct {
		in   string
		host string
		port int
		err  bool
	}{
		{"localhost:6334", "localhost", 6334, false},
		{"qdrant.internal", "qdrant.internal", 6334, false},
		{"10.0.0.5:7000", "10.0.0.5", 7000, false},
		{"host:notaport", "", 0, true},
		{":6334", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := parseQdrantAddr(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestQdrantManifest_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.qdrant")
	want := qdrantManifest{Addr: "localhost:6334", Prefix: "movies", Collection: "movies_0a1b2c3d4e5f", Dimensions: 384, Count: 4803}

	require.NoError(t, writeQdrantManifest(path, want))
	got, err := readQdrantManifest(path)

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestQdrantManifest_MissingCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.qdrant")
	require.NoError(t, os.WriteFile(path, []byte("addr: localhost:6334\n"), 0o644))

	_, err := readQdrantManifest(path)

	assert.Error(t, err)
}

func TestBuildCollectionName_FreshPerBuild(t *testing.T) {
	// Given two builds under the same prefix
	first := buildCollectionName("cinesphere")
	second := buildCollectionName("cinesphere")

	// Then each writes its own collection, never the one being served
	assert.Regexp(t, `^cinesphere_[0-9a-f]{12}$`, first)
	assert.Regexp(t, `^cinesphere_[0-9a-f]{12}$`, second)
	assert.NotEqual(t, first, second)
}

func TestQdrantIndex_OfflineLifecycle(t *testing.T) {
	// Given an index that never reached a server
	q, err := NewQdrantIndex(QdrantConfig{Addr: "127.0.0.1:1", Collection: "movies"})
	require.NoError(t, err)

	// Then there is no collection to save or drop
	assert.Empty(t, q.Collection())
	assert.Error(t, q.Save(filepath.Join(t.TempDir(), "index.qdrant")))

	q.Retire()
	assert.NoError(t, q.Close())
	assert.NoError(t, q.Close())
}
