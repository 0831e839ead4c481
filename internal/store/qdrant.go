package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultQdrantAddr is the gRPC address of a local Qdrant.
	DefaultQdrantAddr = "localhost:6334"
	// DefaultQdrantCollection is the collection the catalog vectors go to.
	DefaultQdrantCollection = "cinesphere"

	qdrantUpsertBatch = 256
	qdrantLoadTimeout = 10 * time.Second
	qdrantDropTimeout = 10 * time.Second
)

// QdrantConfig configures the Qdrant backend. Collection is a name prefix:
// every build writes its own collection "<Collection>_<build id>".
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
	APIKey     string `yaml:"-"`
	Dimensions int    `yaml:"-"`
}

// DefaultQdrantConfig returns a config for a local Qdrant.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{Addr: DefaultQdrantAddr, Collection: DefaultQdrantCollection}
}

// qdrantManifest is what Save writes locally: the collection lives in Qdrant.
type qdrantManifest struct {
	Addr       string `yaml:"addr"`
	Prefix     string `yaml:"prefix,omitempty"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Count      int    `yaml:"count"`
}

// QdrantIndex stores vectors in a Qdrant collection with Euclid distance.
// Point ids are ordinals.
//
// Build never touches an existing collection, so a snapshot still serving
// the previous build keeps a consistent view while the next one is written.
// The previous collection is dropped when its index is retired and closed.
type QdrantIndex struct {
	mu         sync.RWMutex
	client     *qdrant.Client
	cfg        QdrantConfig
	collection string
	count      int
	retired    bool
	closed     bool
}

var (
	_ VectorIndex = (*QdrantIndex)(nil)
	_ Retirer     = (*QdrantIndex)(nil)
)

// NewQdrantIndex connects a client to cfg.Addr. The connection is lazy, so
// an unreachable server surfaces on the first Build, Query or Load.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultQdrantAddr
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultQdrantCollection
	}

	host, port, err := parseQdrantAddr(cfg.Addr)
	if err != nil {
		return nil, err
	}

	// The version check would dial the server here.
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 cfg.APIKey,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &QdrantIndex{client: client, cfg: cfg}, nil
}

// parseQdrantAddr splits "host:port"; a bare host gets the default gRPC port.
func parseQdrantAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		host, portStr = addr, "6334"
	}
	if host == "" {
		return "", 0, fmt.Errorf("invalid qdrant address %q: missing host", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in qdrant address %q", addr)
	}
	return host, port, nil
}

// buildCollectionName returns a fresh collection name under prefix.
func buildCollectionName(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + "_" + id[:12]
}

// Build creates a new collection for this build and upserts every vector.
// On failure the partial collection is dropped and the index keeps pointing
// at whatever it held before.
func (q *QdrantIndex) Build(ctx context.Context, vectors [][]float32) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.cfg.Dimensions == 0 && len(vectors) > 0 {
		q.cfg.Dimensions = len(vectors[0])
	}
	if err := checkDims(q.cfg.Dimensions, vectors...); err != nil {
		return err
	}

	name := buildCollectionName(q.cfg.Collection)
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.cfg.Dimensions),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("create qdrant collection: %w", err)
	}

	for start := 0; start < len(vectors); start += qdrantUpsertBatch {
		end := min(start+qdrantUpsertBatch, len(vectors))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewIDNum(uint64(i)),
				Vectors: qdrant.NewVectors(vectors[i]...),
			})
		}
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			q.drop(name)
			return fmt.Errorf("upsert qdrant points %d-%d: %w", start, end-1, err)
		}
	}

	q.collection = name
	q.count = len(vectors)
	return nil
}

// drop deletes a collection, logging failures. It runs on cleanup paths
// whose caller context may already be done.
func (q *QdrantIndex) drop(name string) {
	if err := q.deleteCollection(name); err != nil {
		slog.Warn("failed to drop qdrant collection",
			slog.String("collection", name),
			slog.String("error", err.Error()))
	}
}

func (q *QdrantIndex) deleteCollection(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), qdrantDropTimeout)
	defer cancel()
	return q.client.DeleteCollection(ctx, name)
}

// Query asks Qdrant for the k nearest points. Qdrant's Euclid score is the
// plain distance, so it is squared to match the other backends.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, k int) ([]Neighbor, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrClosed
	}
	if err := checkDims(q.cfg.Dimensions, vector); err != nil {
		return nil, err
	}
	if k <= 0 || q.count == 0 {
		return []Neighbor{}, nil
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	out := make([]Neighbor, 0, len(points))
	for _, p := range points {
		out = append(out, Neighbor{Ordinal: int(p.GetId().GetNum()), Distance: p.GetScore() * p.GetScore()})
	}
	sortNeighbors(out)
	return out, nil
}

// Save records where the collection lives.
func (q *QdrantIndex) Save(path string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}
	if q.collection == "" {
		return errors.New("save qdrant index: nothing has been built")
	}
	m := qdrantManifest{
		Addr:       q.cfg.Addr,
		Prefix:     q.cfg.Collection,
		Collection: q.collection,
		Dimensions: q.cfg.Dimensions,
		Count:      q.count,
	}
	return writeQdrantManifest(path, m)
}

// Load attaches to the collection named in the manifest at path and checks
// that it still holds the recorded number of points.
func (q *QdrantIndex) Load(path string) error {
	m, err := readQdrantManifest(path)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.cfg.Dimensions != 0 && m.Dimensions != q.cfg.Dimensions {
		return fmt.Errorf("load qdrant index: %w", ErrDimensionMismatch{Expected: q.cfg.Dimensions, Got: m.Dimensions})
	}

	ctx, cancel := context.WithTimeout(context.Background(), qdrantLoadTimeout)
	defer cancel()

	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: m.Collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("count qdrant points: %w", err)
	}
	if int(n) != m.Count {
		return fmt.Errorf("qdrant collection %q has %d points, manifest says %d", m.Collection, n, m.Count)
	}

	q.collection = m.Collection
	q.cfg.Dimensions = m.Dimensions
	q.count = m.Count
	return nil
}

func writeQdrantManifest(path string, m qdrantManifest) error {
	return WriteFileAtomic(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	})
}

func readQdrantManifest(path string) (qdrantManifest, error) {
	var m qdrantManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read qdrant manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse qdrant manifest: %w", err)
	}
	if m.Collection == "" {
		return m, fmt.Errorf("qdrant manifest %s: missing collection", path)
	}
	return m, nil
}

// Count returns the number of upserted points.
func (q *QdrantIndex) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.count
}

// Dimensions returns the vector dimension.
func (q *QdrantIndex) Dimensions() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.cfg.Dimensions
}

// Collection returns the collection the index reads, empty before Build or
// Load.
func (q *QdrantIndex) Collection() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.collection
}

// Retire marks the index superseded by a newer build, so Close also drops
// its collection.
func (q *QdrantIndex) Retire() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retired = true
}

// Close closes the gRPC connection, first dropping the collection if the
// index was retired.
func (q *QdrantIndex) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true

	var dropErr error
	if q.retired && q.collection != "" {
		if err := q.deleteCollection(q.collection); err != nil {
			dropErr = fmt.Errorf("drop qdrant collection %q: %w", q.collection, err)
		}
	}
	return errors.Join(dropErr, q.client.Close())
}
