package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/search"
	"github.com/Aman-CERP/cinesphere/internal/store"
)

// LoaderConfig says where the artifacts are and what they must match.
type LoaderConfig struct {
	Dir         string
	CatalogPath string

	// Index supplies backend parameters (HNSW ef_search, Qdrant address).
	// Backend and Dimensions come from the manifest.
	Index store.IndexConfig

	// Model and Dimensions of the query embedder. Artifacts built with a
	// different model or dimension are rejected. Zero values skip the check.
	Model      string
	Dimensions int

	Logger *slog.Logger
}

// LoadSnapshot reads the catalog at cfg.CatalogPath and the artifacts in
// cfg.Dir and pairs them into a snapshot.
func LoadSnapshot(ctx context.Context, cfg LoaderConfig) (*search.Snapshot, error) {
	m, err := ReadManifest(cfg.Dir)
	if err != nil {
		return nil, err
	}

	opts := []catalog.LoadOption{}
	if cfg.Logger != nil {
		opts = append(opts, catalog.WithLogger(cfg.Logger))
	}
	if m.Cleaned {
		opts = append(opts, catalog.WithCleaning())
	}
	cat, err := catalog.Load(cfg.CatalogPath, opts...)
	if err != nil {
		return nil, err
	}
	return openSnapshot(ctx, cfg, m, cat)
}

// Load pairs an already loaded catalog with the artifacts in cfg.Dir.
func Load(ctx context.Context, cfg LoaderConfig, cat *catalog.Catalog) (*search.Snapshot, error) {
	m, err := ReadManifest(cfg.Dir)
	if err != nil {
		return nil, err
	}
	return openSnapshot(ctx, cfg, m, cat)
}

// NewLoader returns a search.Loader that calls LoadSnapshot, for
// Engine.Reload.
func NewLoader(cfg LoaderConfig) search.Loader {
	return func(ctx context.Context) (*search.Snapshot, error) {
		return LoadSnapshot(ctx, cfg)
	}
}

func openSnapshot(ctx context.Context, cfg LoaderConfig, m *Manifest, cat *catalog.Catalog) (*search.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkManifest(cfg, m, cat); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(cfg.Dir, EmbeddingsFileName)); err != nil {
		return nil, corrupt("embedding matrix is missing from "+cfg.Dir, err)
	}

	idxCfg := cfg.Index
	idxCfg.Backend = m.Backend
	idxCfg.Dimensions = m.Dimensions
	idx, err := store.NewIndex(idxCfg)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeIndexFailed, "create index", err)
	}
	if err := idx.Load(m.IndexFile(cfg.Dir)); err != nil {
		_ = idx.Close()
		return nil, corrupt("failed to load "+m.IndexFile(cfg.Dir), err)
	}
	if idx.Count() != m.Count {
		_ = idx.Close()
		return nil, corrupt(fmt.Sprintf("index holds %d vectors but the manifest records %d", idx.Count(), m.Count), nil)
	}

	snap, err := search.NewSnapshot(cat, idx, search.SnapshotInfo{
		Version: m.Version,
		Model:   m.Model,
		Backend: string(m.Backend),
		BuiltAt: m.BuiltAt,
	})
	if err != nil {
		_ = idx.Close()
		return nil, err
	}
	return snap, nil
}

func checkManifest(cfg LoaderConfig, m *Manifest, cat *catalog.Catalog) error {
	if m.Count != cat.Len() {
		return corrupt(fmt.Sprintf("artifacts cover %d items but the catalog has %d", m.Count, cat.Len()), nil).
			WithDetail("manifest_count", fmt.Sprint(m.Count)).
			WithDetail("catalog_items", fmt.Sprint(cat.Len()))
	}
	if m.CatalogSHA256 != "" && cat.Checksum() != "" && m.CatalogSHA256 != cat.Checksum() {
		return corrupt("catalog changed since the artifacts were built", nil)
	}
	if cfg.Model != "" && m.Model != cfg.Model {
		return corrupt(fmt.Sprintf("artifacts were built with model %q, the embedder is %q", m.Model, cfg.Model), nil)
	}
	if cfg.Dimensions > 0 && m.Dimensions != cfg.Dimensions {
		return cerrors.New(cerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("artifacts have %d dimensions, the embedder produces %d", m.Dimensions, cfg.Dimensions), nil).
			WithDetail("expected", fmt.Sprint(m.Dimensions)).
			WithDetail("got", fmt.Sprint(cfg.Dimensions)).
			WithSuggestion("Rebuild the artifacts: cinesphere index --force")
	}
	return nil
}
