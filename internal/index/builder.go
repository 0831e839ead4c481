// Package index builds the on-disk search artifacts (embedding matrix,
// nearest-neighbour index blob and manifest) and loads them back into a
// search snapshot.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	"github.com/Aman-CERP/cinesphere/internal/embed"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/store"
	"github.com/Aman-CERP/cinesphere/internal/ui"
)

// BuilderConfig configures an artifact build.
type BuilderConfig struct {
	// Dir is the artifact directory.
	Dir string

	// Index selects the backend and its parameters. Dimensions is taken
	// from the embedder.
	Index store.IndexConfig

	// BatchSize is the number of documents per EmbedBatch call.
	BatchSize int

	// Concurrency bounds the number of batches in flight.
	Concurrency int

	// Cleaned records that the catalog was loaded with catalog.WithCleaning.
	Cleaned bool

	// Force rebuilds even when the manifest says the artifacts are current.
	Force bool
}

// BuildResult is the outcome of Build.
type BuildResult struct {
	Manifest *Manifest

	// UpToDate is set when nothing was rebuilt.
	UpToDate bool

	Duration time.Duration
	Stages   ui.StageTimings
}

// Builder embeds a catalog and persists the artifacts a Loader reads.
type Builder struct {
	embedder embed.Embedder
	cfg      BuilderConfig
	renderer ui.Renderer
	logger   *slog.Logger

	progressMu sync.Mutex
	embedded   int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithRenderer reports progress to r.
func WithRenderer(r ui.Renderer) BuilderOption {
	return func(b *Builder) {
		if r != nil {
			b.renderer = r
		}
	}
}

// WithBuildLogger sets the logger.
func WithBuildLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBuilder creates a Builder.
func NewBuilder(embedder embed.Embedder, cfg BuilderConfig, opts ...BuilderOption) (*Builder, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("artifact directory is required")
	}
	if cfg.Index.Backend == "" {
		cfg.Index.Backend = store.BackendFlat
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embed.DefaultBatchSize
	}
	cfg.BatchSize = min(cfg.BatchSize, embed.MaxBatchSize)
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = min(runtime.NumCPU(), 4)
	}

	b := &Builder{
		embedder: embedder,
		cfg:      cfg,
		renderer: ui.NopRenderer{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Build embeds every catalog item and writes embeddings.npy, the index blob
// and manifest.yaml into the artifact directory. The manifest is written
// last. Only one build per directory runs at a time; a second one fails
// with ErrCodeArtifactsLocked.
func (b *Builder) Build(ctx context.Context, cat *catalog.Catalog) (*BuildResult, error) {
	start := time.Now()
	if cat.Len() == 0 {
		return nil, cerrors.New(cerrors.ErrCodeCatalogInvalid, "catalog has no items to index", nil).
			WithSuggestion("check the catalog file, or drop --clean if it removed every row")
	}

	lock := NewFileLock(b.cfg.Dir)
	if err := lock.MustTryLock(); err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			b.logger.Warn("failed to release build lock", slog.String("error", err.Error()))
		}
	}()

	if !b.cfg.Force {
		if m, ok := b.upToDate(cat); ok {
			b.logger.Info("index_up_to_date",
				slog.String("version", m.Version),
				slog.String("dir", b.cfg.Dir))
			return &BuildResult{Manifest: m, UpToDate: true, Duration: time.Since(start)}, nil
		}
	}

	var timing ui.StageTimings

	// Stage 1: compose document text
	stageStart := time.Now()
	b.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageLoading,
		Message: fmt.Sprintf("Composing documents for %d items...", cat.Len()),
	})
	texts := cat.DocumentTexts()
	timing.Load = time.Since(stageStart)

	// Stage 2: embed
	stageStart = time.Now()
	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, err
	}
	dims := b.embedder.Dimensions()
	if dims <= 0 {
		dims = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, cerrors.New(cerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("embedding for item %d has %d dimensions, expected %d", i, len(v), dims), nil).
				WithDetail("expected", fmt.Sprint(dims)).
				WithDetail("got", fmt.Sprint(len(v)))
		}
	}
	timing.Embed = time.Since(stageStart)

	// Stage 3: build the index
	stageStart = time.Now()
	b.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageIndexing,
		Message: fmt.Sprintf("Building %s index...", b.cfg.Index.Backend),
	})
	idxCfg := b.cfg.Index
	idxCfg.Dimensions = dims
	idx, err := store.NewIndex(idxCfg)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeIndexFailed, "create index", err)
	}
	defer func() { _ = idx.Close() }()

	if err := idx.Build(ctx, vectors); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeIndexFailed, "build index", err).MarkRetryable()
	}
	timing.Index = time.Since(stageStart)

	// Stage 4: persist
	stageStart = time.Now()
	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageSaving, Message: "Writing artifacts to " + b.cfg.Dir})

	if err := store.SaveMatrix(filepath.Join(b.cfg.Dir, EmbeddingsFileName), store.Matrix{Rows: vectors, Cols: dims}); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeFilePermission, "write embedding matrix", err)
	}
	m := &Manifest{
		Format:        ManifestFormat,
		Version:       uuid.NewString(),
		BuiltAt:       time.Now().UTC().Truncate(time.Second),
		Model:         b.embedder.ModelName(),
		Dimensions:    dims,
		Backend:       b.cfg.Index.Backend,
		Count:         len(vectors),
		CatalogSHA256: cat.Checksum(),
		Cleaned:       b.cfg.Cleaned,
	}
	if err := idx.Save(m.IndexFile(b.cfg.Dir)); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeFilePermission, "write index", err)
	}
	if err := WriteManifest(b.cfg.Dir, m); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeFilePermission, "write manifest", err)
	}
	timing.Save = time.Since(stageStart)

	duration := time.Since(start)
	b.renderer.Complete(ui.CompletionStats{
		Items:      m.Count,
		Skipped:    cat.Skipped(),
		Dimensions: dims,
		Model:      m.Model,
		Backend:    string(m.Backend),
		Version:    m.Version,
		Duration:   duration,
		Stages:     timing,
	})

	itemsPerSec := 0.0
	if timing.Embed.Seconds() > 0 {
		itemsPerSec = float64(m.Count) / timing.Embed.Seconds()
	}
	b.logger.Info("index_complete",
		slog.Int("items", m.Count),
		slog.Int("skipped", cat.Skipped()),
		slog.String("version", m.Version),
		slog.String("backend", string(m.Backend)),
		slog.String("model", m.Model),
		slog.Int("dimensions", dims),
		slog.Int64("duration_total_ms", duration.Milliseconds()),
		slog.Int64("duration_embed_ms", timing.Embed.Milliseconds()),
		slog.Int64("duration_index_ms", timing.Index.Milliseconds()),
		slog.Int64("duration_save_ms", timing.Save.Milliseconds()),
		slog.Float64("items_per_sec", itemsPerSec),
		slog.String("dir", b.cfg.Dir))

	return &BuildResult{Manifest: m, Duration: duration, Stages: timing}, nil
}

// embedAll embeds texts in batches, several batches at a time. Vector i
// belongs to texts[i] regardless of completion order.
func (b *Builder) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	b.embedded = 0
	b.reportEmbedded(0, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(texts))
		g.Go(func() error {
			batch, err := b.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return cerrors.New(cerrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("embed items %d-%d", start, end-1), err).MarkRetryable()
			}
			if len(batch) != end-start {
				return cerrors.New(cerrors.ErrCodeEmbeddingFailed,
					fmt.Sprintf("embedder returned %d vectors for %d texts", len(batch), end-start), nil)
			}
			copy(vectors[start:end], batch)
			b.reportEmbedded(end-start, len(texts))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (b *Builder) reportEmbedded(n, total int) {
	b.progressMu.Lock()
	defer b.progressMu.Unlock()

	b.embedded += n
	b.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageEmbedding,
		Current: b.embedded,
		Total:   total,
		Message: b.embedder.ModelName(),
	})
}

// upToDate reports whether the manifest in the artifact directory was built
// from this exact catalog with the current embedder and backend.
func (b *Builder) upToDate(cat *catalog.Catalog) (*Manifest, bool) {
	m, err := ReadManifest(b.cfg.Dir)
	if err != nil {
		return nil, false
	}
	if cat.Checksum() == "" || m.CatalogSHA256 != cat.Checksum() {
		return nil, false
	}
	if m.Cleaned != b.cfg.Cleaned || m.Count != cat.Len() || m.Model != b.embedder.ModelName() || m.Backend != b.cfg.Index.Backend {
		return nil, false
	}
	if dims := b.embedder.Dimensions(); dims > 0 && m.Dimensions != dims {
		return nil, false
	}
	for _, p := range []string{filepath.Join(b.cfg.Dir, EmbeddingsFileName), m.IndexFile(b.cfg.Dir)} {
		if _, err := os.Stat(p); err != nil {
			return nil, false
		}
	}
	return m, true
}
