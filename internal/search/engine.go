package search

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/cinesphere/internal/embed"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/telemetry"
)

// Sentinels for errors.Is. Matching is by error code, so any error the
// engine returns with the same code matches.
var (
	ErrEmptyQuery        = cerrors.New(cerrors.ErrCodeQueryEmpty, "query is empty", nil)
	ErrIndexNotLoaded    = cerrors.New(cerrors.ErrCodeIndexNotLoaded, "no index loaded", nil)
	ErrDimensionMismatch = cerrors.New(cerrors.ErrCodeDimensionMismatch, "embedding dimension mismatch", nil)
	ErrEmbeddingFailed   = cerrors.New(cerrors.ErrCodeEmbeddingFailed, "embedding failed", nil)
	ErrSearchFailed      = cerrors.New(cerrors.ErrCodeSearchFailed, "nearest-neighbour search failed", nil)
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// IsRetrievalFailure reports whether err came from the embedder or the
// index backend rather than from the query or engine state.
func IsRetrievalFailure(err error) bool {
	return errors.Is(err, ErrEmbeddingFailed) || errors.Is(err, ErrSearchFailed)
}

// Loader produces a fresh snapshot, typically from on-disk artifacts.
type Loader func(ctx context.Context) (*Snapshot, error)

// Engine runs searches against the currently installed snapshot. Searches
// take no locks; Load, Reload and Close are serialized.
type Engine struct {
	embedder embed.Embedder
	expander *QueryExpander
	scorer   *HybridScorer
	metrics  *telemetry.QueryMetrics // optional
	loader   Loader                  // optional
	logger   *slog.Logger

	snap    atomic.Pointer[Snapshot]
	writeMu sync.Mutex
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithQueryExpander replaces the default expander.
func WithQueryExpander(exp *QueryExpander) EngineOption {
	return func(e *Engine) {
		if exp != nil {
			e.expander = exp
		}
	}
}

// WithScorer replaces the default scorer.
func WithScorer(s *HybridScorer) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.scorer = s
		}
	}
}

// WithMetrics sets an optional query metrics collector. Query text, result
// count and latency are recorded after each successful search.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLoader sets the function Reload uses to build a new snapshot.
func WithLoader(l Loader) EngineOption {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithLogger sets the logger for search and reload events.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine with no snapshot loaded.
func NewEngine(embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	e := &Engine{
		embedder: embedder,
		expander: NewQueryExpander(),
		scorer:   NewHybridScorer(DefaultScoringWeights()),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Search returns the best catalog matches for query.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]ScoredResult, error) {
	start := time.Now()

	if strings.TrimSpace(query) == "" {
		return nil, cerrors.New(cerrors.ErrCodeQueryEmpty, "query is empty", nil).
			WithSuggestion("Describe the film you are looking for, e.g. \"heist in Paris\"")
	}

	snap := e.acquire()
	if snap == nil {
		return nil, cerrors.New(cerrors.ErrCodeIndexNotLoaded, "search called before an index was loaded", nil).
			WithSuggestion("Build the artifacts first: cinesphere index")
	}
	defer snap.release()

	opts = opts.withDefaults()
	expanded := e.expander.Expand(query)

	vector, err := e.embedder.Embed(ctx, expanded)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeEmbeddingFailed, "failed to embed query", err).MarkRetryable()
	}

	candidates, err := snap.retriever.Retrieve(ctx, vector, FetchCount(opts.TopK, opts.BoostRating))
	if err != nil {
		return nil, err
	}

	scored, err := e.score(snap, candidates, opts.BoostRating)
	if err != nil {
		return nil, err
	}
	results := Select(scored, opts.TopK, opts.MinScore, opts.Adaptive)

	latency := time.Since(start)
	e.recordMetrics(query, vector, opts, len(results), latency)
	e.logger.Info("search_complete",
		slog.String("query", query),
		slog.String("expanded", expanded),
		slog.Int("candidates", len(candidates)),
		slog.Int("results", len(results)),
		slog.Int("top_k", opts.TopK),
		slog.Bool("boost", opts.BoostRating),
		slog.Bool("adaptive", opts.Adaptive),
		slog.Duration("latency", latency))

	return results, nil
}

// score rates every candidate and sorts by final score, highest first.
// Ties keep candidate order, which is nearest first.
func (e *Engine) score(snap *Snapshot, candidates []Candidate, boost bool) ([]ScoredResult, error) {
	n := snap.Catalog.Len()
	scored := make([]ScoredResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Ordinal < 0 || c.Ordinal >= n {
			return nil, cerrors.New(cerrors.ErrCodeCorruptIndex,
				fmt.Sprintf("index returned ordinal %d for a catalog of %d items", c.Ordinal, n), nil)
		}
		item := snap.Catalog.At(c.Ordinal)
		sim, final := e.scorer.Score(c, item, boost)
		scored = append(scored, ScoredResult{
			Item:            item,
			Ordinal:         c.Ordinal,
			SimilarityScore: sim,
			FinalScore:      final,
		})
	}

	slices.SortStableFunc(scored, func(a, b ScoredResult) int {
		return cmp.Compare(b.FinalScore, a.FinalScore)
	})
	return scored, nil
}

func (e *Engine) acquire() *Snapshot {
	for {
		s := e.snap.Load()
		if s == nil {
			return nil
		}
		if s.acquire() {
			return s
		}
	}
}

// recordMetrics records query telemetry if a collector is configured.
func (e *Engine) recordMetrics(query string, vector []float32, opts SearchOptions, resultCount int, latency time.Duration) {
	if e.metrics == nil {
		return
	}
	mode := telemetry.ModeSemantic
	if opts.BoostRating {
		mode = telemetry.ModeHybrid
	}
	e.metrics.Record(telemetry.QueryEvent{
		Query:       query,
		Mode:        mode,
		ResultCount: resultCount,
		Latency:     latency,
		Timestamp:   time.Now(),
	})
	e.metrics.RecordQueryEmbedding(vector)
}

// Load installs snap, replacing any current snapshot.
func (e *Engine) Load(snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: snapshot is required", ErrNilDependency)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.install(snap)
	return nil
}

// install swaps in snap and retires the previous snapshot. Callers hold writeMu.
func (e *Engine) install(snap *Snapshot) {
	if old := e.snap.Swap(snap); old != nil && old != snap {
		old.supersede(snap)
		old.retire()
	}
	e.logger.Info("snapshot_installed",
		slog.String("version", snap.Info.Version),
		slog.Int("items", snap.Catalog.Len()),
		slog.String("model", snap.Info.Model),
		slog.String("backend", snap.Info.Backend))
}

// Reload builds a snapshot with the configured loader and installs it. On
// failure the current snapshot keeps serving.
func (e *Engine) Reload(ctx context.Context) error {
	if e.loader == nil {
		return fmt.Errorf("%w: no loader configured", ErrNilDependency)
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	snap, err := e.loader(ctx)
	if err != nil {
		e.logger.Warn("reload failed, keeping current snapshot", slog.String("error", err.Error()))
		return err
	}
	e.install(snap)
	return nil
}

// Health reports what is loaded.
func (e *Engine) Health() HealthStatus {
	s := e.snap.Load()
	if s == nil {
		return HealthStatus{}
	}
	return HealthStatus{
		Loaded:     true,
		Items:      s.Catalog.Len(),
		Dimensions: s.Index.Dimensions(),
		Version:    s.Info.Version,
		Model:      s.Info.Model,
		Backend:    s.Info.Backend,
		BuiltAt:    s.Info.BuiltAt,
	}
}

// Close unloads the snapshot and closes the embedder.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if old := e.snap.Swap(nil); old != nil {
		old.retire()
	}
	return e.embedder.Close()
}
