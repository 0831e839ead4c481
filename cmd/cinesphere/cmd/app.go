package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Aman-CERP/cinesphere/internal/config"
	"github.com/Aman-CERP/cinesphere/internal/embed"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/index"
	"github.com/Aman-CERP/cinesphere/internal/logging"
	"github.com/Aman-CERP/cinesphere/internal/search"
	"github.com/Aman-CERP/cinesphere/internal/store"
	"github.com/Aman-CERP/cinesphere/internal/telemetry"
)

const envLogLevel = config.EnvPrefix + "LOG_LEVEL"

// loadConfig loads the configuration for --dir (or the working directory)
// and applies its log level unless --debug is set.
func loadConfig() (*config.Config, error) {
	dir := projectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		dir = wd
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if !debugMode {
		if _, err := logging.SetupCLI(false, cfg.Server.LogLevel); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (embed.Embedder, error) {
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeConfigInvalid, err.Error(), err)
	}
	e, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:      provider,
		Model:         cfg.Embeddings.Model,
		Dimensions:    cfg.Embeddings.Dimensions,
		BatchSize:     cfg.Embeddings.BatchSize,
		Timeout:       cfg.Embeddings.Timeout,
		OllamaHost:    cfg.Embeddings.OllamaHost,
		OpenAIBaseURL: cfg.Embeddings.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.Embeddings.OpenAIAPIKey,
		CacheSize:     cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeEmbeddingFailed, "create embedder", err).
			WithDetail("provider", provider.String()).
			MarkRetryable()
	}
	return e, nil
}

// indexConfig maps the config onto store parameters. backend overrides
// the configured backend when non-empty.
func indexConfig(cfg *config.Config, backend string, dims int) (store.IndexConfig, error) {
	if backend == "" {
		backend = cfg.Index.Backend
	}
	b, err := store.ParseBackend(backend)
	if err != nil {
		return store.IndexConfig{}, cerrors.New(cerrors.ErrCodeConfigInvalid, err.Error(), err)
	}
	ic := store.DefaultIndexConfig(dims)
	ic.Backend = b
	if cfg.Index.M > 0 {
		ic.M = cfg.Index.M
	}
	if cfg.Index.EfSearch > 0 {
		ic.EfSearch = cfg.Index.EfSearch
	}
	if cfg.Index.QdrantAddr != "" {
		ic.Qdrant.Addr = cfg.Index.QdrantAddr
	}
	if cfg.Index.QdrantCollection != "" {
		ic.Qdrant.Collection = cfg.Index.QdrantCollection
	}
	ic.Qdrant.APIKey = cfg.Index.QdrantAPIKey
	ic.Qdrant.Dimensions = dims
	return ic, nil
}

func loaderConfig(cfg *config.Config, e embed.Embedder) (index.LoaderConfig, error) {
	ic, err := indexConfig(cfg, "", e.Dimensions())
	if err != nil {
		return index.LoaderConfig{}, err
	}
	return index.LoaderConfig{
		Dir:         cfg.Paths.ArtifactDir,
		CatalogPath: cfg.Paths.Catalog,
		Index:       ic,
		Model:       e.ModelName(),
		Dimensions:  e.Dimensions(),
		Logger:      slog.Default(),
	}, nil
}

// openEngine creates the engine for cfg and loads the current artifacts.
// Transient load failures are retried.
func openEngine(ctx context.Context, cfg *config.Config, metrics *telemetry.QueryMetrics) (*search.Engine, error) {
	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	lc, err := loaderConfig(cfg, e)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	synonyms := make([]search.Synonym, len(cfg.Search.Synonyms))
	for i, s := range cfg.Search.Synonyms {
		synonyms[i] = search.Synonym{Term: s.Term, Expansion: s.Expansion}
	}
	genres := cfg.Search.PenalizedGenres
	if len(genres) == 0 {
		genres = search.PenalizedGenres
	}

	engine, err := search.NewEngine(e,
		search.WithQueryExpander(search.NewQueryExpander(search.WithSynonyms(synonyms...))),
		search.WithScorer(search.NewHybridScorer(search.DefaultScoringWeights(), genres...)),
		search.WithLoader(index.NewLoader(lc)),
		search.WithMetrics(metrics),
		search.WithLogger(slog.Default()),
	)
	if err != nil {
		_ = e.Close()
		return nil, err
	}

	if err := cerrors.Retry(ctx, cerrors.DefaultRetryConfig(), engine.Reload); err != nil {
		_ = engine.Close()
		return nil, err
	}
	return engine, nil
}

// openMetrics opens the telemetry store when enabled. Failures are logged
// and telemetry is skipped; the returned cleanup is never nil.
func openMetrics(cfg *config.Config) (*telemetry.QueryMetrics, func()) {
	if !cfg.Telemetry.Enabled {
		return nil, func() {}
	}
	st, err := telemetry.OpenSQLiteMetricsStore(cfg.TelemetryDBPath())
	if err != nil {
		slog.Warn("telemetry disabled", slog.String("error", err.Error()))
		return nil, func() {}
	}
	m := telemetry.NewQueryMetrics(st)
	return m, func() {
		if err := m.Close(); err != nil {
			slog.Warn("telemetry flush failed", slog.String("error", err.Error()))
		}
		_ = st.Close()
	}
}
