package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	"github.com/Aman-CERP/cinesphere/internal/config"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/index"
	"github.com/Aman-CERP/cinesphere/internal/output"
	"github.com/Aman-CERP/cinesphere/internal/search"
	"github.com/Aman-CERP/cinesphere/internal/ui"
	"github.com/Aman-CERP/cinesphere/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var (
		probes    []string
		clean     bool
		noRebuild bool
		polling   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild and hot-reload the index as files change",
		Long: `Keep an engine loaded and react to file changes until interrupted:

  - when the catalog changes, the artifacts are rebuilt;
  - when manifest.yaml changes (after any build), the engine swaps in the
    new snapshot without dropping in-flight searches.

Each --probe query is run after every reload so ranking changes are visible.

Examples:
  cinesphere watch --probe "romance on a cruise ship"
  cinesphere watch --no-rebuild --probe "haunted house" --probe "heist"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noRebuild {
				cfg.Watch.Rebuild = false
			}
			return runWatch(ctx, cmd, cfg, watchOptions{probes: probes, clean: clean, polling: polling})
		},
	}

	cmd.Flags().StringArrayVar(&probes, "probe", nil, "Query to run after each reload (repeatable)")
	cmd.Flags().BoolVar(&clean, "clean", false, "Clean the catalog on rebuild (see index --clean)")
	cmd.Flags().BoolVar(&noRebuild, "no-rebuild", false, "Only reload; never rebuild on catalog changes")
	cmd.Flags().BoolVar(&polling, "poll", false, "Poll files instead of using filesystem notifications")

	return cmd
}

type watchOptions struct {
	probes  []string
	clean   bool
	polling bool
}

// watchSession reacts to watcher batches.
type watchSession struct {
	cfg      *config.Config
	opts     watchOptions
	engine   *search.Engine
	builder  *index.Builder // nil when rebuilds are disabled
	out      *output.Writer
	catalog  string
	manifest string
}

func runWatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts watchOptions) error {
	s, cleanup, err := newWatchSession(ctx, cmd, cfg, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := watcher.New([]string{s.catalog, s.manifest}, watcher.Options{
		Debounce:     cfg.Watch.Debounce,
		ForcePolling: opts.polling,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}

	s.out.Status("", fmt.Sprintf("Watching %s and %s (Ctrl+C to stop)", s.catalog, s.manifest))
	return watcher.Run(ctx, w, s.handle)
}

func newWatchSession(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts watchOptions) (*watchSession, func(), error) {
	s := &watchSession{
		cfg:      cfg,
		opts:     opts,
		out:      output.New(cmd.OutOrStdout()),
		catalog:  absPath(cfg.Paths.Catalog),
		manifest: absPath(filepath.Join(cfg.Paths.ArtifactDir, index.ManifestFileName)),
	}
	closers := []func(){}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Watch.Rebuild {
		e, err := newEmbedder(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = e.Close() })

		ic, err := indexConfig(cfg, "", e.Dimensions())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		s.builder, err = index.NewBuilder(e, index.BuilderConfig{
			Dir:         cfg.Paths.ArtifactDir,
			Index:       ic,
			BatchSize:   cfg.Embeddings.BatchSize,
			Concurrency: cfg.Index.BuildConcurrency,
			Cleaned:     opts.clean,
		}, index.WithRenderer(ui.NewPlainRenderer(ui.Config{Output: cmd.OutOrStdout(), NoColor: true})),
			index.WithBuildLogger(slog.Default()))
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		if err := s.rebuild(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	metrics, closeMetrics := openMetrics(cfg)
	closers = append(closers, closeMetrics)

	engine, err := openEngine(ctx, cfg, metrics)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() { _ = engine.Close() })
	s.engine = engine

	s.reportLoaded()
	return s, cleanup, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// handle rebuilds on catalog changes and reloads on manifest changes. A
// rebuild rewrites the manifest, so the reload follows in a later batch.
func (s *watchSession) handle(ctx context.Context, batch []watcher.Event) error {
	var catalogChanged, manifestChanged bool
	for _, ev := range batch {
		switch ev.Path {
		case s.catalog:
			catalogChanged = ev.Operation != watcher.OpDelete
		case s.manifest:
			manifestChanged = ev.Operation != watcher.OpDelete
		}
	}

	if catalogChanged && s.builder != nil {
		if err := s.rebuild(ctx); err != nil {
			s.out.Error(cerrors.FormatForCLI(err))
			return err
		}
	}
	if manifestChanged {
		return s.reload(ctx)
	}
	return nil
}

func (s *watchSession) rebuild(ctx context.Context) error {
	var opts []catalog.LoadOption
	if s.opts.clean {
		opts = append(opts, catalog.WithCleaning())
	}
	cat, err := catalog.Load(s.cfg.Paths.Catalog, opts...)
	if err != nil {
		return err
	}
	_, err = cerrors.RetryWithResult(ctx, cerrors.DefaultRetryConfig(), func(ctx context.Context) (*index.BuildResult, error) {
		return s.builder.Build(ctx, cat)
	})
	return err
}

func (s *watchSession) reload(ctx context.Context) error {
	if err := s.engine.Reload(ctx); err != nil {
		s.out.Warningf("Reload failed, still serving the previous index: %v", err)
		return err
	}
	s.reportLoaded()
	return nil
}

func (s *watchSession) reportLoaded() {
	h := s.engine.Health()
	s.out.Successf("Serving version %s: %d items, %s, %s", h.Version, h.Items, h.Model, h.Backend)

	for _, q := range s.opts.probes {
		results, err := s.engine.Search(context.Background(), q, searchOptions(s.cfg, searchFlags{minScore: -1}))
		if err != nil {
			s.out.Warningf("probe %q: %v", q, err)
			continue
		}
		s.out.Newline()
		s.out.Println(s.out.Bold("probe: " + q))
		writeResultsText(s.out, q, results, false)
	}
}
