package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
	"github.com/Aman-CERP/cinesphere/internal/config"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/index"
	"github.com/Aman-CERP/cinesphere/internal/output"
	"github.com/Aman-CERP/cinesphere/internal/ui"
)

type indexOptions struct {
	clean   bool
	force   bool
	plain   bool
	backend string
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed the catalog and build the search artifacts",
		Long: `Embed every catalog item and write embeddings.npy, the nearest-neighbour
index and manifest.yaml to the artifact directory.

The build is skipped when the manifest already matches the catalog,
embedding model and backend; use --force to rebuild anyway.

Backends:
  flat     exact search (default)
  hnsw     approximate in-process graph
  qdrant   remote Qdrant collection`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runIndex(ctx, cmd, cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.clean, "clean", false, "Drop rows with short plots and duplicate ids before embedding")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Rebuild even if the artifacts are current")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain progress output instead of the TUI")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Index backend: flat, hnsw or qdrant (default from config)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts indexOptions) error {
	out := output.New(cmd.OutOrStdout())

	var loadOpts []catalog.LoadOption
	loadOpts = append(loadOpts, catalog.WithLogger(slog.Default()))
	if opts.clean {
		loadOpts = append(loadOpts, catalog.WithCleaning())
	}
	cat, err := catalog.Load(cfg.Paths.Catalog, loadOpts...)
	if err != nil {
		return err
	}
	if cat.Skipped() > 0 {
		out.Warningf("%d catalog rows dropped by cleaning", cat.Skipped())
	}

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	ic, err := indexConfig(cfg, opts.backend, embedder.Dimensions())
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: opts.plain,
		NoColor:    ui.DetectNoColor(),
		Title:      "Indexing " + cfg.Paths.Catalog,
	})

	builder, err := index.NewBuilder(embedder, index.BuilderConfig{
		Dir:         cfg.Paths.ArtifactDir,
		Index:       ic,
		BatchSize:   cfg.Embeddings.BatchSize,
		Concurrency: cfg.Index.BuildConcurrency,
		Cleaned:     opts.clean,
		Force:       opts.force,
	}, index.WithRenderer(renderer), index.WithBuildLogger(slog.Default()))
	if err != nil {
		return err
	}

	if err := renderer.Start(ctx); err != nil {
		return err
	}
	result, err := cerrors.RetryWithResult(ctx, cerrors.DefaultRetryConfig(), func(ctx context.Context) (*index.BuildResult, error) {
		return builder.Build(ctx, cat)
	})
	_ = renderer.Stop()
	if err != nil {
		return err
	}

	if result.UpToDate {
		out.Successf("Artifacts are current (version %s, %d items); use --force to rebuild", result.Manifest.Version, result.Manifest.Count)
		return nil
	}
	out.Successf("Indexed %d items with %s into %s", result.Manifest.Count, result.Manifest.Model, cfg.Paths.ArtifactDir)
	return nil
}
