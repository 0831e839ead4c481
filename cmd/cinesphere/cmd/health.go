package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cinesphere/internal/config"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/index"
	"github.com/Aman-CERP/cinesphere/internal/ui"
)

func newHealthCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show what the engine would load",
		Long: `Load the artifacts the way 'cinesphere search' does and report the item
count, embedding model, index backend and artifact sizes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			info := collectHealth(cmd.Context(), cfg)

			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor())
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func collectHealth(ctx context.Context, cfg *config.Config) ui.StatusInfo {
	dir := cfg.Paths.ArtifactDir
	info := ui.StatusInfo{ArtifactDir: dir, EmbedderStatus: "ready"}

	if m, err := index.ReadManifest(dir); err == nil {
		info.EmbeddingsSize = fileSize(filepath.Join(dir, index.EmbeddingsFileName))
		info.IndexSize = fileSize(m.IndexFile(dir))
	}

	engine, err := openEngine(ctx, cfg, nil)
	if err != nil {
		if cerrors.GetCode(err) == cerrors.ErrCodeEmbeddingFailed {
			info.EmbedderStatus = "offline"
		}
		info.Error = err.Error()
		return info
	}
	defer func() { _ = engine.Close() }()

	h := engine.Health()
	info.Loaded = h.Loaded
	info.Items = h.Items
	info.Dimensions = h.Dimensions
	info.Model = h.Model
	info.Backend = h.Backend
	info.Version = h.Version
	info.BuiltAt = h.BuiltAt
	return info
}

func fileSize(path string) int64 {
	st, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return st.Size()
}
