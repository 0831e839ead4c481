package cmd

import (
	"encoding/json"
	"log/slog"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/output"
	"github.com/Aman-CERP/cinesphere/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		clean      bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the project can be indexed and searched",
		Long: `Run preflight checks against the configured project: the catalog parses,
the artifact directory is writable with enough free space, the embedding
provider answers, and the artifacts match the catalog and model.

Exits non-zero when a required check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := []preflight.Option{preflight.WithLogger(slog.Default())}
			e, err := newEmbedder(cmd.Context(), cfg)
			if err != nil {
				opts = append(opts, preflight.WithEmbedderError(err))
			} else {
				defer func() { _ = e.Close() }()
				opts = append(opts, preflight.WithEmbedder(e))
			}

			results := preflight.New(opts...).RunAll(cmd.Context(), preflight.Target{
				Catalog:     cfg.Paths.Catalog,
				ArtifactDir: cfg.Paths.ArtifactDir,
				Clean:       clean,
			})

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(map[string]any{
					"status": preflight.Summary(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				writeChecks(output.New(cmd.OutOrStdout()), results)
			}

			if preflight.HasCriticalFailures(results) {
				return cerrors.New(cerrors.ErrCodeConfigInvalid, "preflight checks failed", nil).
					WithSuggestion("fix the failed checks above and run 'cinesphere doctor' again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&clean, "clean", false, "Load the catalog as 'index --clean' does")

	return cmd
}

func writeChecks(out *output.Writer, results []preflight.CheckResult) {
	for _, r := range results {
		switch r.Status {
		case preflight.StatusPass:
			out.Successf("%s: %s", r.Name, r.Message)
		case preflight.StatusWarn:
			out.Warningf("%s: %s", r.Name, r.Message)
		default:
			out.Errorf("%s: %s", r.Name, r.Message)
		}
		if r.Details != "" {
			out.Status("", out.Dim(r.Details))
		}
	}
	out.Newline()
	out.Println(out.Bold("Status: " + preflight.Summary(results)))
}
