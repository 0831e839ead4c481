// Package cmd provides the CLI commands for cinesphere.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/logging"
	"github.com/Aman-CERP/cinesphere/internal/profiling"
	"github.com/Aman-CERP/cinesphere/pkg/version"
)

var (
	debugMode      bool
	projectDir     string
	profileOpts    profiling.Options
	loggingCleanup func()
	profileSession *profiling.Session
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	debugMode, projectDir = false, ""
	profileOpts = profiling.Options{}

	cmd := &cobra.Command{
		Use:   "cinesphere",
		Short: "Semantic movie search over a local catalog",
		Long: `CineSphere finds films matching a free-text description.

The catalog is embedded once with 'cinesphere index'; queries are expanded
with domain synonyms, matched against the nearest-neighbour index and
reranked by rating, popularity and genre.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) { teardown() },
	}
	cmd.SetVersionTemplate("cinesphere version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Write debug logs to "+logging.DefaultLogPath())
	cmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", "", "Project directory holding .cinesphere.yaml (default: current directory)")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&profileOpts.Heap, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write an execution trace to this file")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newEvalCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setup(_ *cobra.Command, _ []string) error {
	if err := startLogging(); err != nil {
		return err
	}
	if profileOpts.Enabled() {
		s, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = s
	}
	return nil
}

// teardown is idempotent; Execute calls it again for commands that failed
// before PersistentPostRun.
func teardown() {
	if profileSession != nil {
		if err := profileSession.Stop(); err != nil {
			slog.Warn("profile_write_failed", slog.String("error", err.Error()))
		}
		profileSession = nil
	}
	stopLogging()
}

func startLogging() error {
	level := os.Getenv(envLogLevel)
	if level == "" {
		level = "warn"
	}
	cleanup, err := logging.SetupCLI(debugMode, level)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

func stopLogging() {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	err := NewRootCmd().Execute()
	teardown()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, cerrors.FormatForCLI(err))
	}
	return err
}
