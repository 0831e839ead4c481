package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cinesphere/internal/logging"
	"github.com/Aman-CERP/cinesphere/internal/ui"
)

func newLogsCmd() *cobra.Command {
	var (
		lines   int
		follow  bool
		level   string
		pattern string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the debug log",
		Long: `Show the log written by runs with --debug.

Examples:
  cinesphere logs -n 50
  cinesphere logs -f --level warn
  cinesphere logs --grep reload`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}

			cfg := logging.ViewerConfig{Level: level, NoColor: ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout())}
			if pattern != "" {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return fmt.Errorf("invalid --grep pattern: %w", err)
				}
				cfg.Pattern = re
			}
			v := logging.NewViewer(cfg, cmd.OutOrStdout())

			entries, err := v.Tail(path, lines)
			if err != nil {
				return err
			}
			v.Print(entries)
			if !follow {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ch := make(chan logging.LogEntry, 64)
			errc := make(chan error, 1)
			go func() {
				errc <- v.Follow(ctx, path, ch)
				close(ch)
			}()
			for e := range ch {
				v.Print([]logging.LogEntry{e})
			}
			return <-errc
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&pattern, "grep", "", "Only lines matching this regular expression")
	cmd.Flags().StringVar(&file, "file", "", "Log file (default "+logging.DefaultLogPath()+")")

	return cmd
}
