package cmd

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cinesphere/internal/output"
	"github.com/Aman-CERP/cinesphere/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
		top        int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query statistics",
		Long: `Show the query telemetry recorded by 'cinesphere search': query counts
by mode, latency distribution, top query terms and queries that returned
nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			st, err := telemetry.OpenSQLiteMetricsStore(cfg.TelemetryDBPath())
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			report, err := telemetry.BuildReport(st, time.Now(), days, top)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			writeReport(output.New(cmd.OutOrStdout()), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of terms and zero-result queries to show")

	return cmd
}

var latencyOrder = []telemetry.LatencyBucket{
	telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100, telemetry.BucketP500, telemetry.BucketP1000,
}

var latencyLabels = map[telemetry.LatencyBucket]string{
	telemetry.BucketP10:   "<10ms",
	telemetry.BucketP50:   "10-50ms",
	telemetry.BucketP100:  "50-100ms",
	telemetry.BucketP500:  "100-500ms",
	telemetry.BucketP1000: ">=500ms",
}

func writeReport(out *output.Writer, r *telemetry.Report) {
	out.Println(out.Bold(fmt.Sprintf("Queries %s to %s: %d", r.From, r.To, r.TotalQueries)))
	if r.TotalQueries == 0 {
		out.Status("", "No queries recorded yet.")
		return
	}

	modes := make([]string, 0, len(r.ModeCounts))
	for m := range r.ModeCounts {
		modes = append(modes, string(m))
	}
	slices.Sort(modes)
	rows := make([][]string, 0, len(modes))
	for _, m := range modes {
		rows = append(rows, []string{m, fmt.Sprint(r.ModeCounts[telemetry.SearchMode(m)])})
	}
	out.Newline()
	out.Table([]string{"Mode", "Queries"}, rows)

	rows = rows[:0]
	for _, b := range latencyOrder {
		rows = append(rows, []string{latencyLabels[b], fmt.Sprint(r.LatencyDistribution[b])})
	}
	out.Newline()
	out.Table([]string{"Latency", "Queries"}, rows)

	if len(r.TopTerms) > 0 {
		rows = rows[:0]
		for _, t := range r.TopTerms {
			rows = append(rows, []string{t.Term, fmt.Sprint(t.Count)})
		}
		out.Newline()
		out.Table([]string{"Term", "Count"}, rows)
	}

	if len(r.ZeroResultQueries) > 0 {
		out.Newline()
		out.Println(out.Bold("Zero-result queries"))
		for _, q := range r.ZeroResultQueries {
			out.Status("", q)
		}
	}
}
