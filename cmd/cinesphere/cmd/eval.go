package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/output"
	"github.com/Aman-CERP/cinesphere/internal/validation"
)

func newEvalCmd() *cobra.Command {
	var (
		flags      searchFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "eval <suite.yaml>",
		Short: "Check ranking quality against a suite of expected results",
		Long: `Run every query in a relevance suite and report which ones found an
expected title. Exits non-zero when any query fails.

Suite format:
  queries:
    - id: R1
      query: "two strangers fall in love on a ship"
      expected: ["Love Boat"]
      top_k: 3
  negative:
    - id: N1
      query: "   "`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			suite, err := validation.LoadSuite(args[0])
			if err != nil {
				return cerrors.New(cerrors.ErrCodeInvalidInput, "load relevance suite", err)
			}

			engine, err := openEngine(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			flags.minScore = -1
			rep := validation.NewValidator(engine, searchOptions(cfg, flags)).RunAll(cmd.Context(), suite)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(rep); err != nil {
					return err
				}
			} else {
				writeReportText(output.New(cmd.OutOrStdout()), rep)
			}

			if !rep.OK() {
				return cerrors.New(cerrors.ErrCodeSearchFailed,
					fmt.Sprintf("%d of %d relevance queries failed", rep.Total-rep.Passed+rep.NegTotal-rep.NegPassed, rep.Total+rep.NegTotal), nil)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.noBoost, "no-boost", false, "Rank by similarity only")
	cmd.Flags().BoolVar(&flags.noAdaptive, "no-adaptive", false, "Always return top-k results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the report as JSON")

	return cmd
}

func writeReportText(out *output.Writer, rep *validation.Report) {
	for _, r := range append(rep.Queries, rep.Negative...) {
		label := r.Spec.ID
		if r.Spec.Name != "" {
			label += " " + r.Spec.Name
		}
		switch {
		case r.Passed && r.MatchedAt > 0:
			out.Successf("%s: rank %d", label, r.MatchedAt)
		case r.Passed:
			out.Successf("%s", label)
		case r.Error != "":
			out.Errorf("%s: %s", label, r.Error)
		default:
			out.Errorf("%s: expected %s, got %s", label, strings.Join(r.Spec.Expected, " | "), strings.Join(r.TopResults, ", "))
		}
	}
	out.Newline()
	out.Println(out.Bold(fmt.Sprintf("Passed %d/%d queries (%.0f%%), %d/%d negative",
		rep.Passed, rep.Total, rep.PassRate()*100, rep.NegPassed, rep.NegTotal)))
}
