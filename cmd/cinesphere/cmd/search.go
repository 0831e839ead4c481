package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/cinesphere/internal/config"
	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/output"
	"github.com/Aman-CERP/cinesphere/internal/search"
)

type searchFlags struct {
	topK       int
	minScore   float64
	noBoost    bool
	noAdaptive bool
	jsonOutput bool
	plots      bool
}

func newSearchCmd() *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find films matching a description",
		Long: `Find films matching a free-text description.

Examples:
  cinesphere search "romance on a cruise ship"
  cinesphere search "sci-fi heist" --top-k 10 --no-adaptive
  cinesphere search "haunted house" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd, cfg, strings.Join(args, " "), flags)
		},
	}

	cmd.Flags().IntVarP(&flags.topK, "top-k", "k", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&flags.minScore, "min-score", -1, "Adaptive quality floor (default from config)")
	cmd.Flags().BoolVar(&flags.noBoost, "no-boost", false, "Rank by similarity only")
	cmd.Flags().BoolVar(&flags.noAdaptive, "no-adaptive", false, "Always return top-k results")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&flags.plots, "plots", false, "Show plots under each result")

	return cmd
}

// searchOptions merges flags over the configured defaults.
func searchOptions(cfg *config.Config, flags searchFlags) search.SearchOptions {
	opts := search.SearchOptions{
		TopK:        cfg.Search.TopK,
		MinScore:    cfg.Search.MinScore,
		BoostRating: cfg.Search.BoostRating && !flags.noBoost,
		Adaptive:    cfg.Search.Adaptive && !flags.noAdaptive,
	}
	if flags.topK > 0 {
		opts.TopK = flags.topK
	}
	if flags.minScore >= 0 {
		opts.MinScore = flags.minScore
	}
	return opts
}

func runSearch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, query string, flags searchFlags) error {
	metrics, closeMetrics := openMetrics(cfg)
	defer closeMetrics()

	engine, err := openEngine(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	opts := searchOptions(cfg, flags)
	results, err := cerrors.RetryWithResult(ctx, cerrors.DefaultRetryConfig(), func(ctx context.Context) ([]search.ScoredResult, error) {
		return engine.Search(ctx, query, opts)
	})
	if err != nil {
		slog.Warn("search_failed", cerrors.LogAttrs(err)...)
		return err
	}

	if flags.jsonOutput {
		return writeResultsJSON(cmd.OutOrStdout(), query, results)
	}
	writeResultsText(output.New(cmd.OutOrStdout()), query, results, flags.plots)
	return nil
}

// jsonResult is the presentation form of a result. Non-finite floats are
// written as null.
type jsonResult struct {
	Rank            int      `json:"rank"`
	ID              int64    `json:"id"`
	Title           string   `json:"title"`
	Year            string   `json:"year,omitempty"`
	Genres          []string `json:"genres"`
	Rating          *float64 `json:"rating"`
	Popularity      *float64 `json:"popularity"`
	PosterPath      string   `json:"poster_path,omitempty"`
	Plot            string   `json:"plot"`
	SimilarityScore *float64 `json:"similarity_score"`
	FinalScore      *float64 `json:"final_score"`
}

type jsonResponse struct {
	Query   string       `json:"query"`
	Count   int          `json:"count"`
	Results []jsonResult `json:"results"`
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func writeResultsJSON(w io.Writer, query string, results []search.ScoredResult) error {
	resp := jsonResponse{Query: query, Count: len(results), Results: make([]jsonResult, len(results))}
	for i, r := range results {
		genres := r.Genres
		if genres == nil {
			genres = []string{}
		}
		resp.Results[i] = jsonResult{
			Rank:            i + 1,
			ID:              r.ID,
			Title:           r.Title,
			Year:            r.Year,
			Genres:          genres,
			Rating:          finite(r.Rating),
			Popularity:      finite(r.Popularity),
			PosterPath:      r.PosterPath,
			Plot:            r.Plot,
			SimilarityScore: finite(r.SimilarityScore),
			FinalScore:      finite(r.FinalScore),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func writeResultsText(out *output.Writer, query string, results []search.ScoredResult, plots bool) {
	if len(results) == 0 {
		out.Warningf("No films found for %q", query)
		return
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		title := r.Title
		if r.Year != "" {
			title = fmt.Sprintf("%s (%s)", r.Title, r.Year)
		}
		rows[i] = []string{
			fmt.Sprint(i + 1),
			title,
			r.GenreString(),
			fmt.Sprintf("%.1f", r.Rating),
			fmt.Sprintf("%.3f", r.FinalScore),
			fmt.Sprintf("%.3f", r.SimilarityScore),
		}
	}
	out.Table([]string{"#", "Title", "Genres", "Rating", "Score", "Similarity"}, rows)

	if plots {
		for i, r := range results {
			out.Newline()
			out.Println(out.Bold(fmt.Sprintf("%d. %s", i+1, r.Title)))
			out.Println(out.Dim(r.Plot))
		}
	}
}
