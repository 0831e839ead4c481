package telemetry

import (
	"fmt"
	"time"
)

// Report summarizes persisted metrics over a window of days.
type Report struct {
	From                string                  `json:"from"`
	To                  string                  `json:"to"`
	TotalQueries        int64                   `json:"total_queries"`
	ModeCounts          map[SearchMode]int64    `json:"mode_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
}

// BuildReport reads the last days days (including today) from store.
func BuildReport(store QueryMetricsStore, now time.Time, days, topN int) (*Report, error) {
	if days <= 0 {
		days = 7
	}
	if topN <= 0 {
		topN = 10
	}
	to := now.Format(time.DateOnly)
	from := now.AddDate(0, 0, -(days - 1)).Format(time.DateOnly)

	modes, err := store.GetModeCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("read mode counts: %w", err)
	}
	latency, err := store.GetLatencyCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("read latency counts: %w", err)
	}
	terms, err := store.GetTopTerms(topN)
	if err != nil {
		return nil, fmt.Errorf("read top terms: %w", err)
	}
	zero, err := store.GetZeroResultQueries(topN)
	if err != nil {
		return nil, fmt.Errorf("read zero-result queries: %w", err)
	}

	r := &Report{
		From:                from,
		To:                  to,
		ModeCounts:          modes,
		LatencyDistribution: latency,
		TopTerms:            terms,
		ZeroResultQueries:   zero,
	}
	for _, n := range modes {
		r.TotalQueries += n
	}
	return r, nil
}
