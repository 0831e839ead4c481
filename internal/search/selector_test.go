package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func results(scores ...float64) []ScoredResult {
	out := make([]ScoredResult, len(scores))
	for i, s := range scores {
		out[i] = ScoredResult{Ordinal: i, SimilarityScore: s, FinalScore: s}
	}
	return out
}

func ordinals(rs []ScoredResult) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Ordinal
	}
	return out
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float64
		topK     int
		minScore float64
		adaptive bool
		want     []int
	}{
		{
			name:   "non-adaptive takes topK",
			scores: []float64{0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1, 0.05},
			topK:   3,
			want:   []int{0, 1, 2},
		},
		{
			name:   "non-adaptive with fewer than topK",
			scores: []float64{0.9, 0.1},
			topK:   5,
			want:   []int{0, 1},
		},
		{
			name:     "adaptive fills topK when scores stay high",
			scores:   []float64{0.95, 0.9, 0.85, 0.8, 0.75, 0.7},
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0, 1, 2, 3, 4},
		},
		{
			name:     "adaptive exits early below 0.55 once three are kept",
			scores:   []float64{0.9, 0.8, 0.5, 0.5, 0.5},
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0, 1, 2},
		},
		{
			name:     "adaptive keeps going below 0.55 until three are kept",
			scores:   []float64{0.9, 0.52, 0.5, 0.49},
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0, 1, 2},
		},
		{
			name:     "scores below min are skipped then the floor applies",
			scores:   []float64{0.9, 0.44, 0.43, 0.42},
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0, 1, 2},
		},
		{
			name:     "all below min returns the top three",
			scores:   []float64{0.4, 0.3, 0.2, 0.1},
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0, 1, 2},
		},
		{
			name:     "all below min with fewer than three falls back to topK",
			scores:   []float64{0.3, 0.2},
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0, 1},
		},
		{
			name:     "floor wins over a smaller topK",
			scores:   []float64{0.9, 0.8, 0.7, 0.6},
			topK:     1,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0, 1, 2},
		},
		{
			name:     "single strong candidate",
			scores:   []float64{0.9},
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{0},
		},
		{
			name:     "empty input",
			scores:   nil,
			topK:     5,
			minScore: 0.45,
			adaptive: true,
			want:     []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(results(tt.scores...), tt.topK, tt.minScore, tt.adaptive)
			assert.Equal(t, tt.want, ordinals(got))
		})
	}
}

func TestSelect_NeverExceedsInputOrReorders(t *testing.T) {
	in := results(0.99, 0.7, 0.6, 0.56, 0.54, 0.5, 0.47, 0.2)

	for topK := 1; topK <= 10; topK++ {
		for _, adaptive := range []bool{false, true} {
			got := Select(in, topK, DefaultMinScore, adaptive)
			require.LessOrEqual(t, len(got), len(in))
			for i, r := range got {
				assert.Equal(t, in[i].Ordinal, r.Ordinal, "selection must be a prefix of the input")
			}
		}
	}
}

func TestSelect_ReturnsCopy(t *testing.T) {
	in := results(0.3, 0.2, 0.1)

	got := Select(in, 5, 0.45, true)
	got[0].FinalScore = 42

	assert.Equal(t, 0.3, in[0].FinalScore)
}
