package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
)

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity(0))
	assert.InDelta(t, 0.5, Similarity(1), 1e-12)
	assert.InDelta(t, 0.2, Similarity(4), 1e-12)

	// Strictly decreasing in distance.
	prev := Similarity(0)
	for _, d := range []float32{0.01, 0.5, 2, 10, 1000} {
		s := Similarity(d)
		assert.Less(t, s, prev)
		assert.Greater(t, s, 0.0)
		prev = s
	}
}

func TestHybridScorer_Score(t *testing.T) {
	scorer := NewHybridScorer(DefaultScoringWeights())

	tests := []struct {
		name      string
		distance  float32
		item      catalog.Item
		boost     bool
		wantSim   float64
		wantFinal float64
	}{
		{
			name:      "no boost returns similarity",
			distance:  1,
			item:      catalog.Item{Rating: 9, Popularity: 80},
			wantSim:   0.5,
			wantFinal: 0.5,
		},
		{
			name:      "rating signal is capped",
			distance:  0,
			item:      catalog.Item{Rating: 8, Popularity: 100, Genres: []string{"Drama"}},
			boost:     true,
			wantSim:   1,
			wantFinal: 0.65 + 0.95*0.25 + 0.10,
		},
		{
			name:      "uncapped rating and partial popularity",
			distance:  1,
			item:      catalog.Item{Rating: 5, Popularity: 25},
			boost:     true,
			wantSim:   0.5,
			wantFinal: 0.5*0.65 + 0.6*0.25 + 0.5*0.10,
		},
		{
			name:      "documentary is penalized",
			distance:  0,
			item:      catalog.Item{Rating: 8, Popularity: 100, Genres: []string{"History", "Documentary"}},
			boost:     true,
			wantSim:   1,
			wantFinal: (0.65 + 0.95*0.25 + 0.10) * 0.85,
		},
		{
			name:      "penalty match is case-sensitive",
			distance:  0,
			item:      catalog.Item{Rating: 8, Popularity: 100, Genres: []string{"documentary"}},
			boost:     true,
			wantSim:   1,
			wantFinal: 0.65 + 0.95*0.25 + 0.10,
		},
		{
			name:      "zero signals leave the similarity share",
			distance:  0,
			item:      catalog.Item{},
			boost:     true,
			wantSim:   1,
			wantFinal: 0.65,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim, final := scorer.Score(Candidate{Distance: tt.distance}, tt.item, tt.boost)
			assert.InDelta(t, tt.wantSim, sim, 1e-9)
			assert.InDelta(t, tt.wantFinal, final, 1e-9)
		})
	}
}

func TestHybridScorer_CustomPenalizedGenres(t *testing.T) {
	scorer := NewHybridScorer(DefaultScoringWeights(), "Horror")
	item := catalog.Item{Genres: []string{"Horror"}}

	_, final := scorer.Score(Candidate{}, item, true)
	assert.InDelta(t, 0.65*0.85, final, 1e-9)

	_, doc := scorer.Score(Candidate{}, catalog.Item{Genres: []string{"Documentary"}}, true)
	assert.InDelta(t, 0.65, doc, 1e-9)
}
