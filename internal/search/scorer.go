package search

import (
	"math"
	"strings"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
)

// PenalizedGenres are genres whose items are demoted when boosting. Matching
// is a case-sensitive substring test against the comma-rendered genre list.
var PenalizedGenres = []string{"Documentary"}

// ScoringWeights are the hybrid-score constants. Evaluation baselines depend
// on the exact default values.
type ScoringWeights struct {
	Similarity float64 // weight of 1/(1+distance)
	Rating     float64 // weight of the rating signal
	Popularity float64 // weight of the popularity signal

	RatingScale       float64 // rating/10 is multiplied by this...
	RatingCap         float64 // ...and capped here
	PopularityDivisor float64 // popularity at which the signal saturates

	GenrePenalty float64 // multiplier for penalized genres
}

// DefaultScoringWeights returns 0.65/0.25/0.10 with a 1.2 rating scale
// capped at 0.95, popularity saturating at 50 and a 0.85 genre penalty.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Similarity:        0.65,
		Rating:            0.25,
		Popularity:        0.10,
		RatingScale:       1.2,
		RatingCap:         0.95,
		PopularityDivisor: 50.0,
		GenrePenalty:      0.85,
	}
}

// HybridScorer blends semantic similarity with catalog quality signals.
type HybridScorer struct {
	weights   ScoringWeights
	penalized []string
}

// NewHybridScorer creates a scorer. With no genres given it penalizes
// PenalizedGenres.
func NewHybridScorer(w ScoringWeights, penalizedGenres ...string) *HybridScorer {
	if len(penalizedGenres) == 0 {
		penalizedGenres = PenalizedGenres
	}
	return &HybridScorer{
		weights:   w,
		penalized: append([]string(nil), penalizedGenres...),
	}
}

// Similarity maps a distance to (0, 1], strictly decreasing.
func Similarity(distance float32) float64 {
	return 1 / (1 + float64(distance))
}

// Score returns the similarity and final score of a candidate.
func (s *HybridScorer) Score(c Candidate, item catalog.Item, boost bool) (similarity, final float64) {
	similarity = Similarity(c.Distance)
	if !boost {
		return similarity, similarity
	}

	w := s.weights
	rating := math.Min(item.Rating/10*w.RatingScale, w.RatingCap)
	popularity := math.Min(item.Popularity/w.PopularityDivisor, 1)

	final = (similarity*w.Similarity + rating*w.Rating + popularity*w.Popularity) * s.penalty(item)
	return similarity, final
}

func (s *HybridScorer) penalty(item catalog.Item) float64 {
	genres := item.GenreString()
	for _, g := range s.penalized {
		if strings.Contains(genres, g) {
			return s.weights.GenrePenalty
		}
	}
	return 1
}
