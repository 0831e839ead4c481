// Package search is the retrieval and reranking engine. A query is
// expanded with domain synonyms, embedded, matched against the
// nearest-neighbour index, rescored with catalog quality signals and cut
// to an adaptive number of results.
package search

import (
	"time"

	"github.com/Aman-CERP/cinesphere/internal/catalog"
)

// Candidate is one nearest-neighbour hit before scoring.
type Candidate struct {
	// Ordinal is the row of the catalog and the vector in the index.
	Ordinal int

	// Distance is the squared Euclidean distance to the query vector.
	Distance float32
}

// ScoredResult is a catalog item with its scores.
type ScoredResult struct {
	catalog.Item

	// Ordinal is the item's position in the catalog.
	Ordinal int `json:"-"`

	// SimilarityScore is 1/(1+distance), in (0, 1].
	SimilarityScore float64 `json:"similarity_score"`

	// FinalScore orders results. Equal to SimilarityScore when boosting is
	// off; otherwise it may exceed 1 or fall below the similarity.
	FinalScore float64 `json:"final_score"`
}

// Search defaults.
const (
	DefaultTopK     = 5
	DefaultMinScore = 0.45
)

// SearchOptions configures a search query.
type SearchOptions struct {
	// TopK is the maximum number of results (default: 5).
	TopK int

	// BoostRating blends rating, popularity and genre penalties into the
	// final score and over-fetches candidates to make room for them.
	BoostRating bool

	// MinScore is the adaptive-selection quality floor (default: 0.45).
	MinScore float64

	// Adaptive enables early cut-off of low-confidence tails.
	Adaptive bool
}

// DefaultSearchOptions returns TopK 5, boosting on, MinScore 0.45, adaptive on.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		TopK:        DefaultTopK,
		BoostRating: true,
		MinScore:    DefaultMinScore,
		Adaptive:    true,
	}
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	return o
}

// HealthStatus describes the loaded snapshot.
type HealthStatus struct {
	Loaded     bool      `json:"loaded"`
	Items      int       `json:"items"`
	Dimensions int       `json:"dimensions,omitempty"`
	Version    string    `json:"version,omitempty"`
	Model      string    `json:"model,omitempty"`
	Backend    string    `json:"backend,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitzero"`
}
