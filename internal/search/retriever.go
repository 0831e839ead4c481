package search

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/store"
)

// OverFetchFactor multiplies the requested count when boosting, so quality
// signals can lift items from beyond the pure-similarity top K.
const OverFetchFactor = 4

// FetchCount is how many candidates to ask the index for.
func FetchCount(topK int, boost bool) int {
	if boost {
		return topK * OverFetchFactor
	}
	return topK
}

// CandidateRetriever validates query vectors and turns index hits into
// candidates.
type CandidateRetriever struct {
	index store.VectorIndex
}

// NewCandidateRetriever wraps idx.
func NewCandidateRetriever(idx store.VectorIndex) *CandidateRetriever {
	return &CandidateRetriever{index: idx}
}

// Retrieve returns up to k candidates by ascending distance.
func (r *CandidateRetriever) Retrieve(ctx context.Context, vector []float32, k int) ([]Candidate, error) {
	if dims := r.index.Dimensions(); len(vector) != dims {
		return nil, dimensionMismatch(dims, len(vector))
	}

	neighbors, err := r.index.Query(ctx, vector, k)
	if err != nil {
		var dm store.ErrDimensionMismatch
		if errors.As(err, &dm) {
			return nil, dimensionMismatch(dm.Expected, dm.Got)
		}
		return nil, cerrors.New(cerrors.ErrCodeSearchFailed, "nearest-neighbour query failed", err).MarkRetryable()
	}

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	out := make([]Candidate, len(neighbors))
	for i, n := range neighbors {
		out[i] = Candidate{Ordinal: n.Ordinal, Distance: n.Distance}
	}
	return out, nil
}

func dimensionMismatch(expected, got int) *cerrors.CineError {
	return cerrors.New(cerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("query vector has %d dimensions, index has %d", got, expected), nil).
		WithDetail("expected", strconv.Itoa(expected)).
		WithDetail("got", strconv.Itoa(got)).
		WithSuggestion("Rebuild the index with the current embedding model: cinesphere index --force")
}
