package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/cinesphere/internal/errors"
	"github.com/Aman-CERP/cinesphere/internal/store"
)

func TestFetchCount(t *testing.T) {
	assert.Equal(t, 20, FetchCount(5, true))
	assert.Equal(t, 5, FetchCount(5, false))
}

func TestCandidateRetriever_Retrieve(t *testing.T) {
	// Given a flat index of points along the x axis
	idx := store.NewFlatIndex(2)
	require.NoError(t, idx.Build(context.Background(), [][]float32{{0, 0}, {1, 0}, {2, 0}, {3, 0}}))
	r := NewCandidateRetriever(idx)

	// When querying near the far end
	got, err := r.Retrieve(context.Background(), []float32{3, 0}, 2)

	// Then candidates come back by ascending squared distance
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Ordinal: 3, Distance: 0}, {Ordinal: 2, Distance: 1}}, got)
}

func TestCandidateRetriever_DimensionMismatch(t *testing.T) {
	idx := store.NewFlatIndex(2)
	require.NoError(t, idx.Build(context.Background(), [][]float32{{0, 0}}))

	_, err := NewCandidateRetriever(idx).Retrieve(context.Background(), []float32{1, 2, 3}, 1)

	assert.Equal(t, cerrors.ErrCodeDimensionMismatch, cerrors.GetCode(err))
}

func TestCandidateRetriever_IndexFailure(t *testing.T) {
	idx := store.NewFlatIndex(2)
	require.NoError(t, idx.Build(context.Background(), [][]float32{{0, 0}}))

	tests := []struct {
		name      string
		cause     error
		retryable bool
	}{
		{"timeout is retryable", context.DeadlineExceeded, true},
		{"other failure is not", assert.AnError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCandidateRetriever(failingIndex{VectorIndex: idx, err: tt.cause}).
				Retrieve(context.Background(), []float32{0, 0}, 1)

			assert.Equal(t, cerrors.ErrCodeSearchFailed, cerrors.GetCode(err))
			assert.Equal(t, tt.retryable, cerrors.IsRetryable(err))
			assert.ErrorIs(t, err, tt.cause)
		})
	}
}
