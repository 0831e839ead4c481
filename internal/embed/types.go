// Package embed turns text into fixed-dimension vectors. The retrieval
// core only sees the Embedder interface; the concrete providers here are
// the hashing StaticEmbedder, Ollama, and any OpenAI-compatible API.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// MaxBatchSize caps texts per provider request.
	MaxBatchSize = 256

	// DefaultBatchSize is the default number of texts per request.
	DefaultBatchSize = 64

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the default dimension of StaticEmbedder.
	StaticDimensions = 256
)

// ErrClosed is returned by embedders used after Close.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text. Implementations must be
// deterministic for a fixed model and safe for concurrent use.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier recorded in index manifests.
	ModelName() string

	// Available checks if the embedder can serve requests.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

func float64sToFloat32s(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
