package embed

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultOpenAIModel is the OpenAI embedding model used when none is set.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultOpenAIDimensions matches all-MiniLM-L6-v2 so OpenAI and local
	// artifacts have the same shape.
	DefaultOpenAIDimensions = 384

	openAIMaxBatch = 2048
)

// OpenAIConfig configures OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey string

	// BaseURL selects an OpenAI-compatible provider; empty means api.openai.com.
	BaseURL string

	Model      string
	Dimensions int
	BatchSize  int

	// HTTPClient is used for requests; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API
// or any compatible endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
	batch  int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder. It makes no network calls.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedder: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultOpenAIDimensions
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > openAIMaxBatch {
		cfg.BatchSize = openAIMaxBatch
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.HTTPClient),
		// Retries are a caller decision.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIEmbedder{
		client: &client,
		model:  cfg.Model,
		dims:   cfg.Dimensions,
		batch:  cfg.BatchSize,
	}, nil
}

// Embed generates the embedding for one text.
func (o *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts, splitting into requests of at most BatchSize.
func (o *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !o.Available(ctx) {
		return nil, ErrClosed
	}

	result := make([][]float32, len(texts))
	for i := 0; i < len(texts); i += o.batch {
		end := min(i+o.batch, len(texts))
		vecs, err := o.call(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", i, end, err)
		}
		copy(result[i:], vecs)
	}
	return result, nil
}

func (o *OpenAIEmbedder) call(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:          o.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     openai.Int(int64(o.dims)),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	})
	if err != nil {
		return nil, err
	}

	vecs := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, fmt.Errorf("unexpected embedding index %d for batch of %d", item.Index, len(texts))
		}
		vecs[item.Index] = float64sToFloat32s(item.Embedding)
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return vecs, nil
}

func (o *OpenAIEmbedder) Dimensions() int   { return o.dims }
func (o *OpenAIEmbedder) ModelName() string { return o.model }

// Available reports whether the embedder is open. It does not call the API.
func (o *OpenAIEmbedder) Available(_ context.Context) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return !o.closed
}

// Close marks the embedder closed.
func (o *OpenAIEmbedder) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}
