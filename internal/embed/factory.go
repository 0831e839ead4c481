package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, deterministic).
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API or a compatible service.
	ProviderOpenAI ProviderType = "openai"
)

// String returns the provider name.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama), string(ProviderOpenAI)}
}

// ParseProvider converts a name to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static", "":
		return ProviderStatic, nil
	case "ollama":
		return ProviderOllama, nil
	case "openai":
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (valid: %s)", s, strings.Join(ValidProviders(), ", "))
	}
}

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration

	OllamaHost    string
	OpenAIBaseURL string
	OpenAIAPIKey  string

	// CacheSize enables query caching when positive.
	CacheSize int
}

// NewEmbedder creates the embedder described by opts. There is no silent
// fallback between providers: an index built with one model cannot be
// queried with another.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch opts.Provider {
	case ProviderStatic, "":
		e = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       opts.OllamaHost,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,
			Timeout:    opts.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Or use the offline embedder: --provider=static", err)
		}
	case ProviderOpenAI:
		e, err = NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     opts.OpenAIAPIKey,
			BaseURL:    opts.OpenAIBaseURL,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			BatchSize:  opts.BatchSize,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	slog.Debug("embedder_created",
		slog.String("provider", opts.Provider.String()),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))

	if opts.CacheSize > 0 {
		e = NewCachedEmbedder(e, opts.CacheSize)
	}
	return e, nil
}
