// Package embeddings converts text into fixed-length vectors for
// semantic retrieval.
package embeddings

import (
	"context"
	"fmt"
	"math"

	"github.com/ragtools/kb/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for document text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedQuery generates an embedding for a query. Models with
	// asymmetric encoders apply a query task prefix here.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. The output
	// is in the same order and of the same length as the input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions for this model.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// UnavailableError reports that the embedding backend could not be
// used at all: the model is not installed, the service is unreachable,
// or required credentials are missing. Transient distinguishes
// failures worth retrying (network) from deployment problems
// (missing API key, unsupported provider).
type UnavailableError struct {
	Provider  Provider
	Transient bool
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("embedding backend %s unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// ServiceOptions carries provider-independent embedding settings.
type ServiceOptions struct {
	// Dimensions is the expected vector length. Zero means "use the
	// model's known dimensions".
	Dimensions int

	// MaxInputLength caps the text handed to the backend per call, in
	// runes. Zero means no cap.
	MaxInputLength int

	// Normalize scales output vectors to unit L2 norm.
	Normalize bool
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"bge-m3":            1024,
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
// An unsupported provider is a permanent deployment error.
func NewService(cfg *config.Config) (Service, error) {
	switch cfg.Embedding.Provider {
	case "ollama":
		return NewOllamaService(cfg.Embedding.Ollama.URL, cfg.Embedding.Model, ServiceOptions{
			Dimensions:     cfg.Embedding.Dimension,
			MaxInputLength: cfg.Embedding.MaxInputLength,
			Normalize:      cfg.Embedding.Normalize,
		})
	case "openai":
		return NewOpenAIService(cfg.Embedding.OpenAI.APIKey, cfg.Embedding.Model, cfg.Embedding.OpenAI.BaseURL, ServiceOptions{
			Dimensions:     cfg.Embedding.Dimension,
			MaxInputLength: cfg.Embedding.MaxInputLength,
			Normalize:      cfg.Embedding.Normalize,
		})
	default:
		return nil, &UnavailableError{
			Provider: Provider(cfg.Embedding.Provider),
			Err:      fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider),
		}
	}
}

// normalize scales v to unit L2 norm in place. Zero vectors are left
// untouched.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

// normalizeAll applies normalize to each vector.
func normalizeAll(vs [][]float32) {
	for _, v := range vs {
		normalize(v)
	}
}

// truncateRunes caps text at max runes. Oversized inputs are clipped
// rather than rejected, matching how embedding backends truncate.
func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
