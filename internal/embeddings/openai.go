package embeddings

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService implements the embedding service using the OpenAI API.
type OpenAIService struct {
	client     openai.Client
	model      string
	dimensions int
	opts       ServiceOptions
}

// NewOpenAIService creates a new OpenAI embedding service. A missing
// API key is a permanent deployment error, not something a retry fixes.
func NewOpenAIService(apiKey, model, baseURL string, opts ServiceOptions) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, &UnavailableError{
			Provider: ProviderOpenAI,
			Err:      fmt.Errorf("OpenAI API key is required"),
		}
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(clientOpts...)

	dimensions := opts.Dimensions
	if dimensions == 0 {
		dimensions = GetModelDimensions(model)
	}
	if dimensions == 0 {
		dimensions = 1536
		log.Debug("Unknown model dimensions, defaulting", "model", model, "dimensions", dimensions)
	}

	return &OpenAIService{
		client:     client,
		model:      model,
		dimensions: dimensions,
		opts:       opts,
	}, nil
}

// Embed generates an embedding for document text.
func (s *OpenAIService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.embedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

// EmbedQuery generates an embedding for query text. OpenAI uses a
// symmetric embedding space, so this is the same as Embed.
func (s *OpenAIService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.Embed(ctx, text)
}

// EmbedBatch generates embeddings for multiple texts.
func (s *OpenAIService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := s.embedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

// Dimensions returns the embedding dimensions.
func (s *OpenAIService) Dimensions() int {
	return s.dimensions
}

// Provider returns the provider name.
func (s *OpenAIService) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the model name.
func (s *OpenAIService) ModelName() string {
	return s.model
}

// embedTexts performs the actual embedding request.
func (s *OpenAIService) embedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	log.Debug("Requesting embeddings from OpenAI", "model", s.model, "count", len(texts))

	capped := make([]string, len(texts))
	for i, text := range texts {
		capped[i] = truncateRunes(text, s.opts.MaxInputLength)
	}

	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: capped,
		},
	})
	if err != nil {
		return nil, &UnavailableError{Provider: ProviderOpenAI, Transient: true, Err: err}
	}

	// Responses carry an index; place each vector back in input order.
	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx >= len(vectors) {
			continue
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		vectors[idx] = vector
	}

	if len(vectors) > 0 && len(vectors[0]) > 0 {
		s.dimensions = len(vectors[0])
	}

	if s.opts.Normalize {
		normalizeAll(vectors)
	}

	return vectors, nil
}
