// Package kb orchestrates the knowledge base: ingestion sequences
// chunk, embed, store; retrieval sequences embed, search, rank.
package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"

	"github.com/ragtools/kb/internal/chunker"
	"github.com/ragtools/kb/internal/config"
	"github.com/ragtools/kb/internal/embeddings"
	"github.com/ragtools/kb/internal/fetch"
	"github.com/ragtools/kb/internal/store"
)

const (
	// minTextLength rejects trivially short inputs rather than
	// polluting the index with near-empty vectors.
	minTextLength = 10

	// minQueryLength rejects queries too short to embed meaningfully.
	minQueryLength = 3

	// minURLContentLength rejects pages whose extracted text is too
	// thin to be worth indexing (paywalls, error pages, redirects).
	minURLContentLength = 50
)

// Manager is the single entry point for ingestion and retrieval. It
// owns no persistent state of its own; everything durable lives in the
// vector store.
type Manager struct {
	cfg      *config.Config
	store    store.Store
	embedder embeddings.Service
	chunker  *chunker.Chunker
	fetcher  fetch.Fetcher
}

// AddResult reports the outcome of an ingestion call.
type AddResult struct {
	ChunksAdded       int    `json:"chunks_added"`
	Source            string `json:"source"`
	Collection        string `json:"collection"`
	CollectionCreated bool   `json:"collection_created"`
}

// SearchResult is one ranked retrieval hit.
type SearchResult struct {
	Text     string   `json:"text"`
	Score    float64  `json:"score"`
	Source   string   `json:"source"`
	Seq      int      `json:"seq"`
	Metadata Metadata `json:"metadata"`
}

// SearchOptions controls a search call. Nil fields mean "use the
// configured default"; explicit values override, including an explicit
// MinScore of 0 meaning unfiltered.
type SearchOptions struct {
	Limit    *int
	MinScore *float64
}

// HealthComponents reports per-dependency health.
type HealthComponents struct {
	Embedder bool `json:"embedder"`
	Store    bool `json:"store"`
}

// HealthReport is the result of a health check. A degraded system is
// reported, not an error.
type HealthReport struct {
	Healthy    bool             `json:"healthy"`
	Components HealthComponents `json:"components"`
	Problems   []string         `json:"problems,omitempty"`
}

// New creates a knowledge base manager.
func New(cfg *config.Config, st store.Store, embedder embeddings.Service, fetcher fetch.Fetcher) *Manager {
	return &Manager{
		cfg:      cfg,
		store:    st,
		embedder: embedder,
		chunker: chunker.New(chunker.Options{
			ChunkSize:    cfg.Chunking.ChunkSize,
			ChunkOverlap: cfg.Chunking.ChunkOverlap,
			Separators:   cfg.Chunking.Separators,
		}),
		fetcher: fetcher,
	}
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// AddText chunks, embeds, and stores a named text under a collection.
// The whole batch lands atomically: a failed embedding aborts the call
// with nothing indexed.
func (m *Manager) AddText(ctx context.Context, text, sourceName, collection string, metadata Metadata) (*AddResult, error) {
	const op = "add_text"

	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < minTextLength {
		return nil, validationErr(op, "text must be at least %d characters, got %d", minTextLength, utf8.RuneCountInString(trimmed))
	}
	if strings.TrimSpace(sourceName) == "" {
		return nil, validationErr(op, "source name must not be empty")
	}
	if err := metadata.Validate(); err != nil {
		return nil, validationErr(op, "invalid metadata: %v", err)
	}
	collection = m.collectionOrDefault(collection)

	chunks := m.chunker.Split(trimmed)
	if len(chunks) == 0 {
		return nil, validationErr(op, "text produced no chunks")
	}

	vectors, err := m.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return nil, m.wrapEmbedErr(op, err)
	}
	if err := m.checkDimensions(op, vectors); err != nil {
		return nil, err
	}

	ingestedAt := time.Now().UTC()
	inputs := make([]store.ChunkInput, len(chunks))
	for i, content := range chunks {
		inputs[i] = store.ChunkInput{
			Key:      chunkKey(sourceName, i, content),
			Seq:      i,
			Content:  content,
			Metadata: m.chunkMetadata(metadata, sourceName, collection, i, ingestedAt),
		}
	}

	result, err := m.store.Insert(collection, sourceName, inputs, vectors)
	if err != nil {
		return nil, storageErr(op, err)
	}

	log.Info("Indexed text", "source", sourceName, "collection", collection, "chunks", result.Inserted)

	return &AddResult{
		ChunksAdded:       result.Inserted,
		Source:            sourceName,
		Collection:        collection,
		CollectionCreated: result.CollectionCreated,
	}, nil
}

// AddURL fetches a URL through the external collaborator and indexes
// its text. Extraction failures are reported as fetch errors, distinct
// from indexing failures, so the fetch can be retried independently.
func (m *Manager) AddURL(ctx context.Context, url, collection string, metadata Metadata) (*AddResult, error) {
	const op = "add_url"

	url = strings.TrimSpace(url)
	if url == "" {
		return nil, validationErr(op, "URL must not be empty")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, validationErr(op, "URL must start with http:// or https://")
	}
	if m.fetcher == nil {
		return nil, &Error{Kind: KindFetch, Op: op, Msg: "no URL fetcher configured"}
	}

	text, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &Error{Kind: KindFetch, Op: op, Msg: fmt.Sprintf("failed to fetch %s", url), Transient: true, Err: err}
	}

	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minURLContentLength {
		return nil, &Error{Kind: KindFetch, Op: op, Msg: fmt.Sprintf("content from %s too short to index (%d characters)", url, utf8.RuneCountInString(text))}
	}

	return m.AddText(ctx, text, url, collection, metadata)
}

// Search embeds the query and returns ranked hits from the collection.
// Searching an empty or unknown collection yields no results, not an
// error.
func (m *Manager) Search(ctx context.Context, query, collection string, opts SearchOptions) ([]SearchResult, error) {
	const op = "search"

	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < minQueryLength {
		return nil, validationErr(op, "query must be at least %d characters", minQueryLength)
	}
	collection = m.collectionOrDefault(collection)

	limit := m.cfg.Search.DefaultLimit
	if opts.Limit != nil {
		limit = *opts.Limit
		if limit <= 0 {
			return nil, validationErr(op, "limit must be positive, got %d", limit)
		}
		if limit > m.cfg.Search.MaxLimit {
			limit = m.cfg.Search.MaxLimit
		}
	}

	minScore := m.cfg.Search.SimilarityThreshold
	if opts.MinScore != nil {
		minScore = *opts.MinScore
		if minScore < 0 || minScore > 1 {
			return nil, validationErr(op, "min score must be in [0, 1], got %g", minScore)
		}
	}

	vector, err := m.embedder.EmbedQuery(ctx, trimmed)
	if err != nil {
		return nil, m.wrapEmbedErr(op, err)
	}

	hits, err := m.store.Query(collection, vector, store.QueryOptions{
		TopK:     limit,
		MinScore: minScore,
	})
	if err != nil {
		return nil, storageErr(op, err)
	}

	results := make([]SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = SearchResult{
			Text:     hit.Content,
			Score:    hit.Score,
			Source:   hit.Source,
			Seq:      hit.Seq,
			Metadata: decodeMetadata(hit.Metadata),
		}
	}

	log.Debug("Search complete", "collection", collection, "hits", len(results))

	return results, nil
}

// ListSources summarizes the ingested sources of a collection.
func (m *Manager) ListSources(collection string) ([]store.SourceSummary, error) {
	const op = "list_sources"

	sources, err := m.store.ListSources(m.collectionOrDefault(collection))
	if err != nil {
		return nil, storageErr(op, err)
	}
	return sources, nil
}

// Stats reports per-collection and overall counts.
func (m *Manager) Stats() (*store.Stats, error) {
	const op = "stats"

	stats, err := m.store.GetStats()
	if err != nil {
		return nil, storageErr(op, err)
	}
	return stats, nil
}

// HealthCheck probes the embedder and the store. An unhealthy system
// is described in the report, never returned as an error.
func (m *Manager) HealthCheck(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Components: HealthComponents{Embedder: true, Store: true},
	}

	if _, err := m.embedder.EmbedQuery(ctx, "health check"); err != nil {
		report.Components.Embedder = false
		report.Problems = append(report.Problems, fmt.Sprintf("embedder: %v", err))
	}

	if err := m.store.Ping(); err != nil {
		report.Components.Store = false
		report.Problems = append(report.Problems, fmt.Sprintf("store: %v", err))
	} else if dims, err := m.store.Dimensions(); err != nil {
		report.Components.Store = false
		report.Problems = append(report.Problems, fmt.Sprintf("store: %v", err))
	} else if dims != 0 && dims != m.cfg.Embedding.Dimension {
		report.Components.Store = false
		report.Problems = append(report.Problems,
			fmt.Sprintf("store: persisted dimensions %d do not match configured %d", dims, m.cfg.Embedding.Dimension))
	}

	report.Healthy = report.Components.Embedder && report.Components.Store
	return report
}

// collectionOrDefault falls back to the configured default collection.
func (m *Manager) collectionOrDefault(collection string) string {
	if strings.TrimSpace(collection) == "" {
		return m.cfg.Storage.DefaultCollection
	}
	return collection
}

// wrapEmbedErr classifies an embedding failure. Backend-unavailable
// errors become dependency errors; anything else stays wrapped as-is.
func (m *Manager) wrapEmbedErr(op string, err error) error {
	var unavailable *embeddings.UnavailableError
	if errors.As(err, &unavailable) {
		return &Error{
			Kind:      KindDependency,
			Op:        op,
			Msg:       "embedding backend unavailable",
			Transient: unavailable.Transient,
			Err:       err,
		}
	}
	return &Error{Kind: KindDependency, Op: op, Msg: "embedding failed", Err: err}
}

// checkDimensions verifies every vector matches the configured
// embedding dimension. A mismatch is a deployment problem.
func (m *Manager) checkDimensions(op string, vectors [][]float32) error {
	expected := m.cfg.Embedding.Dimension
	for i, vector := range vectors {
		if len(vector) != expected {
			return &Error{
				Kind: KindDependency,
				Op:   op,
				Msg:  fmt.Sprintf("embedding %d has %d dimensions, configuration declares %d", i, len(vector), expected),
			}
		}
	}
	return nil
}

// chunkKey derives a stable identifier from a chunk's provenance and
// content.
func chunkKey(source string, seq int, content string) string {
	h := xxhash.New()
	h.WriteString(source)
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", seq)
	h.Write([]byte{0})
	h.WriteString(content)
	return fmt.Sprintf("xxh64:%016x", h.Sum64())
}
