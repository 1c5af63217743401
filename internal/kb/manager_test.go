package kb

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragtools/kb/internal/config"
	"github.com/ragtools/kb/internal/embeddings"
	"github.com/ragtools/kb/internal/store"
)

const testDims = 16

// fakeEmbedder produces deterministic bag-of-words vectors so that
// texts sharing words score high without loading a real model.
type fakeEmbedder struct{}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, testDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		var h uint32
		for _, r := range word {
			h = h*31 + uint32(r)
		}
		vector[h%testDims]++
	}
	var sum float64
	for _, x := range vector {
		sum += float64(x) * float64(x)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.Embed(ctx, text)
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i], _ = f.Embed(ctx, text)
	}
	return vectors, nil
}

func (f *fakeEmbedder) Dimensions() int               { return testDims }
func (f *fakeEmbedder) Provider() embeddings.Provider { return "fake" }
func (f *fakeEmbedder) ModelName() string             { return "fake-bow" }

// failEmbedder simulates an unavailable embedding backend.
type failEmbedder struct{}

func (f *failEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, &embeddings.UnavailableError{Provider: embeddings.ProviderOllama, Transient: true, Err: fmt.Errorf("connection refused")}
}

func (f *failEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return f.Embed(ctx, text)
}

func (f *failEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, &embeddings.UnavailableError{Provider: embeddings.ProviderOllama, Transient: true, Err: fmt.Errorf("connection refused")}
}

func (f *failEmbedder) Dimensions() int               { return testDims }
func (f *failEmbedder) Provider() embeddings.Provider { return "fake" }
func (f *failEmbedder) ModelName() string             { return "fake-down" }

// fakeFetcher returns canned content for URL ingestion tests.
type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) Fetch(context.Context, string) (string, error) {
	return f.text, f.err
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Embedding.Dimension = testDims
	cfg.Storage.Path = filepath.Join(t.TempDir(), "kb.db")
	return cfg
}

func setupManager(t *testing.T, cfg *config.Config, embedder embeddings.Service, fetcher *fakeFetcher) *Manager {
	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	if fetcher == nil {
		return New(cfg, st, embedder, nil)
	}
	return New(cfg, st, embedder, fetcher)
}

func TestAddTextAndSearch(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)
	result, err := m.AddText(context.Background(), text, "fox", "test", nil)
	require.NoError(t, err)

	assert.Greater(t, result.ChunksAdded, 1)
	assert.Equal(t, "fox", result.Source)
	assert.Equal(t, "test", result.Collection)
	assert.True(t, result.CollectionCreated)

	limit := 3
	results, err := m.Search(context.Background(), "quick fox", "test", SearchOptions{Limit: &limit})
	require.NoError(t, err)

	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)
	assert.Contains(t, results[0].Text, "fox")
	assert.Greater(t, results[0].Score, 0.0)
	assert.Equal(t, "fox", results[0].Source)

	// Scores are monotonically non-increasing
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestAddTextValidation(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	t.Run("empty text", func(t *testing.T) {
		_, err := m.AddText(context.Background(), "", "empty", "test", nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("whitespace-only text", func(t *testing.T) {
		_, err := m.AddText(context.Background(), "   \n\t  ", "blank", "test", nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("text below minimum length", func(t *testing.T) {
		_, err := m.AddText(context.Background(), "too short", "short", "test", nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("empty source name", func(t *testing.T) {
		_, err := m.AddText(context.Background(), "a perfectly reasonable amount of text", "", "test", nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("unsupported metadata value type", func(t *testing.T) {
		metadata := Metadata{"nested": map[string]string{"a": "b"}}
		_, err := m.AddText(context.Background(), "a perfectly reasonable amount of text", "meta", "test", metadata)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})
}

func TestAddTextDefaultCollection(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	result, err := m.AddText(context.Background(), "some text destined for the default collection", "notes", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "default", result.Collection)
}

func TestAddTextEmbedderDown(t *testing.T) {
	m := setupManager(t, testConfig(t), &failEmbedder{}, nil)

	_, err := m.AddText(context.Background(), "text that will never get embedded today", "doomed", "test", nil)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindDependency))

	// Nothing was indexed
	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalChunks)
}

func TestAddTextMetadata(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	metadata := Metadata{
		"author": "someone",
		"year":   2024,
		// Tracked fields never lose to caller-supplied values
		"source": "spoofed",
	}
	_, err := m.AddText(context.Background(), "a document with custom metadata attached to it", "real-source", "test", metadata)
	require.NoError(t, err)

	limit := 1
	results, err := m.Search(context.Background(), "document custom metadata", "test", SearchOptions{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, results, 1)

	md := results[0].Metadata
	assert.Equal(t, "someone", md["author"])
	assert.Equal(t, "real-source", md["source"])
	assert.Equal(t, "test", md["collection"])
	assert.Contains(t, md, "timestamp")
	assert.Contains(t, md, "position")
}

func TestAddURL(t *testing.T) {
	content := strings.Repeat("Documentation page content with useful words. ", 10)

	t.Run("success", func(t *testing.T) {
		m := setupManager(t, testConfig(t), &fakeEmbedder{}, &fakeFetcher{text: content})

		result, err := m.AddURL(context.Background(), "https://example.com/docs", "web", nil)
		require.NoError(t, err)
		assert.Greater(t, result.ChunksAdded, 0)
		assert.Equal(t, "https://example.com/docs", result.Source)
	})

	t.Run("fetch failure", func(t *testing.T) {
		m := setupManager(t, testConfig(t), &fakeEmbedder{}, &fakeFetcher{err: fmt.Errorf("connection refused")})

		_, err := m.AddURL(context.Background(), "https://example.com/down", "web", nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindFetch))
	})

	t.Run("content too short", func(t *testing.T) {
		m := setupManager(t, testConfig(t), &fakeEmbedder{}, &fakeFetcher{text: "404"})

		_, err := m.AddURL(context.Background(), "https://example.com/empty", "web", nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindFetch))
	})

	t.Run("invalid URL", func(t *testing.T) {
		m := setupManager(t, testConfig(t), &fakeEmbedder{}, &fakeFetcher{text: content})

		_, err := m.AddURL(context.Background(), "ftp://example.com", "web", nil)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})
}

func TestSearchValidation(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	t.Run("query too short", func(t *testing.T) {
		_, err := m.Search(context.Background(), "ab", "test", SearchOptions{})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("zero limit", func(t *testing.T) {
		limit := 0
		_, err := m.Search(context.Background(), "valid query", "test", SearchOptions{Limit: &limit})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("negative limit", func(t *testing.T) {
		limit := -5
		_, err := m.Search(context.Background(), "valid query", "test", SearchOptions{Limit: &limit})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("min score out of range", func(t *testing.T) {
		minScore := 1.5
		_, err := m.Search(context.Background(), "valid query", "test", SearchOptions{MinScore: &minScore})
		require.Error(t, err)
		assert.True(t, IsKind(err, KindValidation))
	})

	t.Run("oversized limit is clamped, not rejected", func(t *testing.T) {
		limit := 100000
		_, err := m.Search(context.Background(), "valid query", "test", SearchOptions{Limit: &limit})
		assert.NoError(t, err)
	})
}

func TestSearchNonexistentCollection(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	results, err := m.Search(context.Background(), "anything at all", "nonexistent", SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchExplicitZeroMinScore(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	_, err := m.AddText(context.Background(), "completely unrelated content about gardening tools", "garden", "test", nil)
	require.NoError(t, err)

	// An explicit 0 means unfiltered: even orthogonal chunks come back
	zero := 0.0
	limit := 10
	results, err := m.Search(context.Background(), "zzz qqq xyzzy", "test", SearchOptions{Limit: &limit, MinScore: &zero})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestReingestAppends(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	text := "A stable document that gets ingested twice under the same name."

	first, err := m.AddText(context.Background(), text, "repeat", "test", nil)
	require.NoError(t, err)
	second, err := m.AddText(context.Background(), text, "repeat", "test", nil)
	require.NoError(t, err)
	assert.False(t, second.CollectionCreated)

	// Re-ingestion appends; list_sources reflects the cumulative count
	sources, err := m.ListSources("test")
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "repeat", sources[0].Source)
	assert.Equal(t, first.ChunksAdded+second.ChunksAdded, sources[0].ChunkCount)
}

func TestListSourcesEmptyCollection(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	sources, err := m.ListSources("nothing-here")
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestStatsAcrossCollections(t *testing.T) {
	m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

	a, err := m.AddText(context.Background(), strings.Repeat("alpha content here. ", 20), "a", "first", nil)
	require.NoError(t, err)
	b, err := m.AddText(context.Background(), strings.Repeat("beta content here. ", 20), "b", "second", nil)
	require.NoError(t, err)

	stats, err := m.Stats()
	require.NoError(t, err)

	require.Len(t, stats.Collections, 2)
	total := 0
	for _, cs := range stats.Collections {
		total += cs.ChunkCount
	}
	assert.Equal(t, a.ChunksAdded+b.ChunksAdded, total)
	assert.Equal(t, total, stats.TotalChunks)
	assert.Equal(t, 2, stats.TotalSources)
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		m := setupManager(t, testConfig(t), &fakeEmbedder{}, nil)

		report := m.HealthCheck(context.Background())
		assert.True(t, report.Healthy)
		assert.True(t, report.Components.Embedder)
		assert.True(t, report.Components.Store)
		assert.Empty(t, report.Problems)
	})

	t.Run("embedder unavailable", func(t *testing.T) {
		m := setupManager(t, testConfig(t), &failEmbedder{}, nil)

		report := m.HealthCheck(context.Background())
		assert.False(t, report.Healthy)
		assert.False(t, report.Components.Embedder)
		assert.True(t, report.Components.Store)
		assert.NotEmpty(t, report.Problems)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		cfg := testConfig(t)
		m := setupManager(t, cfg, &fakeEmbedder{}, nil)

		_, err := m.AddText(context.Background(), "enough text to create the vector table", "dims", "test", nil)
		require.NoError(t, err)

		// Simulate a config change after data was written
		cfg.Embedding.Dimension = 1024

		report := m.HealthCheck(context.Background())
		assert.False(t, report.Healthy)
		assert.False(t, report.Components.Store)
	})
}

func TestChunkKey(t *testing.T) {
	k1 := chunkKey("src", 0, "content")
	k2 := chunkKey("src", 0, "content")
	k3 := chunkKey("src", 1, "content")
	k4 := chunkKey("src", 0, "different")

	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
	assert.NotEqual(t, k1, k4)
	assert.True(t, strings.HasPrefix(k1, "xxh64:"))
}
