package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.NotNil(t, c)

	// Embedding defaults
	assert.Equal(t, DefaultEmbeddingProvider, c.Embedding.Provider)
	assert.Equal(t, DefaultEmbeddingModel, c.Embedding.Model)
	assert.Equal(t, DefaultDimension, c.Embedding.Dimension)
	assert.True(t, c.Embedding.Normalize)
	assert.Equal(t, DefaultOllamaURL, c.Embedding.Ollama.URL)

	// Chunking defaults
	assert.Equal(t, DefaultChunkSize, c.Chunking.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, c.Chunking.ChunkOverlap)
	assert.Equal(t, DefaultSeparators(), c.Chunking.Separators)
	assert.Equal(t, "", c.Chunking.Separators[len(c.Chunking.Separators)-1])

	// Storage and search defaults
	assert.Equal(t, "default", c.Storage.DefaultCollection)
	assert.Equal(t, DefaultSearchLimit, c.Search.DefaultLimit)
	assert.Equal(t, DefaultMaxSearchLimit, c.Search.MaxLimit)

	// Metadata toggles all on
	assert.True(t, c.Metadata.RecordSource)
	assert.True(t, c.Metadata.RecordTimestamp)
	assert.True(t, c.Metadata.RecordPosition)
	assert.True(t, c.Metadata.RecordCollection)

	// Defaults must self-validate
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero chunk size", func(c *Config) { c.Chunking.ChunkSize = 0 }, "chunk_size"},
		{"overlap equals chunk size", func(c *Config) { c.Chunking.ChunkOverlap = c.Chunking.ChunkSize }, "chunk_overlap"},
		{"negative overlap", func(c *Config) { c.Chunking.ChunkOverlap = -1 }, "chunk_overlap"},
		{"zero dimension", func(c *Config) { c.Embedding.Dimension = 0 }, "dimension"},
		{"threshold above one", func(c *Config) { c.Search.SimilarityThreshold = 1.5 }, "similarity_threshold"},
		{"threshold below zero", func(c *Config) { c.Search.SimilarityThreshold = -0.1 }, "similarity_threshold"},
		{"zero default limit", func(c *Config) { c.Search.DefaultLimit = 0 }, "default_limit"},
		{"max below default", func(c *Config) { c.Search.MaxLimit = 1; c.Search.DefaultLimit = 5 }, "max_limit"},
		{"no separators", func(c *Config) { c.Chunking.Separators = nil }, "separators"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestDefaultPaths(t *testing.T) {
	configDir := DefaultConfigDir()
	dataDir := DefaultDataDir()
	dbPath := DefaultDatabasePath()

	assert.NotEmpty(t, configDir)
	assert.NotEmpty(t, dataDir)
	assert.Contains(t, configDir, "kb")
	assert.Contains(t, dataDir, "kb")
	assert.Contains(t, dbPath, "kb.db")
}

func TestLoadWithConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
embedding:
  provider: openai
  model: text-embedding-3-small
  dimension: 1536
  openai:
    api_key: sk-test
chunking:
  chunk_size: 500
  chunk_overlap: 50
storage:
  path: /custom/path/kb.db
  default_collection: docs
search:
  default_limit: 10
  max_limit: 25
  similarity_threshold: 0.4
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	err = Load(configPath)
	require.NoError(t, err)

	loaded := Get()
	assert.Equal(t, "openai", loaded.Embedding.Provider)
	assert.Equal(t, 1536, loaded.Embedding.Dimension)
	assert.Equal(t, 500, loaded.Chunking.ChunkSize)
	assert.Equal(t, 50, loaded.Chunking.ChunkOverlap)
	assert.Equal(t, "/custom/path/kb.db", loaded.Storage.Path)
	assert.Equal(t, "docs", loaded.Storage.DefaultCollection)
	assert.Equal(t, 10, loaded.Search.DefaultLimit)
	assert.Equal(t, 25, loaded.Search.MaxLimit)
	assert.InDelta(t, 0.4, loaded.Search.SimilarityThreshold, 1e-9)
	// Separators not overridden, so defaults apply
	assert.Equal(t, DefaultSeparators(), loaded.Chunking.Separators)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
chunking:
  chunk_size: 100
  chunk_overlap: 100
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	err = Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("KB_EMBEDDING_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "test-api-key")

	err := Load("")
	require.NoError(t, err)

	loaded := Get()
	assert.Equal(t, "openai", loaded.Embedding.Provider)
	assert.Equal(t, "test-api-key", loaded.Embedding.OpenAI.APIKey)
}

func TestLoadMissingConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	err := Load("")
	require.NoError(t, err)

	loaded := Get()
	assert.Equal(t, DefaultEmbeddingProvider, loaded.Embedding.Provider)
	assert.Equal(t, DefaultChunkSize, loaded.Chunking.ChunkSize)
}

func TestGet(t *testing.T) {
	cfg = nil

	c1 := Get()
	assert.NotNil(t, c1)

	c2 := Get()
	assert.Same(t, c1, c2)
}
