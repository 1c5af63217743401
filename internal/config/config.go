// Package config handles configuration loading and validation for kb.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete kb configuration. It is loaded once at
// startup and treated as read-only afterwards.
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Search    SearchConfig    `mapstructure:"search"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	Provider       string            `mapstructure:"provider"`
	Model          string            `mapstructure:"model"`
	Dimension      int               `mapstructure:"dimension"`
	MaxInputLength int               `mapstructure:"max_input_length"`
	Normalize      bool              `mapstructure:"normalize"`
	Ollama         OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI         OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures the Ollama embedding backend.
type OllamaEmbedConfig struct {
	URL string `mapstructure:"url"`
}

// OpenAIEmbedConfig configures the OpenAI embedding backend.
type OpenAIEmbedConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// ChunkingConfig configures text splitting.
type ChunkingConfig struct {
	ChunkSize    int      `mapstructure:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap"`
	Separators   []string `mapstructure:"separators"`
}

// StorageConfig configures the SQLite vector store.
type StorageConfig struct {
	Path              string `mapstructure:"path"`
	DefaultCollection string `mapstructure:"default_collection"`
}

// SearchConfig configures retrieval defaults.
type SearchConfig struct {
	DefaultLimit        int     `mapstructure:"default_limit"`
	MaxLimit            int     `mapstructure:"max_limit"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// MetadataConfig toggles which provenance fields are recorded on chunks.
// These affect payload verbosity only, never correctness.
type MetadataConfig struct {
	RecordSource     bool `mapstructure:"record_source"`
	RecordTimestamp  bool `mapstructure:"record_timestamp"`
	RecordPosition   bool `mapstructure:"record_position"`
	RecordCollection bool `mapstructure:"record_collection"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Provider:       DefaultEmbeddingProvider,
			Model:          DefaultEmbeddingModel,
			Dimension:      DefaultDimension,
			MaxInputLength: DefaultMaxInputLength,
			Normalize:      true,
			Ollama: OllamaEmbedConfig{
				URL: DefaultOllamaURL,
			},
		},
		Chunking: ChunkingConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			Separators:   DefaultSeparators(),
		},
		Storage: StorageConfig{
			Path:              DefaultDatabasePath(),
			DefaultCollection: "default",
		},
		Search: SearchConfig{
			DefaultLimit:        DefaultSearchLimit,
			MaxLimit:            DefaultMaxSearchLimit,
			SimilarityThreshold: DefaultSimilarityThreshold,
		},
		Metadata: MetadataConfig{
			RecordSource:     true,
			RecordTimestamp:  true,
			RecordPosition:   true,
			RecordCollection: true,
		},
	}
}

// Load reads configuration from file and environment variables, then
// validates it. A failed validation is fatal for startup.
func Load(configFile string) error {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("KB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	if loaded.Embedding.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			loaded.Embedding.OpenAI.APIKey = key
		}
	}

	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// Validate checks configuration invariants. It is called by Load and by
// anything that constructs a Config by hand.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("invalid config: chunk_size must be positive, got %d", c.Chunking.ChunkSize)
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("invalid config: chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d",
			c.Chunking.ChunkOverlap, c.Chunking.ChunkSize)
	}
	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("invalid config: embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return fmt.Errorf("invalid config: similarity_threshold must be in [0, 1], got %g", c.Search.SimilarityThreshold)
	}
	if c.Search.DefaultLimit < 1 {
		return fmt.Errorf("invalid config: default_limit must be at least 1, got %d", c.Search.DefaultLimit)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("invalid config: max_limit %d is below default_limit %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	if len(c.Chunking.Separators) == 0 {
		return fmt.Errorf("invalid config: separators must not be empty")
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	viper.SetDefault("embedding.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embedding.model", DefaultEmbeddingModel)
	viper.SetDefault("embedding.dimension", DefaultDimension)
	viper.SetDefault("embedding.max_input_length", DefaultMaxInputLength)
	viper.SetDefault("embedding.normalize", true)
	viper.SetDefault("embedding.ollama.url", DefaultOllamaURL)

	viper.SetDefault("chunking.chunk_size", DefaultChunkSize)
	viper.SetDefault("chunking.chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("chunking.separators", DefaultSeparators())

	viper.SetDefault("storage.path", DefaultDatabasePath())
	viper.SetDefault("storage.default_collection", "default")

	viper.SetDefault("search.default_limit", DefaultSearchLimit)
	viper.SetDefault("search.max_limit", DefaultMaxSearchLimit)
	viper.SetDefault("search.similarity_threshold", DefaultSimilarityThreshold)

	viper.SetDefault("metadata.record_source", true)
	viper.SetDefault("metadata.record_timestamp", true)
	viper.SetDefault("metadata.record_position", true)
	viper.SetDefault("metadata.record_collection", true)
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}
