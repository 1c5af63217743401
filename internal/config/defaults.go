package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultEmbeddingModel    = "bge-m3"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"
	DefaultDimension         = 1024
	DefaultMaxInputLength    = 8192

	// Chunking defaults
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100

	// Search defaults
	DefaultSearchLimit         = 5
	DefaultMaxSearchLimit      = 50
	DefaultSimilarityThreshold = 0.0

	// Database
	DefaultDBFileName = "kb.db"
)

// DefaultSeparators returns the chunking separator cascade, ordered from
// most to least semantic. The trailing empty string means a hard
// character split.
func DefaultSeparators() []string {
	return []string{"\n\n", "\n", ". ", " ", ""}
}

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/kb"
	}
	return filepath.Join(home, ".config", "kb")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/kb"
	}
	return filepath.Join(home, ".local", "share", "kb")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}
