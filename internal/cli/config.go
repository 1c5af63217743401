package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/config"
	"github.com/ragtools/kb/internal/ui"
)

var configShowPath bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration",
	Long: `Display the effective configuration and config file locations.

Examples:
  # Show current configuration
  kb config

  # Show config file paths
  kb config --path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Config dir:    %s\n", config.DefaultConfigDir())
		active := config.ConfigFilePath()
		if active == "" {
			active = "(none, using defaults)"
		}
		fmt.Printf("Active config: %s\n", active)
		fmt.Printf("Database:      %s\n", cfg.Storage.Path)
		return nil
	}

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Embedding:"))
	fmt.Printf("  Provider: %s\n", cfg.Embedding.Provider)
	fmt.Printf("  Model: %s\n", cfg.Embedding.Model)
	fmt.Printf("  Dimension: %d\n", cfg.Embedding.Dimension)
	fmt.Printf("  Max Input Length: %d\n", cfg.Embedding.MaxInputLength)
	fmt.Printf("  Normalize: %t\n", cfg.Embedding.Normalize)
	fmt.Printf("  Ollama URL: %s\n", cfg.Embedding.Ollama.URL)
	if cfg.Embedding.OpenAI.BaseURL != "" {
		fmt.Printf("  OpenAI Base URL: %s\n", cfg.Embedding.OpenAI.BaseURL)
	}
	fmt.Println()

	fmt.Println(ui.Bold.Render("Chunking:"))
	fmt.Printf("  Chunk Size: %d\n", cfg.Chunking.ChunkSize)
	fmt.Printf("  Chunk Overlap: %d\n", cfg.Chunking.ChunkOverlap)
	fmt.Printf("  Separators: %s\n", formatSeparators(cfg.Chunking.Separators))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Storage:"))
	fmt.Printf("  Path: %s\n", cfg.Storage.Path)
	fmt.Printf("  Default Collection: %s\n", cfg.Storage.DefaultCollection)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Search:"))
	fmt.Printf("  Default Limit: %d\n", cfg.Search.DefaultLimit)
	fmt.Printf("  Max Limit: %d\n", cfg.Search.MaxLimit)
	fmt.Printf("  Similarity Threshold: %g\n", cfg.Search.SimilarityThreshold)

	return nil
}

// formatSeparators renders the separator cascade with escapes visible.
func formatSeparators(separators []string) string {
	quoted := make([]string, 0, len(separators))
	for _, sep := range separators {
		quoted = append(quoted, fmt.Sprintf("%q", sep))
	}
	return strings.Join(quoted, ", ")
}
