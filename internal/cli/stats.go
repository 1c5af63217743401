package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/ui"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	Long: `Display per-collection and overall statistics:
- Collections, sources, and chunk counts
- Embedding dimensions in use
- Database location and size

Examples:
  kb stats`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := manager.Stats()
	if err != nil {
		return err
	}

	fmt.Println(ui.Header.Render("Knowledge Base"))
	fmt.Println()

	if len(stats.Collections) == 0 {
		fmt.Println("The knowledge base is empty.")
		fmt.Println()
		fmt.Println("Run 'kb add', 'kb add-url', or 'kb ingest' to add content.")
		return nil
	}

	for _, cs := range stats.Collections {
		fmt.Printf("%s %s\n",
			ui.Highlight.Render("Collection:"),
			ui.Bold.Render(cs.Name),
		)
		fmt.Printf("  %s %d sources, %d chunks\n",
			ui.Dim.Render("Contents:"),
			cs.SourceCount,
			cs.ChunkCount,
		)
	}

	fmt.Println()
	fmt.Printf("%s %d sources, %d chunks across %d collections\n",
		ui.Dim.Render("Total:"),
		stats.TotalSources,
		stats.TotalChunks,
		len(stats.Collections),
	)
	if stats.Dimensions > 0 {
		fmt.Printf("%s %d\n", ui.Dim.Render("Dimensions:"), stats.Dimensions)
	}
	fmt.Printf("%s %s (%s)\n",
		ui.Dim.Render("Database:"),
		stats.DatabasePath,
		formatBytes(stats.DatabaseBytes),
	)

	return nil
}

// formatBytes formats a byte count for display.
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
