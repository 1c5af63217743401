package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/ui"
)

var sourcesCollection string

// sourcesCmd represents the sources command
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List ingested sources",
	Long: `List every source in a collection with its chunk count and
ingestion timestamps.

Examples:
  kb sources
  kb sources --collection support`,
	RunE: runSources,
}

func init() {
	sourcesCmd.Flags().StringVarP(&sourcesCollection, "collection", "C", "", "collection to list")
}

func runSources(cmd *cobra.Command, args []string) error {
	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	sources, err := manager.ListSources(sourcesCollection)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		fmt.Println("No sources ingested.")
		fmt.Println()
		fmt.Println("Run 'kb add', 'kb add-url', or 'kb ingest' to add some.")
		return nil
	}

	fmt.Println(ui.Header.Render("Sources"))
	fmt.Println()

	for _, src := range sources {
		fmt.Printf("%s\n", ui.SourceName.Render(src.Source))
		fmt.Printf("  %s %d\n", ui.Dim.Render("Chunks:"), src.ChunkCount)
		fmt.Printf("  %s %s\n", ui.Dim.Render("First added:"), formatTime(src.FirstAdded))
		fmt.Printf("  %s %s\n", ui.Dim.Render("Last added:"), formatTime(src.LastAdded))
	}

	fmt.Println()
	fmt.Println(ui.Dim.Render(fmt.Sprintf("Total: %d sources", len(sources))))

	return nil
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}

	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2 at 15:04")
	}
	return t.Format("Jan 2, 2006 at 15:04")
}
