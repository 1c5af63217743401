package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/kb"
	"github.com/ragtools/kb/internal/ui"
)

var (
	searchCollection string
	searchLimit      int
	searchMinScore   float64
	searchJSON       bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base semantically",
	Long: `Search for chunks matching a natural language query.

The query is embedded and matched against stored chunks by vector
similarity, so results match by meaning, not just keywords.

Examples:
  # Basic search
  kb search "how do we rotate api keys"

  # Limit results
  kb search "backup schedule" --limit 3

  # Filter by minimum similarity score
  kb search "incident response" --min-score 0.5

  # Search a specific collection
  kb search "pricing tiers" --collection support

  # Machine-readable output
  kb search "deploy process" --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchCollection, "collection", "C", "", "collection to search")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "m", 0, "maximum number of results")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", 0.0, "minimum similarity score (0-1)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := args[0]

	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	log.Debug("Starting search", "query", query, "collection", searchCollection)

	// Only pass options the user actually set, so the configured
	// defaults apply otherwise.
	opts := kb.SearchOptions{}
	if cmd.Flags().Changed("limit") {
		opts.Limit = &searchLimit
	}
	if cmd.Flags().Changed("min-score") {
		opts.MinScore = &searchMinScore
	}

	results, err := manager.Search(ctx, query, searchCollection, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	if searchJSON {
		return outputJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	displayResults(results)
	return nil
}

// displayResults formats and displays search results.
func displayResults(results []kb.SearchResult) {
	fmt.Printf("Found %d results:\n\n", len(results))

	for i, r := range results {
		fmt.Printf("%s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.FormatSource(r.Source, r.Seq),
			ui.FormatScore(r.Score),
		)
		fmt.Println(ui.ResultContent.Render(truncateText(r.Text, 400)))
		fmt.Println()
	}
}

// truncateText shortens chunk content for terminal display.
func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-3]) + "..."
}

// outputJSON writes results as a JSON array to stdout.
func outputJSON(results []kb.SearchResult) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
