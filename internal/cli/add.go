package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/kb"
	"github.com/ragtools/kb/internal/ui"
)

var (
	addSource     string
	addCollection string
	addFile       string
	addMeta       []string
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add text to the knowledge base",
	Long: `Add raw text to the knowledge base under a source name.

The text is split into chunks, embedded, and stored for semantic
search. Reads from stdin when neither a text argument nor --file is
given.

Examples:
  # Add a snippet directly
  kb add "Backups run nightly at 02:00 UTC." --source ops-notes

  # Add a file (the filename becomes the source unless --source is set)
  kb add --file runbook.md

  # Pipe text in
  cat runbook.md | kb add --source runbook

  # Add into a specific collection with custom metadata
  kb add "..." --source faq --collection support --meta team=platform`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAdd,
}

// addURLCmd represents the add-url command
var addURLCmd = &cobra.Command{
	Use:   "add-url <url>",
	Short: "Fetch a web page and add its text to the knowledge base",
	Long: `Fetch a URL, extract its visible text, and index it.

The URL itself becomes the source name.

Examples:
  kb add-url https://example.com/docs/setup
  kb add-url https://example.com/faq --collection support`,
	Args: cobra.ExactArgs(1),
	RunE: runAddURL,
}

func init() {
	addCmd.Flags().StringVarP(&addSource, "source", "s", "", "source name for the text")
	addCmd.Flags().StringVarP(&addCollection, "collection", "C", "", "collection to add to")
	addCmd.Flags().StringVarP(&addFile, "file", "f", "", "read text from a file")
	addCmd.Flags().StringArrayVar(&addMeta, "meta", nil, "custom metadata as key=value (repeatable)")

	addURLCmd.Flags().StringVarP(&addCollection, "collection", "C", "", "collection to add to")
	addURLCmd.Flags().StringArrayVar(&addMeta, "meta", nil, "custom metadata as key=value (repeatable)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	var text string
	switch {
	case addFile != "":
		data, err := os.ReadFile(addFile)
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		text = string(data)
		if addSource == "" {
			addSource = filepath.Base(addFile)
		}
	case len(args) > 0:
		text = args[0]
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		text = string(data)
	}

	if addSource == "" {
		return fmt.Errorf("--source is required unless --file is used")
	}

	metadata, err := parseMeta(addMeta)
	if err != nil {
		return err
	}

	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := manager.AddText(ctx, text, addSource, addCollection, metadata)
	if err != nil {
		return err
	}

	printAddResult(result)
	return nil
}

func runAddURL(cmd *cobra.Command, args []string) error {
	url := args[0]

	metadata, err := parseMeta(addMeta)
	if err != nil {
		return err
	}

	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	log.Debug("Adding URL", "url", url, "collection", addCollection)

	result, err := manager.AddURL(ctx, url, addCollection, metadata)
	if err != nil {
		return err
	}

	printAddResult(result)
	return nil
}

// printAddResult reports what an ingestion call did.
func printAddResult(result *kb.AddResult) {
	fmt.Printf("%s %d chunks from %s into %s\n",
		ui.Success.Render("Added"),
		result.ChunksAdded,
		ui.Bold.Render(result.Source),
		ui.Highlight.Render(result.Collection),
	)
	if result.CollectionCreated {
		fmt.Println(ui.Dim.Render("(collection created)"))
	}
}

// parseMeta converts repeated key=value flags into metadata.
func parseMeta(pairs []string) (kb.Metadata, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(kb.Metadata, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
