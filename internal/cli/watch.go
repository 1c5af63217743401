package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/ui"
	"github.com/ragtools/kb/internal/watcher"
)

var watchCollection string

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory and ingest changed documents",
	Long: `Watch a directory for new or modified documents and add them to
the knowledge base as they change.

Events are debounced, so rapid edits to the same file produce one
ingestion. The store is append-only; deleted files are not removed.

Examples:
  # Watch the current directory
  kb watch

  # Watch a notes directory into a collection
  kb watch ./notes --collection notes`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchCollection, "collection", "C", "", "collection to add to")
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := "."
	if len(args) > 0 {
		path = args[0]
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	w, err := watcher.New(
		absPath,
		watchCollection,
		manager,
		watcher.WithDebounceTime(500*time.Millisecond),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("File event", "event", event, "path", path)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Println(ui.Header.Render("Watching for Changes"))
	fmt.Printf("Directory: %s\n", absPath)
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	if err := w.Start(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
