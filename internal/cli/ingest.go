package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ragtools/kb/internal/fs"
	"github.com/ragtools/kb/internal/kb"
	"github.com/ragtools/kb/internal/ui"
)

var (
	ingestCollection    string
	ingestExtensions    []string
	ingestIncludeHidden bool
	ingestNoGitignore   bool
	ingestMaxSize       int64
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest <directory>",
	Short: "Ingest every document in a directory tree",
	Long: `Walk a directory and add every text document to the knowledge base.

Hidden files, binary files, and anything matched by .gitignore are
skipped. Each file's relative path becomes its source name.

Examples:
  # Ingest a notes directory
  kb ingest ./notes

  # Ingest into a specific collection
  kb ingest ./docs --collection handbook

  # Restrict file types
  kb ingest ./wiki --ext .md --ext .txt`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestCollection, "collection", "C", "", "collection to add to")
	ingestCmd.Flags().StringArrayVar(&ingestExtensions, "ext", nil, "file extensions to include (repeatable)")
	ingestCmd.Flags().BoolVar(&ingestIncludeHidden, "hidden", false, "include hidden files and directories")
	ingestCmd.Flags().BoolVar(&ingestNoGitignore, "no-gitignore", false, "ignore .gitignore rules")
	ingestCmd.Flags().Int64Var(&ingestMaxSize, "max-size", 0, "maximum file size in bytes (0 = default)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	root := args[0]

	manager, cleanup, err := openManager()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signalContext()
	defer cancel()

	walker, err := fs.NewDocWalker(fs.WalkOptions{
		Root:          root,
		Extensions:    ingestExtensions,
		MaxFileSize:   ingestMaxSize,
		IncludeHidden: ingestIncludeHidden,
		UseGitignore:  !ingestNoGitignore,
	})
	if err != nil {
		return err
	}

	var (
		filesAdded  int
		chunksAdded int
		filesFailed int
	)

	err = walker.Walk(func(doc fs.DocInfo) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		data, err := os.ReadFile(doc.Path)
		if err != nil {
			log.Warn("Failed to read file", "path", doc.Path, "error", err)
			filesFailed++
			return nil
		}

		result, err := manager.AddText(ctx, string(data), doc.RelPath, ingestCollection, kb.Metadata{
			"path":         doc.Path,
			"content_hash": doc.Hash,
		})
		if err != nil {
			// Embedding backend failures abort the whole run, bad
			// individual files do not.
			if kb.IsKind(err, kb.KindDependency) || kb.IsKind(err, kb.KindStorage) {
				return err
			}
			log.Warn("Skipping file", "path", doc.RelPath, "error", err)
			filesFailed++
			return nil
		}

		log.Debug("Ingested file", "source", result.Source, "chunks", result.ChunksAdded)
		filesAdded++
		chunksAdded += result.ChunksAdded
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	stats := walker.Stats()
	fmt.Printf("%s %d files (%d chunks) from %s\n",
		ui.Success.Render("Ingested"),
		filesAdded,
		chunksAdded,
		ui.Bold.Render(root),
	)
	if filesFailed > 0 {
		fmt.Println(ui.Warning.Render(fmt.Sprintf("%d files skipped due to errors", filesFailed)))
	}
	if stats.FilesSkipped > 0 {
		fmt.Println(ui.Dim.Render(fmt.Sprintf("%d files filtered out (binary, too large, or ignored)", stats.FilesSkipped)))
	}

	return nil
}
