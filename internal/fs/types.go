// Package fs discovers ingestable documents on disk.
package fs

import "time"

// DocInfo describes a document found during a walk.
type DocInfo struct {
	Path    string    // Absolute path
	RelPath string    // Path relative to the walk root
	Size    int64     // Size in bytes
	ModTime time.Time // Last modification time
	Hash    string    // Content hash (xxh64 hex)
}

// WalkOptions configures document discovery.
type WalkOptions struct {
	// Root is the directory to walk.
	Root string

	// Extensions limits which files are treated as documents. Empty
	// means the default document set.
	Extensions []string

	// MaxFileSize skips files larger than this many bytes. Zero means
	// no limit.
	MaxFileSize int64

	// MaxFileCount stops the walk after this many documents. Zero
	// means no limit.
	MaxFileCount int

	// IncludeHidden walks into dot-files and dot-directories.
	IncludeHidden bool

	// UseGitignore honors a .gitignore at the root.
	UseGitignore bool

	// IgnorePatterns adds extra gitignore-style patterns.
	IgnorePatterns []string
}

// WalkStats summarizes a completed walk.
type WalkStats struct {
	DocsFound    int
	FilesSkipped int
	DirsSkipped  int
	TotalBytes   int64
	SkippedBytes int64
}

// DefaultExtensions are the file types ingested as plain-text
// documents.
var DefaultExtensions = []string{
	".txt", ".text", ".md", ".markdown", ".rst", ".adoc", ".org",
}
