// Package watcher re-ingests documents into the knowledge base as they
// change on disk.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/ragtools/kb/internal/fs"
	"github.com/ragtools/kb/internal/kb"
)

// Watcher watches a documents directory and feeds changed files into
// the knowledge base.
type Watcher struct {
	root       string
	collection string
	manager    *kb.Manager

	extSet      map[string]bool
	maxFileSize int64

	// debounce holds pending file events to batch process
	debounce     map[string]fsnotify.Op
	debounceMu   sync.Mutex
	debounceTime time.Duration

	// callback for status updates
	onEvent func(event string, path string)
}

// Option configures the watcher.
type Option func(*Watcher)

// WithDebounceTime sets the debounce duration for batching events.
func WithDebounceTime(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounceTime = d
	}
}

// WithEventCallback sets a callback for file events.
func WithEventCallback(fn func(event string, path string)) Option {
	return func(w *Watcher) {
		w.onEvent = fn
	}
}

// WithMaxFileSize skips files larger than the given byte count.
func WithMaxFileSize(size int64) Option {
	return func(w *Watcher) {
		w.maxFileSize = size
	}
}

// New creates a watcher feeding changed documents under root into the
// given collection.
func New(root, collection string, manager *kb.Manager, opts ...Option) (*Watcher, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	extSet := make(map[string]bool, len(fs.DefaultExtensions))
	for _, ext := range fs.DefaultExtensions {
		extSet[ext] = true
	}

	w := &Watcher{
		root:         absRoot,
		collection:   collection,
		manager:      manager,
		extSet:       extSet,
		debounce:     make(map[string]fsnotify.Op),
		debounceTime: 500 * time.Millisecond,
		onEvent:      func(string, string) {}, // noop default
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start begins watching for file changes. Blocks until context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := w.addDirectories(watcher); err != nil {
		return err
	}

	log.Info("Watching for document changes", "root", w.root, "collection", w.collection)

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event, watcher)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watcher error", "error", err)
		}
	}
}

// addDirectories recursively adds all directories to the watcher.
func (w *Watcher) addDirectories(watcher *fsnotify.Watcher) error {
	return filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip errors
		}

		if !d.IsDir() {
			return nil
		}

		name := d.Name()
		if strings.HasPrefix(name, ".") && name != "." {
			return filepath.SkipDir
		}
		if w.shouldSkipDir(name) {
			return filepath.SkipDir
		}

		if err := watcher.Add(path); err != nil {
			log.Debug("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// shouldSkipDir returns true if directory should not be watched.
func (w *Watcher) shouldSkipDir(name string) bool {
	skipDirs := []string{
		"node_modules", "vendor", "dist", "build", "target",
		".git", ".idea", ".vscode",
	}
	for _, skip := range skipDirs {
		if name == skip {
			return true
		}
	}
	return false
}

// handleEvent processes a single file system event.
func (w *Watcher) handleEvent(event fsnotify.Event, watcher *fsnotify.Watcher) {
	path := event.Name

	relPath, err := filepath.Rel(w.root, path)
	if err != nil {
		relPath = path
	}

	if strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	// For new directories, add to watcher
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !w.shouldSkipDir(filepath.Base(path)) {
				watcher.Add(path)
				log.Debug("Added directory to watch", "path", relPath)
			}
			return
		}
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return
	}

	if !w.isIngestable(path) {
		return
	}

	w.debounceMu.Lock()
	w.debounce[path] = event.Op
	w.debounceMu.Unlock()
}

// isIngestable checks if a file is a document worth ingesting.
func (w *Watcher) isIngestable(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if !w.extSet[ext] {
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if w.maxFileSize > 0 && info.Size() > w.maxFileSize {
		return false
	}

	return true
}

// processDebounced processes debounced file events periodically.
func (w *Watcher) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushDebounced(ctx)
		}
	}
}

// flushDebounced processes all pending debounced events.
func (w *Watcher) flushDebounced(ctx context.Context) {
	w.debounceMu.Lock()
	if len(w.debounce) == 0 {
		w.debounceMu.Unlock()
		return
	}

	events := make(map[string]fsnotify.Op)
	for k, v := range w.debounce {
		events[k] = v
	}
	w.debounce = make(map[string]fsnotify.Op)
	w.debounceMu.Unlock()

	for path, op := range events {
		select {
		case <-ctx.Done():
			return
		default:
		}

		relPath, _ := filepath.Rel(w.root, path)

		if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
			// The store is append-only; deletions are left in place.
			log.Debug("Document removed, leaving indexed chunks", "file", relPath)
			continue
		}

		if op.Has(fsnotify.Create) || op.Has(fsnotify.Write) {
			if err := w.ingest(ctx, path, relPath); err != nil {
				log.Error("Failed to ingest document", "path", relPath, "error", err)
			} else {
				w.onEvent("ingest", relPath)
				log.Info("Ingested", "file", relPath)
			}
		}
	}
}

// ingest reads a changed document and appends its chunks.
func (w *Watcher) ingest(ctx context.Context, path, relPath string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	metadata := kb.Metadata{
		"path":         path,
		"content_hash": fs.HashContent(content),
	}

	_, err = w.manager.AddText(ctx, string(content), relPath, w.collection, metadata)
	return err
}
