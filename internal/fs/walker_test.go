package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, relPath, content string) {
	path := filepath.Join(root, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func collectDocs(t *testing.T, w *DocWalker) map[string]DocInfo {
	docs := make(map[string]DocInfo)
	err := w.Walk(func(doc DocInfo) error {
		docs[doc.RelPath] = doc
		return nil
	})
	require.NoError(t, err)
	return docs
}

func TestWalkFindsDocuments(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "readme.md", "# Readme\n\nSome documentation.")
	writeFile(t, root, "notes/plan.txt", "the plan")
	writeFile(t, root, "main.go", "package main") // Not a document type

	w, err := NewDocWalker(WalkOptions{Root: root})
	require.NoError(t, err)

	docs := collectDocs(t, w)
	assert.Len(t, docs, 2)
	assert.Contains(t, docs, "readme.md")
	assert.Contains(t, docs, filepath.Join("notes", "plan.txt"))

	stats := w.Stats()
	assert.Equal(t, 2, stats.DocsFound)
	assert.Equal(t, 1, stats.FilesSkipped)
}

func TestWalkCustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "doc.wiki", "wiki content")
	writeFile(t, root, "doc.md", "markdown content")

	w, err := NewDocWalker(WalkOptions{Root: root, Extensions: []string{"wiki"}})
	require.NoError(t, err)

	docs := collectDocs(t, w)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "doc.wiki")
}

func TestWalkSkipsHidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".hidden.md", "hidden")
	writeFile(t, root, ".secrets/inner.md", "hidden dir")
	writeFile(t, root, "visible.md", "visible")

	w, err := NewDocWalker(WalkOptions{Root: root})
	require.NoError(t, err)

	docs := collectDocs(t, w)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "visible.md")
}

func TestWalkHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "drafts/\nignored.md\n")
	writeFile(t, root, "drafts/wip.md", "draft")
	writeFile(t, root, "ignored.md", "ignored")
	writeFile(t, root, "kept.md", "kept")

	w, err := NewDocWalker(WalkOptions{Root: root, UseGitignore: true})
	require.NoError(t, err)

	docs := collectDocs(t, w)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "kept.md")
}

func TestWalkMaxFileSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.txt", "tiny")
	writeFile(t, root, "large.txt", string(make([]byte, 100)))

	w, err := NewDocWalker(WalkOptions{Root: root, MaxFileSize: 50})
	require.NoError(t, err)

	// The large file is all zero bytes, but size filtering kicks in first
	docs := collectDocs(t, w)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "small.txt")
	assert.Greater(t, w.Stats().SkippedBytes, int64(0))
}

func TestWalkSkipsBinary(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "text.txt", "readable text")
	writeFile(t, root, "binary.txt", "data\x00with\x00nulls")

	w, err := NewDocWalker(WalkOptions{Root: root})
	require.NoError(t, err)

	docs := collectDocs(t, w)
	assert.Len(t, docs, 1)
	assert.Contains(t, docs, "text.txt")
}

func TestWalkHashesContent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "same content")
	writeFile(t, root, "b.txt", "same content")
	writeFile(t, root, "c.txt", "different content")

	w, err := NewDocWalker(WalkOptions{Root: root})
	require.NoError(t, err)

	docs := collectDocs(t, w)
	require.Len(t, docs, 3)
	assert.Equal(t, docs["a.txt"].Hash, docs["b.txt"].Hash)
	assert.NotEqual(t, docs["a.txt"].Hash, docs["c.txt"].Hash)
	assert.Equal(t, HashContent([]byte("same content")), docs["a.txt"].Hash)
}

func TestWalkRootErrors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		_, err := NewDocWalker(WalkOptions{Root: filepath.Join(t.TempDir(), "nope")})
		assert.Error(t, err)
	})

	t.Run("root is a file", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, root, "file.txt", "content")
		_, err := NewDocWalker(WalkOptions{Root: filepath.Join(root, "file.txt")})
		assert.Error(t, err)
	})
}

func TestIsBinaryContent(t *testing.T) {
	assert.False(t, isBinaryContent([]byte("plain text\nwith lines\n")))
	assert.False(t, isBinaryContent([]byte{}))
	assert.True(t, isBinaryContent([]byte{0x00, 0x01, 0x02}))
	assert.True(t, isBinaryContent([]byte("x\x00y")))
}
