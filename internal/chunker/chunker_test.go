package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("zero options get defaults", func(t *testing.T) {
		c := New(Options{})

		assert.Equal(t, 1000, c.opts.ChunkSize)
		assert.Equal(t, []string{"\n\n", "\n", ". ", " ", ""}, c.opts.Separators)
	})

	t.Run("overlap clamped below chunk size", func(t *testing.T) {
		c := New(Options{ChunkSize: 10, ChunkOverlap: 10})

		assert.Equal(t, 9, c.opts.ChunkOverlap)
	})

	t.Run("hard-split fallback appended", func(t *testing.T) {
		c := New(Options{ChunkSize: 10, Separators: []string{"\n"}})

		assert.Equal(t, []string{"\n", ""}, c.opts.Separators)
	})
}

func TestSplitEmptyInput(t *testing.T) {
	c := New(Options{ChunkSize: 100, ChunkOverlap: 10})

	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
}

func TestSplitShortText(t *testing.T) {
	c := New(Options{ChunkSize: 1000, ChunkOverlap: 100})

	chunks := c.Split("A short document that fits in one chunk.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "A short document that fits in one chunk.", chunks[0])
}

func TestSplitRespectsChunkSize(t *testing.T) {
	c := New(Options{ChunkSize: 50, ChunkOverlap: 10})

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)
	chunks := c.Split(text)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 50, "chunk %d too large", i)
		assert.NotEmpty(t, chunk)
	}
}

// With zero overlap the chunks must concatenate back to the input
// exactly: nothing dropped, nothing duplicated.
func TestSplitReconstructionWithoutOverlap(t *testing.T) {
	c := New(Options{ChunkSize: 40, ChunkOverlap: 0})

	text := "First paragraph here.\n\nSecond paragraph with more words in it.\n\nThird one.\nA final line."
	chunks := c.Split(text)

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	c := New(Options{ChunkSize: 12, ChunkOverlap: 0})

	chunks := c.Split("aaa\n\nbbb\n\nccc")

	assert.Equal(t, []string{"aaa\n\nbbb\n\n", "ccc"}, chunks)
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	c := New(Options{ChunkSize: 10, ChunkOverlap: 3, Separators: []string{" ", ""}})

	chunks := c.Split("aaaa bbbb cccc")

	require.Equal(t, []string{"aaaa bbbb ", "bb cccc"}, chunks)
	// The second chunk starts with the tail of the first.
	assert.True(t, strings.HasPrefix(chunks[1], chunks[0][len(chunks[0])-3:]))
}

func TestSplitHardSplitsSeparatorFreeText(t *testing.T) {
	c := New(Options{ChunkSize: 10, ChunkOverlap: 0})

	chunks := c.Split(strings.Repeat("x", 25))

	assert.Equal(t, []string{
		strings.Repeat("x", 10),
		strings.Repeat("x", 10),
		strings.Repeat("x", 5),
	}, chunks)
}

func TestSplitCountsRunesNotBytes(t *testing.T) {
	c := New(Options{ChunkSize: 10, ChunkOverlap: 0})

	// 30 three-byte runes with no separators.
	chunks := c.Split(strings.Repeat("語", 30))

	require.Len(t, chunks, 3)
	for _, chunk := range chunks {
		assert.Equal(t, 10, utf8.RuneCountInString(chunk))
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := New(Options{ChunkSize: 60, ChunkOverlap: 15})

	text := strings.Repeat("Sentences repeat here. Some more text follows.\n\n", 10)
	first := c.Split(text)
	second := c.Split(text)

	assert.Equal(t, first, second)
}

func TestSplitLongSingleParagraph(t *testing.T) {
	c := New(Options{ChunkSize: 50, ChunkOverlap: 0})

	// No paragraph breaks: must cascade down to sentence and word splits.
	text := strings.Repeat("A sentence that keeps going and going here. ", 10)
	chunks := c.Split(text)

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, chunk := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 50)
	}
}
