// Package chunker splits raw text into overlapping segments using a
// cascade of separators, from most to least semantic.
package chunker

import (
	"strings"
	"unicode/utf8"
)

// Options configures the chunker.
type Options struct {
	// ChunkSize is the target size for each chunk in characters (runes).
	ChunkSize int

	// ChunkOverlap is the number of trailing characters of a chunk
	// carried into the start of the next chunk.
	ChunkOverlap int

	// Separators is the split cascade, tried in order. An empty string
	// as the last entry means a hard character cut and guarantees
	// termination.
	Separators []string
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    1000,
		ChunkOverlap: 100,
		Separators:   []string{"\n\n", "\n", ". ", " ", ""},
	}
}

// Chunker deterministically splits text into ordered chunks.
type Chunker struct {
	opts Options
}

// New creates a new Chunker. Zero-valued options fall back to defaults;
// a missing hard-split fallback separator is appended.
func New(opts Options) *Chunker {
	def := DefaultOptions()
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = def.ChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = def.ChunkOverlap
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize - 1
	}
	if len(opts.Separators) == 0 {
		opts.Separators = def.Separators
	}
	if opts.Separators[len(opts.Separators)-1] != "" {
		opts.Separators = append(opts.Separators, "")
	}
	return &Chunker{opts: opts}
}

// Split chunks text into ordered segments. Empty or whitespace-only
// input yields no chunks. Every chunk is at most ChunkSize runes, and
// chunks appear in original document order.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	units := c.splitUnits(text, c.opts.Separators)
	return c.mergeUnits(units)
}

// splitUnits recursively breaks text into units no larger than
// ChunkSize. Separators stay attached to the preceding unit so that
// concatenating all units reproduces the input exactly.
func (c *Chunker) splitUnits(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= c.opts.ChunkSize {
		return []string{text}
	}

	// Pick the first separator that actually occurs in the text. The
	// empty separator always matches and forces a hard cut.
	sep := ""
	rest := []string{}
	for i, s := range separators {
		if s == "" {
			sep = ""
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	if sep == "" {
		return c.hardSplit(text)
	}

	var units []string
	for _, piece := range splitAfter(text, sep) {
		if utf8.RuneCountInString(piece) <= c.opts.ChunkSize {
			units = append(units, piece)
			continue
		}
		units = append(units, c.splitUnits(piece, rest)...)
	}
	return units
}

// mergeUnits greedily packs consecutive units into chunks of up to
// ChunkSize runes, carrying the trailing ChunkOverlap runes of each
// emitted chunk into the start of the next one.
func (c *Chunker) mergeUnits(units []string) []string {
	var chunks []string

	current := ""
	currentLen := 0
	overlapLen := 0 // runes of current that are carried-over context

	for _, unit := range units {
		unitLen := utf8.RuneCountInString(unit)

		if currentLen+unitLen > c.opts.ChunkSize && currentLen > overlapLen {
			chunks = append(chunks, current)
			current = tailRunes(current, c.opts.ChunkOverlap)
			currentLen = utf8.RuneCountInString(current)
			overlapLen = currentLen

			// If the overlap alone leaves no room for the unit, start
			// the next chunk fresh rather than emitting overlap-only
			// chunks.
			if currentLen+unitLen > c.opts.ChunkSize {
				current = ""
				currentLen = 0
				overlapLen = 0
			}
		}

		current += unit
		currentLen += unitLen
	}

	if currentLen > overlapLen || len(chunks) == 0 {
		chunks = append(chunks, current)
	}

	return chunks
}

// hardSplit cuts text into ChunkSize-rune segments with no regard for
// content. Last-resort fallback for separator-free text.
func (c *Chunker) hardSplit(text string) []string {
	var units []string
	runes := []rune(text)
	for start := 0; start < len(runes); start += c.opts.ChunkSize {
		end := start + c.opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		units = append(units, string(runes[start:end]))
	}
	return units
}

// splitAfter splits text on sep keeping the separator attached to the
// preceding piece, and drops the trailing empty piece SplitAfter
// produces when text ends with sep.
func splitAfter(text, sep string) []string {
	pieces := strings.SplitAfter(text, sep)
	if n := len(pieces); n > 0 && pieces[n-1] == "" {
		pieces = pieces[:n-1]
	}
	return pieces
}

// tailRunes returns the last n runes of s.
func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
