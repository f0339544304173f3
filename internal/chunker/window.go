package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultSize is the window length in characters.
	DefaultSize = 1200
	// DefaultOverlap is how many characters consecutive windows share.
	DefaultOverlap = 150
)

// WindowChunker splits text into fixed-size character windows that overlap,
// so a passage crossing a boundary still appears whole in one window.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker normalizes the parameters: size <= 0 falls back to
// DefaultSize, negative overlap to 0, and an overlap not smaller than size
// to a quarter of size.
func NewWindowChunker(size, overlap int) *WindowChunker {
	size, overlap = normalize(size, overlap)
	return &WindowChunker{size: size, overlap: overlap}
}

// Size returns the effective window size.
func (c *WindowChunker) Size() int { return c.size }

// Overlap returns the effective overlap.
func (c *WindowChunker) Overlap() int { return c.overlap }

// Chunk implements domain.Chunker.
func (c *WindowChunker) Chunk(text string) []string {
	return Split(text, c.size, c.overlap)
}

// Split cuts text into windows of size characters, each starting
// size-overlap characters after the previous one. The last window may be
// shorter; empty text yields no windows.
func Split(text string, size, overlap int) []string {
	size, overlap = normalize(size, overlap)
	runes := []rune(Clean(text))
	if len(runes) == 0 {
		return []string{}
	}

	chunks := make([]string, 0, len(runes)/(size-overlap)+1)
	for start := 0; start < len(runes); {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// Clean normalizes line endings to \n and trims trailing whitespace.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimRightFunc(text, unicode.IsSpace)
}

func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 4
	}
	return size, overlap
}
