package chunker

import (
	"regexp"
	"strings"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Chunk implements domain.Chunker. Trailing text without terminal
// punctuation is kept as a final sentence.
func (c *SentenceChunker) Chunk(text string) []string {
	clean := Clean(text)
	if strings.TrimSpace(clean) == "" {
		return []string{}
	}
	sentences := c.sentences(clean)

	var chunks []string
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}

func (c *SentenceChunker) sentences(text string) []string {
	locs := c.splitter.FindAllStringIndex(text, -1)
	out := make([]string, 0, len(locs)+1)
	last := 0
	for _, loc := range locs {
		if s := strings.TrimSpace(text[loc[0]:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
