// Package extractive answers offline by quoting the context sentences that
// best match the question.
package extractive

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"ragcorpus/internal/domain"
)

var _ domain.Generator = (*Generator)(nil)

// Generator ranks context sentences by word frequency (stopwords filtered),
// counting only sentences that share a term with the question.
type Generator struct {
	maxSentences int
	tokenPattern *regexp.Regexp
	sentences    *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewGenerator creates a frequency-based extractive generator.
func NewGenerator(maxSentences int) *Generator {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &Generator{
		maxSentences: maxSentences,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		sentences:    regexp.MustCompile(`[^.!?\n]+[.!?]*`),
		stopwords:    defaultStopwords(),
	}
}

func (g *Generator) Name() string { return "extractive" }

// Generate returns the best matching sentences in context order, or
// domain.InsufficientInformation when nothing in the context matches.
func (g *Generator) Generate(ctx context.Context, p domain.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	question := map[string]struct{}{}
	for _, tok := range g.tokens(p.Question) {
		question[tok] = struct{}{}
	}
	sentences := g.split(p.Context)
	if len(question) == 0 || len(sentences) == 0 {
		return domain.InsufficientInformation, nil
	}

	// Compute word frequencies
	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range g.tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}

	type pair struct {
		idx   int
		score float64
	}
	var scores []pair
	for i, sent := range sentences {
		toks := g.tokens(sent)
		hits, score := 0, 0.0
		for _, tok := range toks {
			if _, ok := question[tok]; ok {
				hits++
				score += 1 + freq[tok]
			}
		}
		if hits == 0 {
			continue
		}
		// Normalize by sentence length to avoid bias
		scores = append(scores, pair{i, score / math.Sqrt(float64(len(toks)))})
	}
	if len(scores) == 0 {
		return domain.InsufficientInformation, nil
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	n := min(g.maxSentences, len(scores))
	selected := make([]int, n)
	for i := 0; i < n; i++ {
		selected[i] = scores[i].idx
	}
	// Keep original order among selected
	sort.Ints(selected)
	out := make([]string, 0, n)
	for _, idx := range selected {
		out = append(out, sentences[idx])
	}
	return strings.Join(out, " "), nil
}

// split drops the "# Chunk" header lines and cuts the rest into sentences.
func (g *Generator) split(context string) []string {
	var body strings.Builder
	for _, line := range strings.Split(context, "\n") {
		if strings.HasPrefix(line, "# Chunk ") {
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	var out []string
	for _, s := range g.sentences.FindAllString(body.String(), -1) {
		if s = strings.TrimSpace(s); len(g.tokens(s)) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func (g *Generator) tokens(text string) []string {
	raw := g.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := g.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "whom", "when", "where", "why", "how", "do", "does", "did", "i", "you", "we", "my", "our", "me",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
