// Package embedding holds the helpers shared by embedding providers.
package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"ragcorpus/internal/domain"
)

// DefaultBatchSize is how many texts are sent to the provider per request.
const DefaultBatchSize = 50

// EmbedAll embeds texts in sequential batches of batchSize. The result has one
// vector per text at the text's index. A batch that comes back short, or with
// an empty vector, fails the whole call with domain.ErrEmbedding.
func EmbedAll(ctx context.Context, e domain.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batchSize, len(texts))
		slog.Debug("Embedding batch", "embedder", e.Name(), "from", start, "to", end)

		vecs, err := e.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %w", domain.ErrEmbedding, start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("%w: batch %d-%d returned %d vectors", domain.ErrEmbedding, start, end, len(vecs))
		}
		for i, v := range vecs {
			out[start+i] = v
		}
	}
	for i, v := range out {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: missing vector for chunk %d", domain.ErrEmbedding, i)
		}
	}
	return out, nil
}

// EmbedOne embeds a single text, typically a query.
func EmbedOne(ctx context.Context, e domain.Embedder, text string) ([]float32, error) {
	vecs, err := EmbedAll(ctx, e, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
