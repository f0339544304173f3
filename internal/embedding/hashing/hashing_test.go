package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	s := 0.0
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbed_NormalizedAndStable(t *testing.T) {
	e := NewEmbedder(64)
	v1 := e.Embed("Contracts are governed by the laws of Delaware.")
	v2 := NewEmbedder(64).Embed("Contracts are governed by the laws of Delaware.")

	require.Len(t, v1, 64)
	assert.Equal(t, v1, v2)
	assert.InDelta(t, 1.0, math.Sqrt(dot(v1, v1)), 1e-5)
}

func TestEmbed_SimilarTextsScoreHigher(t *testing.T) {
	e := NewEmbedder(256)
	q := e.Embed("termination clause notice period")
	near := e.Embed("The termination clause requires a notice period of thirty days.")
	far := e.Embed("Bananas grow in tropical climates.")

	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestEmbed_OnlyStopwords(t *testing.T) {
	v := NewEmbedder(8).Embed("the and of")
	assert.Equal(t, make([]float32, 8), v)
}

func TestEmbedBatch(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	assert.Len(t, vecs, 3)
	assert.Equal(t, e.Embed("two"), vecs[1])
}
