package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestEmbedIsDeterministicAndNormalised(t *testing.T) {
	e := NewEmbedder(0)
	assert.Equal(t, DefaultDimension, e.Dimension())

	a, err := e.Embed(context.Background(), "Cats are mammals")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Cats are mammals")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDimension)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
}

func TestEmbedRanksSharedTermsHigher(t *testing.T) {
	e := NewEmbedder(512)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "are cats mammals?")
	cats, _ := e.Embed(ctx, "cats are mammals")
	dogs, _ := e.Embed(ctx, "dogs are mammals")
	rocks, _ := e.Embed(ctx, "rocks are not alive")

	assert.InDelta(t, 1.0, cosine(q, cats), 1e-6)
	assert.Greater(t, cosine(q, dogs), cosine(q, rocks))
	assert.InDelta(t, 0.0, cosine(q, rocks), 1e-6)
}

func TestEmbedStopwordsOnlyYieldsZeroVector(t *testing.T) {
	vec, err := NewEmbedder(64).Embed(context.Background(), "what is the")
	require.NoError(t, err)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	e := NewEmbedder(128)
	texts := []string{"alpha", "beta", "gamma"}
	vecs, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, text := range texts {
		want, _ := e.Embed(context.Background(), text)
		assert.Equal(t, want, vecs[i])
	}
}

func TestEmbedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEmbedder(8).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}
