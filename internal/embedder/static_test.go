package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Embed_Deterministic(t *testing.T) {
	e := NewStaticEmbedder(32)
	ctx := context.Background()

	first, err := e.Embed(ctx, "func calculateTotal(items []Item) float64")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "func calculateTotal(items []Item) float64")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 32)
}

func TestStaticEmbedder_Embed_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder(32)
	ctx := context.Background()

	a, err := e.Embed(ctx, "func readFile(path string) ([]byte, error)")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "class HttpServer extends BaseServer")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbedder_Embed_EmptyTextReturnsZeroVector(t *testing.T) {
	e := NewStaticEmbedder(16)
	result, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	for _, x := range result {
		assert.Zero(t, x)
	}
}

func TestStaticEmbedder_Embed_IsUnitNormalized(t *testing.T) {
	e := NewStaticEmbedder(64)
	result, err := e.Embed(context.Background(), "parseExpression(tokens)")
	require.NoError(t, err)

	var sumSquares float64
	for _, x := range result {
		sumSquares += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSquares, 1e-4)
}

func TestStaticEmbedder_EmbedBatch_MatchesIndividualEmbed(t *testing.T) {
	e := NewStaticEmbedder(32)
	ctx := context.Background()
	texts := []string{"func foo()", "func bar()"}

	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestStaticEmbedder_EmbedBatch_Empty(t *testing.T) {
	e := NewStaticEmbedder(32)
	result, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestStaticEmbedder_AvailableAndClose(t *testing.T) {
	e := NewStaticEmbedder(8)
	assert.True(t, e.Available(context.Background()))

	require.NoError(t, e.Close())
	assert.False(t, e.Available(context.Background()))

	_, err := e.Embed(context.Background(), "text")
	require.Error(t, err)
}

func TestStaticEmbedder_DimensionsAndModelName(t *testing.T) {
	e := NewStaticEmbedder(128)
	assert.Equal(t, 128, e.Dimensions())
	assert.Equal(t, "static", e.ModelName())
}
