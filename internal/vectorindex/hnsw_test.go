package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AddAndSearch(t *testing.T) {
	// Given: empty cosine index with 4 dimensions
	ix, err := New(Config{Dimensions: 4})
	require.NoError(t, err)
	defer ix.Close()

	// And: vectors under labels 0="a"-like, 1="b"-like, 2=close to 0
	require.NoError(t, ix.Add(context.Background(), 0, []float32{1, 0, 0, 0}))
	require.NoError(t, ix.Add(context.Background(), 1, []float32{0, 1, 0, 0}))
	require.NoError(t, ix.Add(context.Background(), 2, []float32{0.9, 0.1, 0, 0}))

	// When: I search for [1,0,0,0] with k=2
	results, err := ix.Search(context.Background(), []float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)

	// Then: label 0 (exact match) comes back first, label 2 (near match) second
	require.Len(t, results, 2)
	assert.Equal(t, uint64(0), results[0].Label)
	assert.Equal(t, uint64(2), results[1].Label)
	assert.Less(t, results[0].Distance, results[1].Distance)
}

func TestIndex_MarkDeleted_ExcludedFromSearch(t *testing.T) {
	ix, err := New(Config{Dimensions: 4})
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(context.Background(), 0, []float32{1, 0, 0, 0}))
	require.NoError(t, ix.Add(context.Background(), 1, []float32{0, 1, 0, 0}))

	ok := ix.MarkDeleted(0)
	assert.True(t, ok)
	assert.Equal(t, 1, ix.Count())

	results, err := ix.Search(context.Background(), []float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint64(0), r.Label)
	}
}

func TestIndex_MarkDeleted_AlreadyGone(t *testing.T) {
	ix, err := New(Config{Dimensions: 4})
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(context.Background(), 0, []float32{1, 0, 0, 0}))
	require.True(t, ix.MarkDeleted(0))
	assert.False(t, ix.MarkDeleted(0), "deleting an already-tombstoned label is a no-op")
}

func TestIndex_Add_ReplacesSameLabel(t *testing.T) {
	ix, err := New(Config{Dimensions: 4})
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(context.Background(), 0, []float32{1, 0, 0, 0}))
	require.NoError(t, ix.Add(context.Background(), 0, []float32{0, 1, 0, 0}))

	assert.Equal(t, 1, ix.Count(), "re-adding a live label must not grow the live count")

	results, err := ix.Search(context.Background(), []float32{0, 1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(0), results[0].Label)
}

func TestIndex_Add_DimensionMismatch(t *testing.T) {
	ix, err := New(Config{Dimensions: 4})
	require.NoError(t, err)
	defer ix.Close()

	err = ix.Add(context.Background(), 0, []float32{1, 0, 0})
	var mismatch ErrDimensionMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 4, mismatch.Expected)
	assert.Equal(t, 3, mismatch.Got)
}

func TestIndex_Search_EmptyIndex(t *testing.T) {
	ix, err := New(Config{Dimensions: 4})
	require.NoError(t, err)
	defer ix.Close()

	results, err := ix.Search(context.Background(), []float32{1, 0, 0, 0}, 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_L2Space(t *testing.T) {
	ix, err := New(Config{Dimensions: 2, Space: SpaceL2})
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(context.Background(), 0, []float32{0, 0}))
	require.NoError(t, ix.Add(context.Background(), 1, []float32{10, 10}))

	results, err := ix.Search(context.Background(), []float32{0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(0), results[0].Label)
	assert.InDelta(t, 0, results[0].Distance, 1e-6)
}

func TestIndex_Stats(t *testing.T) {
	ix, err := New(Config{Dimensions: 4, MaxElements: 100})
	require.NoError(t, err)
	defer ix.Close()

	require.NoError(t, ix.Add(context.Background(), 0, []float32{1, 0, 0, 0}))
	require.NoError(t, ix.Add(context.Background(), 1, []float32{0, 1, 0, 0}))
	ix.MarkDeleted(1)

	stats := ix.Stats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 1, stats.Tombstones)
	assert.Equal(t, 100, stats.Capacity)
	assert.Equal(t, 4, stats.Dimensions)
}
