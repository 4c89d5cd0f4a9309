package vectordb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/store"
	"github.com/astdb-dev/astdb/internal/vectorindex"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	tmpDir := t.TempDir()

	metadata, err := store.NewSQLiteStore(filepath.Join(tmpDir, "metadata.db"))
	require.NoError(t, err)

	cfg := Config{
		Dimensions:  4,
		MaxElements: 16,
		Space:       vectorindex.SpaceCosine,
		IndexFile:   filepath.Join(tmpDir, "index.bin"),
	}
	f, err := Open(context.Background(), metadata, cfg, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = f.Shutdown(context.Background()) })
	return f
}

func testNode(id string) *ast.Node {
	return &ast.Node{ID: id, Kind: ast.KindFunction, FilePath: "pkg/thing.go"}
}

func TestFacade_Open_StartsReady(t *testing.T) {
	f := newTestFacade(t)
	assert.Equal(t, StatusReady, f.Status())
}

func TestFacade_InsertAndSearchSimilar(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	_, err := f.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)
	_, err = f.InsertVector(ctx, "b", []float32{0, 1, 0, 0}, testNode("b"))
	require.NoError(t, err)
	_, err = f.InsertVector(ctx, "c", []float32{0.9, 0.1, 0, 0}, testNode("c"))
	require.NoError(t, err)

	results, err := f.SearchSimilar(ctx, []float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].NodeID)
	assert.Equal(t, "c", results[1].NodeID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestFacade_SearchSimilar_TieBreaksByAscendingLabel(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	// Two identical vectors: equal distance, so the earlier-assigned
	// label (lower) must sort first regardless of insertion timing noise.
	_, err := f.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)
	_, err = f.InsertVector(ctx, "b", []float32{1, 0, 0, 0}, testNode("b"))
	require.NoError(t, err)

	results, err := f.SearchSimilar(ctx, []float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].NodeID)
	assert.Equal(t, "b", results[1].NodeID)
}

func TestFacade_DeleteVector_ExcludesFromSearch(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	_, err := f.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)
	_, err = f.InsertVector(ctx, "b", []float32{0, 1, 0, 0}, testNode("b"))
	require.NoError(t, err)

	deleted, err := f.DeleteVector(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	results, err := f.SearchSimilar(ctx, []float32{1, 0, 0, 0}, 2, 0)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.NodeID)
	}
}

func TestFacade_DeleteVector_AbsentIsNoop(t *testing.T) {
	f := newTestFacade(t)
	deleted, err := f.DeleteVector(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestFacade_UpdateVector_ReindexesOnNewEmbedding(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	_, err := f.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)

	err = f.UpdateVector(ctx, store.VectorUpdate{NodeID: "a", Embedding: []float32{0, 1, 0, 0}})
	require.NoError(t, err)

	results, err := f.SearchSimilar(ctx, []float32{0, 1, 0, 0}, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].NodeID)
	assert.Greater(t, results[0].Score, 0.99)
}

// Rebuild must preserve the live count and, for every surviving node,
// return the same search distance for the same query vector before and
// after.
func TestFacade_Rebuild_PreservesCountAndDistances(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	_, err := f.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)
	_, err = f.InsertVector(ctx, "b", []float32{0, 1, 0, 0}, testNode("b"))
	require.NoError(t, err)
	_, err = f.InsertVector(ctx, "c", []float32{0.9, 0.1, 0, 0}, testNode("c"))
	require.NoError(t, err)
	_, err = f.DeleteVector(ctx, "b")
	require.NoError(t, err)

	query := []float32{1, 0, 0, 0}
	before, err := f.SearchSimilar(ctx, query, 10, 0)
	require.NoError(t, err)

	require.NoError(t, f.Rebuild(ctx))
	assert.Equal(t, StatusReady, f.Status())

	stats, err := f.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.IndexCount)

	after, err := f.SearchSimilar(ctx, query, 10, 0)
	require.NoError(t, err)

	require.Len(t, after, len(before))
	beforeByNode := make(map[string]float32, len(before))
	for _, r := range before {
		beforeByNode[r.NodeID] = r.Distance
	}
	for _, r := range after {
		d, ok := beforeByNode[r.NodeID]
		require.True(t, ok, "node %s present after rebuild but absent before", r.NodeID)
		assert.InDelta(t, d, r.Distance, 1e-5)
	}
}

func TestFacade_Rebuild_InvokesHook(t *testing.T) {
	tmpDir := t.TempDir()
	metadata, err := store.NewSQLiteStore(filepath.Join(tmpDir, "metadata.db"))
	require.NoError(t, err)

	called := false
	cfg := Config{
		Dimensions:     4,
		MaxElements:    16,
		Space:          vectorindex.SpaceCosine,
		IndexFile:      filepath.Join(tmpDir, "index.bin"),
		OnIndexRebuild: func() { called = true },
	}
	f, err := Open(context.Background(), metadata, cfg, nil)
	require.NoError(t, err)
	defer f.Shutdown(context.Background())

	require.NoError(t, f.Rebuild(context.Background()))
	assert.True(t, called)
}

func TestFacade_InsertVector_DuplicateFails(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	_, err := f.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)

	_, err = f.InsertVector(ctx, "a", []float32{0, 1, 0, 0}, testNode("a"))
	require.Error(t, err)
}

func TestFacade_InsertVector_GrowsIndexAtCapacity(t *testing.T) {
	tmpDir := t.TempDir()
	metadata, err := store.NewSQLiteStore(filepath.Join(tmpDir, "metadata.db"))
	require.NoError(t, err)

	rebuilds := 0
	cfg := Config{
		Dimensions:     4,
		MaxElements:    2,
		Space:          vectorindex.SpaceCosine,
		IndexFile:      filepath.Join(tmpDir, "index.bin"),
		OnIndexRebuild: func() { rebuilds++ },
	}
	f, err := Open(context.Background(), metadata, cfg, nil)
	require.NoError(t, err)
	defer f.Shutdown(context.Background())

	ctx := context.Background()
	vectors := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
	for i, vec := range vectors {
		id := string(rune('a' + i))
		_, err := f.InsertVector(ctx, id, vec, testNode(id))
		require.NoError(t, err)
	}

	assert.Greater(t, rebuilds, 0)
	assert.GreaterOrEqual(t, f.index.Capacity(), len(vectors))

	results, err := f.SearchSimilar(ctx, []float32{0, 0, 1, 0}, 4, 0)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "c", results[0].NodeID)
}
