package queryengine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/cache"
	"github.com/astdb-dev/astdb/internal/store"
	"github.com/astdb-dev/astdb/internal/vectordb"
	"github.com/astdb-dev/astdb/internal/vectorindex"
)

func newTestEngine(t *testing.T) (*Engine, *vectordb.Facade) {
	t.Helper()
	tmpDir := t.TempDir()

	metadata, err := store.NewSQLiteStore(filepath.Join(tmpDir, "metadata.db"))
	require.NoError(t, err)

	facade, err := vectordb.Open(context.Background(), metadata, vectordb.Config{
		Dimensions:  4,
		MaxElements: 16,
		Space:       vectorindex.SpaceCosine,
		IndexFile:   filepath.Join(tmpDir, "index.bin"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = facade.Shutdown(context.Background()) })

	mgr, err := cache.New(cache.Config{
		EnableL1: true,
		EnableL2: true,
		EnableL3: true,
		L2Dir:    filepath.Join(tmpDir, "l2"),
		L3Path:   filepath.Join(tmpDir, "l3-cache.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	return New(facade, mgr, Config{}), facade
}

func testNode(id string) *ast.Node {
	return &ast.Node{ID: id, Kind: ast.KindFunction, FilePath: "pkg/" + id + ".go"}
}

func TestEngine_Search_MissThenHit(t *testing.T) {
	engine, facade := newTestEngine(t)
	ctx := context.Background()

	_, err := facade.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)
	_, err = facade.InsertVector(ctx, "b", []float32{0, 1, 0, 0}, testNode("b"))
	require.NoError(t, err)

	opts := Options{TopK: 2}
	query := []float32{1, 0, 0, 0}

	first, err := engine.Search(ctx, "similar", "find a", query, opts)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].NodeID)

	second, err := engine.Search(ctx, "similar", "find a", query, opts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEngine_Search_PostFilterMinScore(t *testing.T) {
	engine, facade := newTestEngine(t)
	ctx := context.Background()

	_, err := facade.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)
	_, err = facade.InsertVector(ctx, "b", []float32{-1, 0, 0, 0}, testNode("b"))
	require.NoError(t, err)

	results, err := engine.Search(ctx, "similar", "q", []float32{1, 0, 0, 0}, Options{TopK: 5, MinScore: 0.5})
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.5)
	}
}

func TestEngine_Search_PostFilterFilePathPattern(t *testing.T) {
	engine, facade := newTestEngine(t)
	ctx := context.Background()

	_, err := facade.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, &ast.Node{ID: "a", Kind: ast.KindFunction, FilePath: "pkg/foo.go"})
	require.NoError(t, err)
	_, err = facade.InsertVector(ctx, "b", []float32{0.9, 0.1, 0, 0}, &ast.Node{ID: "b", Kind: ast.KindFunction, FilePath: "pkg/bar.go"})
	require.NoError(t, err)

	results, err := engine.Search(ctx, "similar", "q", []float32{1, 0, 0, 0}, Options{TopK: 5, FilePathPattern: `foo\.go$`})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].NodeID)
}

func TestEngine_Search_TopKTruncatesAfterFilter(t *testing.T) {
	engine, facade := newTestEngine(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := facade.InsertVector(ctx, id, []float32{1, 0, 0, 0}, testNode(id))
		require.NoError(t, err)
	}

	results, err := engine.Search(ctx, "similar", "q", []float32{1, 0, 0, 0}, Options{TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestEngine_Search_DifferentIndexVersionsMiss(t *testing.T) {
	engine, facade := newTestEngine(t)
	ctx := context.Background()

	_, err := facade.InsertVector(ctx, "a", []float32{1, 0, 0, 0}, testNode("a"))
	require.NoError(t, err)

	opts := Options{TopK: 1}
	_, err = engine.Search(ctx, "similar", "q", []float32{1, 0, 0, 0}, opts)
	require.NoError(t, err)

	require.NoError(t, facade.Rebuild(ctx))

	results, err := engine.Search(ctx, "similar", "q", []float32{1, 0, 0, 0}, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
}
