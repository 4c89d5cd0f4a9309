package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astdb-dev/astdb/internal/queryengine"
)

const sampleGoSource = `package sample

// Greet returns a greeting for name.
func Greet(name string) string {
	return "hello " + name
}

// Add returns the sum of a and b.
func Add(a, b int) int {
	return a + b
}
`

func writeSampleProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "sample.go"), []byte(sampleGoSource), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "vendor"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "vendor", "ignored.go"), []byte(sampleGoSource), 0o644))
	return root
}

func TestRunParse_IndexesRecognizedFiles(t *testing.T) {
	root := writeSampleProject(t)
	ctx := context.Background()

	require.NoError(t, runParse(ctx, root))

	eng, err := openEngine(ctx, root)
	require.NoError(t, err)
	defer eng.Close(ctx)

	stats, err := eng.facade.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount, "Greet and Add, vendor/ skipped")
}

func TestRunParse_SkipsVendorDirectory(t *testing.T) {
	root := writeSampleProject(t)
	ctx := context.Background()

	require.NoError(t, runParse(ctx, root))

	eng, err := openEngine(ctx, root)
	require.NoError(t, err)
	defer eng.Close(ctx)

	results, err := eng.query.Search(ctx, "query", "Greet", mustEmbed(t, eng, "Greet"), queryengine.Options{})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotContains(t, r.Metadata.FilePath, "vendor")
	}
}

func TestRunParse_SecondRunIsIdempotentOnUnchangedFiles(t *testing.T) {
	root := writeSampleProject(t)
	ctx := context.Background()

	require.NoError(t, runParse(ctx, root))
	require.NoError(t, runParse(ctx, root))

	eng, err := openEngine(ctx, root)
	require.NoError(t, err)
	defer eng.Close(ctx)

	stats, err := eng.facade.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NodeCount, "re-parsing unchanged files must not duplicate nodes")
}

func mustEmbed(t *testing.T, eng *engine, text string) []float32 {
	t.Helper()
	vec, err := eng.embed.Embed(context.Background(), text)
	require.NoError(t, err)
	return vec
}
