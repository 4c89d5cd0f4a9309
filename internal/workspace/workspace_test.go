package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspace_PathsAreUnderAstdbDir(t *testing.T) {
	ws := Open("/project")

	assert.Equal(t, "/project", ws.Root())
	assert.Equal(t, "/project/.astdb", ws.Dir())
	assert.Equal(t, "/project/.astdb/config.json", ws.ConfigPath())
	assert.Equal(t, "/project/.astdb/index.bin", ws.IndexBinPath())
	assert.Equal(t, "/project/.astdb/index.meta.json", ws.IndexMetaPath())
	assert.Equal(t, "/project/.astdb/l2-disk", ws.L2DiskDir())
	assert.Equal(t, "/project/.astdb/l3-cache.db", ws.L3CachePath())
	assert.Equal(t, "/project/.astdb/.lock", ws.LockPath())
	assert.Equal(t, "/project/.astdb/models/registry.db", ws.ModelsRegistryPath())
}

func TestWorkspace_EnsureDirs_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	ws := Open(root)

	require.NoError(t, ws.EnsureDirs())

	for _, dir := range ws.Dirs() {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestWorkspace_EnsureDirs_IdempotentOnRepeatedCalls(t *testing.T) {
	root := t.TempDir()
	ws := Open(root)

	require.NoError(t, ws.EnsureDirs())
	require.NoError(t, ws.EnsureDirs())
}

func TestLock_TryLock_SecondAcquisitionFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".lock")

	first := NewLock(path)
	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	defer first.Unlock()

	second := NewLock(path)
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestLock_UnlockThenReacquire(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".lock")

	first := NewLock(path)
	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, first.Unlock())
	assert.False(t, first.Locked())

	second := NewLock(path)
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
}

func TestLock_UnlockIsSafeWhenNotLocked(t *testing.T) {
	l := NewLock(filepath.Join(t.TempDir(), ".lock"))
	assert.NoError(t, l.Unlock())
}
