package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Initialize_AcquiresWorkspaceLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, ".lock")

	s := &SQLiteStore{}
	require.NoError(t, s.Initialize(context.Background(), Config{
		Path:     filepath.Join(dir, "metadata.db"),
		LockPath: lockPath,
	}))
	defer s.Shutdown(context.Background())

	assert.True(t, s.lock.Locked())
}

func TestSQLiteStore_Initialize_SecondStoreFailsOnHeldLock(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, ".lock")

	first := &SQLiteStore{}
	require.NoError(t, first.Initialize(context.Background(), Config{
		Path:     filepath.Join(dir, "metadata.db"),
		LockPath: lockPath,
	}))
	defer first.Shutdown(context.Background())

	second := &SQLiteStore{}
	err := second.Initialize(context.Background(), Config{
		Path:     filepath.Join(dir, "metadata2.db"),
		LockPath: lockPath,
	})
	require.Error(t, err)
}

func TestSQLiteStore_Shutdown_ReleasesLockForReacquisition(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, ".lock")
	dbPath := filepath.Join(dir, "metadata.db")

	first := &SQLiteStore{}
	require.NoError(t, first.Initialize(context.Background(), Config{Path: dbPath, LockPath: lockPath}))
	require.NoError(t, first.Shutdown(context.Background()))

	second := &SQLiteStore{}
	err := second.Initialize(context.Background(), Config{Path: dbPath, LockPath: lockPath})
	require.NoError(t, err)
	defer second.Shutdown(context.Background())
}

func TestSQLiteStore_Initialize_NoLockPathSkipsLocking(t *testing.T) {
	dir := t.TempDir()
	s := &SQLiteStore{}
	require.NoError(t, s.Initialize(context.Background(), Config{Path: filepath.Join(dir, "metadata.db")}))
	defer s.Shutdown(context.Background())

	assert.Nil(t, s.lock)
}
