package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astdb-dev/astdb/internal/ast"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := Config{
		EnableL1: true,
		EnableL2: true,
		EnableL3: true,
		L2Dir:    filepath.Join(tmpDir, "l2"),
		L3Path:   filepath.Join(tmpDir, "l3-cache.db"),
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestManager_SetThenGet_HitsL1(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("result"), time.Minute)

	value, level, ok := m.Get("query:abc")
	require.True(t, ok)
	assert.Equal(t, LevelL1, level)
	assert.Equal(t, []byte("result"), value)
}

func TestManager_Get_MissEverywhere(t *testing.T) {
	m := newTestManager(t)
	value, level, ok := m.Get("nope")
	assert.False(t, ok)
	assert.Equal(t, LevelNone, level)
	assert.Nil(t, value)
}

func TestManager_Get_PromotesFromL2ToL1(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("result"), time.Minute)

	// Delete L1's copy directly so the next Get must fall through to L2.
	m.l1.delete("query:abc")

	value, level, ok := m.Get("query:abc")
	require.True(t, ok)
	assert.Equal(t, LevelL2, level)
	assert.Equal(t, []byte("result"), value)

	// Promotion should have backfilled L1.
	_, ok = m.l1.get("query:abc", time.Now())
	assert.True(t, ok)
	assert.Equal(t, int64(1), m.Stats().Promotions)
}

func TestManager_Get_PromotesFromL3ToL2AndL1(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("result"), time.Minute)

	m.l1.delete("query:abc")
	m.l2.delete("query:abc")

	value, level, ok := m.Get("query:abc")
	require.True(t, ok)
	assert.Equal(t, LevelL3, level)
	assert.Equal(t, []byte("result"), value)

	_, ok = m.l1.get("query:abc", time.Now())
	assert.True(t, ok)
	_, ok = m.l2.get("query:abc", time.Now())
	assert.True(t, ok)
}

func TestManager_DisablePromotion_HitsDoNotBackfill(t *testing.T) {
	tmpDir := t.TempDir()
	m, err := New(Config{
		EnableL1:         true,
		EnableL2:         true,
		DisablePromotion: true,
		L2Dir:            filepath.Join(tmpDir, "l2"),
	}, nil)
	require.NoError(t, err)
	defer m.Close()

	m.Set("query:abc", []byte("result"), time.Minute)
	m.l1.delete("query:abc")

	_, level, ok := m.Get("query:abc")
	require.True(t, ok)
	assert.Equal(t, LevelL2, level)

	_, ok = m.l1.get("query:abc", time.Now())
	assert.False(t, ok, "promotion was disabled; L1 must not be backfilled")
}

func TestManager_Delete_RemovesFromEveryLevel(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("result"), time.Minute)

	m.Delete("query:abc")

	_, _, ok := m.Get("query:abc")
	assert.False(t, ok)
}

func TestManager_Invalidate_ExactString(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("1"), time.Minute)
	m.Set("query:def", []byte("2"), time.Minute)

	event := m.Invalidate("manual", "query:abc", "")
	assert.Equal(t, []string{"query:abc"}, event.Keys)

	_, _, ok := m.Get("query:abc")
	assert.False(t, ok)
	_, _, ok = m.Get("query:def")
	assert.True(t, ok)
}

func TestManager_Invalidate_RegexPattern(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("1"), time.Minute)
	m.Set("query:def", []byte("2"), time.Minute)
	m.Set("other:xyz", []byte("3"), time.Minute)

	event := m.Invalidate("rebuild", "query:.*", "")
	assert.ElementsMatch(t, []string{"query:abc", "query:def"}, event.Keys)

	_, _, ok := m.Get("other:xyz")
	assert.True(t, ok)
	assert.Equal(t, int64(1), m.Stats().Invalidations)
}

func TestManager_WarmCache_PopulatesAllLevels(t *testing.T) {
	m := newTestManager(t)
	m.WarmCache([]WarmEntry{{Key: "warm:1", Value: []byte("v1"), TTL: time.Minute}})

	_, ok := m.l1.get("warm:1", time.Now())
	assert.True(t, ok)
	_, ok = m.l2.get("warm:1", time.Now())
	assert.True(t, ok)
	_, ok = m.l3.get("warm:1", time.Now())
	assert.True(t, ok)
}

func TestManager_WarmCache_NoopWhenDisabled(t *testing.T) {
	m, err := New(Config{EnableL1: true, DisableWarming: true}, nil)
	require.NoError(t, err)
	defer m.Close()

	m.WarmCache([]WarmEntry{{Key: "warm:1", Value: []byte("v1")}})
	_, _, ok := m.Get("warm:1")
	assert.False(t, ok)
}

func TestManager_Clear_PreservesHitMissHistory(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("1"), time.Minute)
	_, _, _ = m.Get("query:abc")
	_, _, _ = m.Get("missing")

	statsBefore := m.Stats()
	require.Greater(t, statsBefore.L1.Hits+statsBefore.L1.Misses, int64(0))

	m.Clear()
	_, _, ok := m.Get("query:abc")
	assert.False(t, ok)

	statsAfter := m.Stats()
	assert.GreaterOrEqual(t, statsAfter.L1.Hits+statsAfter.L1.Misses, statsBefore.L1.Hits+statsBefore.L1.Misses)
}

func TestManager_TTLExpiry_Get(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("result"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	_, _, ok := m.Get("query:abc")
	assert.False(t, ok)
}

func TestManager_LogQuery_AndGetTopQueries(t *testing.T) {
	m := newTestManager(t)
	err := m.LogQuery(ast.QueryLog{
		QueryText:   "find widget",
		QueryHash:   "hash1",
		ResultCount: 3,
		ExecutionMS: 1.5,
		Timestamp:   time.Now(),
	})
	require.NoError(t, err)
	err = m.LogQuery(ast.QueryLog{
		QueryText:   "find widget",
		QueryHash:   "hash1",
		ResultCount: 3,
		ExecutionMS: 1.2,
		Timestamp:   time.Now(),
	})
	require.NoError(t, err)

	top, err := m.GetTopQueries(5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, int64(2), top[0].Count)
}

func TestManager_OverallHitRate(t *testing.T) {
	m := newTestManager(t)
	m.Set("query:abc", []byte("result"), time.Minute)
	_, _, _ = m.Get("query:abc")
	_, _, _ = m.Get("query:abc")
	_, _, _ = m.Get("missing")

	// The miss on "missing" is counted once at each of the three levels.
	stats := m.Stats()
	assert.InDelta(t, 2.0/5.0, stats.OverallHitRate, 1e-9)
}
