package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/astdb-dev/astdb/internal/ast"
)

// l1Tier is the in-process LRU tier: golang-lru bounded by entry count,
// extended with a running byte-size ceiling and per-entry TTL (the
// library itself only bounds by entry count).
type l1Tier struct {
	mu        sync.Mutex
	entries   *lru.Cache[string, *ast.CacheEntry[[]byte]]
	maxBytes  int64
	curBytes  int64
	hits      int64
	misses    int64
	evictions int64
}

func newL1Tier(maxEntries int, maxBytes int64) *l1Tier {
	c, _ := lru.New[string, *ast.CacheEntry[[]byte]](maxEntries)
	return &l1Tier{entries: c, maxBytes: maxBytes}
}

func (t *l1Tier) get(key string, now time.Time) (*ast.CacheEntry[[]byte], bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries.Get(key)
	if !ok {
		t.misses++
		return nil, false
	}
	if entry.Expired(now) {
		t.entries.Remove(key)
		t.curBytes -= entry.ByteSize
		t.misses++
		t.evictions++
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	t.hits++
	return entry, true
}

func (t *l1Tier) set(entry *ast.CacheEntry[[]byte]) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry.Level = int(LevelL1)
	if old, ok := t.entries.Get(entry.Key); ok {
		t.curBytes -= old.ByteSize
	}
	t.entries.Add(entry.Key, entry)
	t.curBytes += entry.ByteSize

	for t.curBytes > t.maxBytes && t.entries.Len() > 0 {
		_, old, ok := t.entries.RemoveOldest()
		if !ok {
			break
		}
		t.curBytes -= old.ByteSize
		t.evictions++
	}
}

func (t *l1Tier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.entries.Get(key); ok {
		t.curBytes -= old.ByteSize
	}
	t.entries.Remove(key)
}

func (t *l1Tier) keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries.Keys()
}

func (t *l1Tier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries.Purge()
	t.curBytes = 0
}

// sweep removes expired entries; invoked on a ticker by the manager.
func (t *l1Tier) sweep(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, key := range t.entries.Keys() {
		entry, ok := t.entries.Peek(key)
		if !ok {
			continue
		}
		if entry.Expired(now) {
			t.entries.Remove(key)
			t.curBytes -= entry.ByteSize
			t.evictions++
		}
	}
}

func (t *l1Tier) stats() LevelStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return LevelStats{
		Hits:      t.hits,
		Misses:    t.misses,
		Evictions: t.evictions,
		Entries:   t.entries.Len(),
		Bytes:     t.curBytes,
	}
}
