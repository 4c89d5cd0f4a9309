package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
)

// l2Tier is the on-disk content-addressed tier. Each entry is gob-encoded
// to a file under <dir>/<sha256-prefix>/<key-hash>, written via the same
// temp-file-then-rename idiom the HNSW index uses for its own atomic
// save — no partial write is ever observable.
type l2Tier struct {
	mu  sync.Mutex
	dir string

	// index maps key -> (path, byte size) so invalidate/keys can work
	// without re-walking the directory on every call; rebuilt from disk
	// once at construction.
	index map[string]l2IndexEntry

	maxBytes  int64
	curBytes  int64
	hits      int64
	misses    int64
	evictions int64
}

type l2IndexEntry struct {
	path string
	size int64
}

func newL2Tier(dir string, maxBytes int64) (*l2Tier, error) {
	t := &l2Tier{dir: dir, maxBytes: maxBytes, index: make(map[string]l2IndexEntry)}
	if dir == "" {
		return t, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	if err := t.rebuildIndex(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *l2Tier) rebuildIndex() error {
	return filepath.WalkDir(t.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		entry, readErr := readL2File(path)
		if readErr != nil {
			// Unreadable/corrupt entries are skipped, not fatal — they
			// simply age out on the next write to the same key.
			return nil
		}
		info, statErr := d.Info()
		size := entry.ByteSize
		if statErr == nil {
			size = info.Size()
		}
		t.index[entry.Key] = l2IndexEntry{path: path, size: size}
		t.curBytes += size
		return nil
	})
}

func (t *l2Tier) pathFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	hexSum := hex.EncodeToString(sum[:])
	return filepath.Join(t.dir, hexSum[:2], hexSum)
}

func readL2File(path string) (*ast.CacheEntry[[]byte], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry ast.CacheEntry[[]byte]
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *l2Tier) get(key string, now time.Time) (*ast.CacheEntry[[]byte], bool) {
	t.mu.Lock()
	idx, ok := t.index[key]
	t.mu.Unlock()
	if !ok {
		t.mu.Lock()
		t.misses++
		t.mu.Unlock()
		return nil, false
	}

	entry, err := readL2File(idx.path)
	if err != nil {
		t.mu.Lock()
		delete(t.index, key)
		t.curBytes -= idx.size
		t.misses++
		t.mu.Unlock()
		return nil, false
	}
	if entry.Expired(now) {
		t.deleteLocked(key)
		t.mu.Lock()
		t.misses++
		t.mu.Unlock()
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	_ = t.writeLocked(entry)

	t.mu.Lock()
	t.hits++
	t.mu.Unlock()
	return entry, true
}

func (t *l2Tier) set(entry *ast.CacheEntry[[]byte]) error {
	entry.Level = int(LevelL2)
	if err := t.writeLocked(entry); err != nil {
		return err
	}
	t.enforceCeiling()
	return nil
}

// writeLocked serializes entry to its content-addressed path via a
// temp-file-then-rename, mirroring vectorindex.Index.Save's atomicity.
func (t *l2Tier) writeLocked(entry *ast.CacheEntry[[]byte]) error {
	path := t.pathFor(entry.Key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	t.mu.Lock()
	old, existed := t.index[entry.Key]
	if existed {
		t.curBytes -= old.size
	}
	size := int64(buf.Len())
	t.index[entry.Key] = l2IndexEntry{path: path, size: size}
	t.curBytes += size
	t.mu.Unlock()
	return nil
}

func (t *l2Tier) enforceCeiling() {
	t.mu.Lock()
	over := t.curBytes > t.maxBytes
	t.mu.Unlock()
	if !over {
		return
	}
	// Evict by oldest-last-accessed until back under the ceiling; a
	// content-addressed store has no LRU order for free, so this reads
	// every entry once. Acceptable for a local dev-scale cache.
	t.mu.Lock()
	type candidate struct {
		key  string
		last time.Time
	}
	var candidates []candidate
	for key, idx := range t.index {
		entry, err := readL2File(idx.path)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{key: key, last: entry.LastAccessed})
	}
	t.mu.Unlock()

	for t.overCeiling() && len(candidates) > 0 {
		oldest := 0
		for i, c := range candidates {
			if c.last.Before(candidates[oldest].last) {
				oldest = i
			}
		}
		t.deleteLocked(candidates[oldest].key)
		t.mu.Lock()
		t.evictions++
		t.mu.Unlock()
		candidates = append(candidates[:oldest], candidates[oldest+1:]...)
	}
}

func (t *l2Tier) overCeiling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.curBytes > t.maxBytes
}

func (t *l2Tier) delete(key string) {
	t.deleteLocked(key)
}

func (t *l2Tier) deleteLocked(key string) {
	t.mu.Lock()
	idx, ok := t.index[key]
	if ok {
		delete(t.index, key)
		t.curBytes -= idx.size
	}
	t.mu.Unlock()
	if ok {
		_ = os.Remove(idx.path)
	}
}

func (t *l2Tier) keys() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.index))
	for key := range t.index {
		out = append(out, key)
	}
	return out
}

func (t *l2Tier) clear() {
	t.mu.Lock()
	idx := t.index
	t.index = make(map[string]l2IndexEntry)
	t.curBytes = 0
	t.mu.Unlock()
	for _, e := range idx {
		_ = os.Remove(e.path)
	}
}

func (t *l2Tier) sweep(now time.Time) {
	for _, key := range t.keys() {
		t.mu.Lock()
		idx, ok := t.index[key]
		t.mu.Unlock()
		if !ok {
			continue
		}
		entry, err := readL2File(idx.path)
		if err != nil || entry.Expired(now) {
			t.deleteLocked(key)
			t.mu.Lock()
			t.evictions++
			t.mu.Unlock()
		}
	}
}

func (t *l2Tier) stats() LevelStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return LevelStats{
		Hits:      t.hits,
		Misses:    t.misses,
		Evictions: t.evictions,
		Entries:   len(t.index),
		Bytes:     t.curBytes,
	}
}
