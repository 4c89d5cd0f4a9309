package cache

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/store"
)

// l3Tier is the embedded-database tier: same SQLite native/portable
// backend pair as internal/store, holding both cache rows and the query
// log.
type l3Tier struct {
	mu  sync.Mutex
	db  *sql.DB
	hits, misses, evictions int64
}

func newL3Tier(path string, preferNative bool) (*l3Tier, error) {
	if path == "" {
		return nil, nil
	}
	db, _, err := store.OpenConnection(path, preferNative)
	if err != nil {
		return nil, err
	}
	if err := initL3Schema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize l3 cache schema: %w", err)
	}
	return &l3Tier{db: db}, nil
}

func (t *l3Tier) close() error {
	if t == nil || t.db == nil {
		return nil
	}
	return t.db.Close()
}

func (t *l3Tier) get(key string, now time.Time) (*ast.CacheEntry[[]byte], bool) {
	var value []byte
	var createdAt, lastAccessed time.Time
	var ttlNS int64
	var accessCount int64
	var byteSize int64

	row := t.db.QueryRow(`
		SELECT value, created_at, ttl_ns, access_count, last_accessed, byte_size
		FROM cache_entries WHERE key = ?
	`, key)
	err := row.Scan(&value, &createdAt, &ttlNS, &accessCount, &lastAccessed, &byteSize)
	if err == sql.ErrNoRows {
		t.mu.Lock()
		t.misses++
		t.mu.Unlock()
		return nil, false
	}
	if err != nil {
		t.mu.Lock()
		t.misses++
		t.mu.Unlock()
		return nil, false
	}

	entry := &ast.CacheEntry[[]byte]{
		Key:          key,
		Value:        value,
		CreatedAt:    createdAt,
		TTL:          time.Duration(ttlNS),
		AccessCount:  accessCount,
		LastAccessed: lastAccessed,
		ByteSize:     byteSize,
		Level:        int(LevelL3),
	}
	if entry.Expired(now) {
		t.delete(key)
		t.mu.Lock()
		t.misses++
		t.mu.Unlock()
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessed = now
	_, _ = t.db.Exec(`UPDATE cache_entries SET access_count = ?, last_accessed = ? WHERE key = ?`,
		entry.AccessCount, entry.LastAccessed, key)

	t.mu.Lock()
	t.hits++
	t.mu.Unlock()
	return entry, true
}

func (t *l3Tier) set(entry *ast.CacheEntry[[]byte]) error {
	_, err := t.db.Exec(`
		INSERT INTO cache_entries (key, value, created_at, ttl_ns, access_count, last_accessed, byte_size)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			ttl_ns = excluded.ttl_ns,
			access_count = excluded.access_count,
			last_accessed = excluded.last_accessed,
			byte_size = excluded.byte_size
	`, entry.Key, entry.Value, entry.CreatedAt, int64(entry.TTL), entry.AccessCount, entry.LastAccessed, entry.ByteSize)
	return err
}

func (t *l3Tier) delete(key string) {
	_, _ = t.db.Exec(`DELETE FROM cache_entries WHERE key = ?`, key)
}

func (t *l3Tier) keys() []string {
	rows, err := t.db.Query(`SELECT key FROM cache_entries`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if rows.Scan(&k) == nil {
			out = append(out, k)
		}
	}
	return out
}

func (t *l3Tier) clear() {
	_, _ = t.db.Exec(`DELETE FROM cache_entries`)
}

func (t *l3Tier) sweep(now time.Time) {
	rows, err := t.db.Query(`SELECT key, created_at, ttl_ns FROM cache_entries WHERE ttl_ns > 0`)
	if err != nil {
		return
	}
	var expired []string
	for rows.Next() {
		var key string
		var createdAt time.Time
		var ttlNS int64
		if rows.Scan(&key, &createdAt, &ttlNS) != nil {
			continue
		}
		if now.Sub(createdAt) > time.Duration(ttlNS) {
			expired = append(expired, key)
		}
	}
	rows.Close()

	for _, key := range expired {
		t.delete(key)
	}
	if len(expired) > 0 {
		t.mu.Lock()
		t.evictions += int64(len(expired))
		t.mu.Unlock()
	}
}

func (t *l3Tier) stats() LevelStats {
	t.mu.Lock()
	hits, misses, evictions := t.hits, t.misses, t.evictions
	t.mu.Unlock()

	var entries int
	var bytes int64
	_ = t.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(byte_size), 0) FROM cache_entries`).Scan(&entries, &bytes)

	return LevelStats{Hits: hits, Misses: misses, Evictions: evictions, Entries: entries, Bytes: bytes}
}

// logQuery appends one row to the query log — the L3 tier's dual role
// as cache backend and audit trail.
func (t *l3Tier) logQuery(q ast.QueryLog) error {
	_, err := t.db.Exec(`
		INSERT INTO query_log (query_text, query_hash, options_json, result_count, execution_ms, cache_hit, cache_level, timestamp, index_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.QueryText, q.QueryHash, q.OptionsJSON, q.ResultCount, q.ExecutionMS, q.CacheHit, q.CacheLevel, q.Timestamp, q.IndexVersion)
	return err
}

// getTopQueries returns the most frequent query hashes, ranked by how
// often each was logged.
func (t *l3Tier) getTopQueries(limit int) ([]TopQuery, error) {
	rows, err := t.db.Query(`
		SELECT query_hash, query_text, COUNT(*) as cnt
		FROM query_log
		GROUP BY query_hash
		ORDER BY cnt DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TopQuery
	for rows.Next() {
		var tq TopQuery
		if err := rows.Scan(&tq.QueryHash, &tq.QueryText, &tq.Count); err != nil {
			return nil, err
		}
		out = append(out, tq)
	}
	return out, rows.Err()
}

// TopQuery is one row of get_top_queries(limit).
type TopQuery struct {
	QueryHash string
	QueryText string
	Count     int64
}
