package cache

import (
	"sync"
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/events"
)

// Manager is the multi-level cache: L1 (in-process LRU), L2 (on-disk
// content-addressed), L3 (SQLite, also the query log). Any subset of
// tiers may be disabled; the manager degrades to whatever remains
// enabled rather than failing.
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	l1 *l1Tier
	l2 *l2Tier
	l3 *l3Tier

	sink      events.Sink
	startedAt time.Time

	promotions    int64
	invalidations int64

	sweepStop chan struct{}
}

// WarmEntry is one (key, value) pair supplied to WarmCache.
type WarmEntry struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// New builds a Manager from cfg, opening the L2 directory and L3
// database as configured. A nil sink is treated as events.NopSink.
func New(cfg Config, sink events.Sink) (*Manager, error) {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = events.NopSink{}
	}

	m := &Manager{cfg: cfg, sink: sink, startedAt: time.Now()}

	if cfg.EnableL1 {
		m.l1 = newL1Tier(cfg.L1MaxEntries, cfg.L1MaxBytes)
	}
	if cfg.EnableL2 {
		l2, err := newL2Tier(cfg.L2Dir, cfg.L2MaxBytes)
		if err != nil {
			return nil, err
		}
		m.l2 = l2
	}
	if cfg.EnableL3 {
		l3, err := newL3Tier(cfg.L3Path, cfg.L3PreferNative)
		if err != nil {
			return nil, err
		}
		m.l3 = l3
	}

	m.sweepStop = make(chan struct{})
	go m.sweepLoop()

	return m, nil
}

func (m *Manager) sweepLoop() {
	interval := m.cfg.L1SweepEvery
	if m.cfg.L2SweepEvery < interval {
		interval = m.cfg.L2SweepEvery
	}
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.sweepStop:
			return
		case now := <-ticker.C:
			if m.l1 != nil {
				m.l1.sweep(now)
			}
			if m.l2 != nil {
				m.l2.sweep(now)
			}
			if m.l3 != nil {
				m.l3.sweep(now)
			}
		}
	}
}

// Close stops the background sweeper and releases the L3 connection.
func (m *Manager) Close() error {
	close(m.sweepStop)
	if m.l3 != nil {
		return m.l3.close()
	}
	return nil
}

// Get probes L1, L2, then L3 in order, promoting a hit into faster
// tiers unless promotion is disabled. Returns (nil, LevelNone, false)
// on a full miss.
func (m *Manager) Get(key string) ([]byte, Level, bool) {
	now := time.Now()

	if m.l1 != nil {
		if entry, ok := m.l1.get(key, now); ok {
			return entry.Value, LevelL1, true
		}
	}
	if m.l2 != nil {
		if entry, ok := m.l2.get(key, now); ok {
			if m.l1 != nil && !m.cfg.DisablePromotion {
				promoted := cloneEntry(entry, LevelL1)
				m.l1.set(promoted)
				m.mu.Lock()
				m.promotions++
				m.mu.Unlock()
			}
			return entry.Value, LevelL2, true
		}
	}
	if m.l3 != nil {
		if entry, ok := m.l3.get(key, now); ok {
			if !m.cfg.DisablePromotion {
				if m.l2 != nil {
					_ = m.l2.set(cloneEntry(entry, LevelL2))
				}
				if m.l1 != nil {
					m.l1.set(cloneEntry(entry, LevelL1))
				}
				m.mu.Lock()
				m.promotions++
				m.mu.Unlock()
			}
			return entry.Value, LevelL3, true
		}
	}
	return nil, LevelNone, false
}

func cloneEntry(src *ast.CacheEntry[[]byte], level Level) *ast.CacheEntry[[]byte] {
	return &ast.CacheEntry[[]byte]{
		Key:          src.Key,
		Value:        src.Value,
		CreatedAt:    src.CreatedAt,
		TTL:          src.TTL,
		AccessCount:  src.AccessCount,
		LastAccessed: src.LastAccessed,
		ByteSize:     src.ByteSize,
		Level:        int(level),
	}
}

// Set writes value to every enabled level concurrently. A failure at one
// level is counted but never prevents writes to the others.
func (m *Manager) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.cfg.DefaultTTL
	}
	now := time.Now()
	base := &ast.CacheEntry[[]byte]{
		Key:          key,
		Value:        value,
		CreatedAt:    now,
		TTL:          ttl,
		LastAccessed: now,
		ByteSize:     int64(len(value)),
	}

	var wg sync.WaitGroup
	if m.l1 != nil {
		wg.Add(1)
		go func() { defer wg.Done(); m.l1.set(cloneEntry(base, LevelL1)) }()
	}
	if m.l2 != nil {
		wg.Add(1)
		go func() { defer wg.Done(); _ = m.l2.set(cloneEntry(base, LevelL2)) }()
	}
	if m.l3 != nil {
		wg.Add(1)
		go func() { defer wg.Done(); _ = m.l3.set(cloneEntry(base, LevelL3)) }()
	}
	wg.Wait()
}

// Delete removes key from every enabled level.
func (m *Manager) Delete(key string) {
	if m.l1 != nil {
		m.l1.delete(key)
	}
	if m.l2 != nil {
		m.l2.delete(key)
	}
	if m.l3 != nil {
		m.l3.delete(key)
	}
}

// Invalidate evaluates pattern (exact string or regex) against the union
// of keys across every enabled level, deletes every match everywhere,
// and reports the event to the sink.
func (m *Manager) Invalidate(reason, pattern, context string) InvalidationEvent {
	mtc := newMatcher(pattern)

	seen := make(map[string]bool)
	var keys []string
	var levels []Level
	if m.l1 != nil {
		levels = append(levels, LevelL1)
		for _, k := range m.l1.keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	if m.l2 != nil {
		levels = append(levels, LevelL2)
		for _, k := range m.l2.keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	if m.l3 != nil {
		levels = append(levels, LevelL3)
		for _, k := range m.l3.keys() {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	var matched []string
	for _, k := range keys {
		if mtc.match(k) {
			matched = append(matched, k)
		}
	}
	for _, k := range matched {
		m.Delete(k)
	}

	m.mu.Lock()
	m.invalidations++
	m.mu.Unlock()

	event := InvalidationEvent{
		Reason:    reason,
		Keys:      matched,
		Levels:    levels,
		Timestamp: time.Now(),
		Context:   context,
	}
	m.sink.OnCacheInvalidated(events.CacheInvalidated{Reason: reason, Pattern: pattern, Keys: matched, At: event.Timestamp})
	return event
}

// WarmCache populates every enabled level with the given pairs,
// bypassing the normal miss-then-fill path. No-op when warming is
// disabled in Config.
func (m *Manager) WarmCache(entries []WarmEntry) {
	if m.cfg.DisableWarming {
		return
	}
	for _, e := range entries {
		m.Set(e.Key, e.Value, e.TTL)
	}
}

// Clear empties every enabled level's entries while preserving
// hit/miss/eviction history.
func (m *Manager) Clear() {
	if m.l1 != nil {
		m.l1.clear()
	}
	if m.l2 != nil {
		m.l2.clear()
	}
	if m.l3 != nil {
		m.l3.clear()
	}
}

// LogQuery appends a row to the L3 query log. A no-op when L3 is
// disabled — the log is a property of that tier, not the manager.
func (m *Manager) LogQuery(q ast.QueryLog) error {
	if m.l3 == nil {
		return nil
	}
	return m.l3.logQuery(q)
}

// GetTopQueries returns the most frequent logged queries. Empty when L3
// is disabled.
func (m *Manager) GetTopQueries(limit int) ([]TopQuery, error) {
	if m.l3 == nil {
		return nil, nil
	}
	return m.l3.getTopQueries(limit)
}

// Stats aggregates per-level counters and the manager-wide totals.
func (m *Manager) Stats() Stats {
	var s Stats
	if m.l1 != nil {
		s.L1 = m.l1.stats()
	}
	if m.l2 != nil {
		s.L2 = m.l2.stats()
	}
	if m.l3 != nil {
		s.L3 = m.l3.stats()
	}

	m.mu.RLock()
	s.Promotions = m.promotions
	s.Invalidations = m.invalidations
	m.mu.RUnlock()

	totalHits := s.L1.Hits + s.L2.Hits + s.L3.Hits
	totalMisses := s.L1.Misses + s.L2.Misses + s.L3.Misses
	if totalHits+totalMisses > 0 {
		s.OverallHitRate = float64(totalHits) / float64(totalHits+totalMisses)
	}
	s.TotalEntries = s.L1.Entries + s.L2.Entries + s.L3.Entries
	s.TotalSizeBytes = s.L1.Bytes + s.L2.Bytes + s.L3.Bytes
	s.UptimeMS = time.Since(m.startedAt).Milliseconds()
	return s
}
