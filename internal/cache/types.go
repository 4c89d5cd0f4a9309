// Package cache is the three-tier query cache: an in-process LRU (L1), an
// on-disk content-addressed store (L2), and a SQLite-backed store that
// doubles as the query log (L3). Manager composes the three behind one
// get/set/delete/invalidate/warm contract with promotion and aggregated
// stats.
package cache

import (
	"fmt"
	"regexp"
	"time"
)

// Level identifies which tier served (or would serve) a cache entry.
// Matches ast.CacheEntry's Level field: 0 means "not present anywhere".
type Level int

const (
	LevelNone Level = 0
	LevelL1   Level = 1
	LevelL2   Level = 2
	LevelL3   Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelL1:
		return "L1"
	case LevelL2:
		return "L2"
	case LevelL3:
		return "L3"
	default:
		return "none"
	}
}

// Config is the cache manager's configuration surface.
type Config struct {
	// EnableL1/L2/L3 toggle each tier independently; the manager degrades
	// gracefully when one, several, or all are disabled.
	EnableL1 bool
	EnableL2 bool
	EnableL3 bool

	// DisablePromotion turns off the write-through-to-faster-levels
	// behavior a hit normally triggers.
	DisablePromotion bool

	// DisableWarming makes WarmCache a no-op.
	DisableWarming bool

	L1MaxEntries int
	L1MaxBytes   int64
	L1SweepEvery time.Duration

	L2Dir        string
	L2MaxBytes   int64
	L2SweepEvery time.Duration

	L3Path         string
	L3PreferNative bool

	DefaultTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.L1MaxEntries == 0 {
		c.L1MaxEntries = 1000
	}
	if c.L1MaxBytes == 0 {
		c.L1MaxBytes = 64 << 20
	}
	if c.L1SweepEvery == 0 {
		c.L1SweepEvery = 30 * time.Second
	}
	if c.L2MaxBytes == 0 {
		c.L2MaxBytes = 256 << 20
	}
	if c.L2SweepEvery == 0 {
		c.L2SweepEvery = 5 * time.Minute
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = time.Hour
	}
	return c
}

// LevelStats reports a single tier's hit/miss/eviction counters.
type LevelStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Bytes     int64
}

// Stats aggregates per-level counters plus the manager-wide totals.
// Clearing the cache zeroes entry counts but
// preserves the hit/miss/eviction history.
type Stats struct {
	L1 LevelStats
	L2 LevelStats
	L3 LevelStats

	Promotions      int64
	Invalidations   int64
	OverallHitRate  float64
	TotalEntries    int
	TotalSizeBytes  int64
	UptimeMS        int64
}

// InvalidationEvent describes one logical pattern-invalidation sweep
// across every tier.
type InvalidationEvent struct {
	Reason    string
	Keys      []string
	Levels    []Level
	Timestamp time.Time
	Context   string
}

// matcher turns a pattern into a predicate: if it compiles as a regexp it
// is used as one, otherwise it is matched as an exact string.
type matcher struct {
	exact string
	re    *regexp.Regexp
}

func newMatcher(pattern string) matcher {
	// Anchoring the whole pattern lets a plain key (no regex
	// metacharacters) behave as an exact match while a real regex still
	// works as the caller intended — one mechanism serving both
	// invalidation modes.
	if re, err := regexp.Compile("^(?:" + pattern + ")$"); err == nil {
		return matcher{re: re}
	}
	return matcher{exact: pattern}
}

func (m matcher) match(key string) bool {
	if m.re != nil {
		return m.re.MatchString(key)
	}
	return key == m.exact
}

func (m matcher) String() string {
	if m.re != nil {
		return fmt.Sprintf("regexp(%s)", m.re.String())
	}
	return fmt.Sprintf("exact(%s)", m.exact)
}
