// Package queryengine is the read path in front of the vector database
// façade: deterministic key generation, cache lookup, façade search on
// miss, post-filtering, cache fill, and query logging.
package queryengine

import "time"

// Options is one query's shape — the part of the request that feeds
// both the cache key and the post-filter.
type Options struct {
	TopK            int
	Ef              int
	MinScore        float64
	FilePathPattern string
	MinConfidence   float64
}

func (o Options) withDefaults(cfg Config) Options {
	if o.TopK <= 0 {
		o.TopK = cfg.DefaultTopK
	}
	if o.TopK > cfg.MaxTopK {
		o.TopK = cfg.MaxTopK
	}
	return o
}

// asMap renders Options as the canonical map fingerprint.QueryKey hashes
// into the cache key — every field that changes the result set must
// appear here, or two different queries would collide on one key.
func (o Options) asMap() map[string]any {
	return map[string]any{
		"top_k":             o.TopK,
		"ef":                o.Ef,
		"min_score":         o.MinScore,
		"file_path_pattern": o.FilePathPattern,
		"min_confidence":    o.MinConfidence,
	}
}

// Config tunes the engine's defaults, independent of any one query.
type Config struct {
	DefaultTopK int
	MaxTopK     int

	// OverfetchFactor multiplies TopK when asking the façade for
	// candidates, so post-filtering still has enough survivors to reach
	// TopK after dropping low-score/low-confidence/path-mismatched hits.
	OverfetchFactor int

	DefaultTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTopK == 0 {
		c.DefaultTopK = 10
	}
	if c.MaxTopK == 0 {
		c.MaxTopK = 200
	}
	if c.OverfetchFactor == 0 {
		c.OverfetchFactor = 4
	}
	if c.DefaultTTL == 0 {
		c.DefaultTTL = time.Hour
	}
	return c
}
