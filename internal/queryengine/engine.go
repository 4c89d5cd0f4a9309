package queryengine

import (
	"bytes"
	"context"
	"encoding/gob"
	"regexp"
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
	"github.com/astdb-dev/astdb/internal/cache"
	"github.com/astdb-dev/astdb/internal/fingerprint"
	"github.com/astdb-dev/astdb/internal/vectordb"
)

// Engine is the query-orchestration layer: it never touches the
// metadata store or the index directly, only the façade and the cache.
type Engine struct {
	facade *vectordb.Facade
	cache  *cache.Manager
	cfg    Config
}

func New(facade *vectordb.Facade, mgr *cache.Manager, cfg Config) *Engine {
	return &Engine{facade: facade, cache: mgr, cfg: cfg.withDefaults()}
}

// Search runs the read path in four steps: key generation, cache lookup,
// façade search + post-filter on miss, then cache fill and query log.
// queryKind namespaces the key (e.g. "search", "similar-to") so
// unrelated query shapes never collide even with identical text/options.
func (e *Engine) Search(ctx context.Context, queryKind, queryText string, queryVector []float32, opts Options) ([]ast.SearchResult, error) {
	opts = opts.withDefaults(e.cfg)
	start := time.Now()

	optionsMap := opts.asMap()
	key, err := fingerprint.QueryKey(queryKind, queryText, optionsMap, e.facade.IndexVersion())
	if err != nil {
		return nil, err
	}

	if raw, level, ok := e.cache.Get(key); ok {
		if results, decErr := decodeResults(raw); decErr == nil {
			e.logQuery(queryText, key, optionsMap, len(results), time.Since(start), true, level)
			return results, nil
		}
		// Corrupt payload: fall through and treat as a miss rather than
		// surfacing a decode error to the caller.
	}

	overfetch := opts.TopK * e.cfg.OverfetchFactor
	if overfetch < opts.TopK {
		overfetch = opts.TopK
	}

	raw, err := e.facade.SearchSimilar(ctx, queryVector, overfetch, opts.Ef)
	if err != nil {
		return nil, err
	}

	filtered, err := postFilter(raw, opts)
	if err != nil {
		return nil, err
	}
	if len(filtered) > opts.TopK {
		filtered = filtered[:opts.TopK]
	}

	if encoded, encErr := encodeResults(filtered); encErr == nil {
		e.cache.Set(key, encoded, e.cfg.DefaultTTL)
	}
	e.logQuery(queryText, key, optionsMap, len(filtered), time.Since(start), false, cache.LevelNone)

	return filtered, nil
}

// postFilter applies minimum score, file-path pattern, and confidence
// floor, preserving the façade's ascending-distance (best-first) order.
func postFilter(results []ast.SearchResult, opts Options) ([]ast.SearchResult, error) {
	var pathRe *regexp.Regexp
	if opts.FilePathPattern != "" {
		re, err := regexp.Compile(opts.FilePathPattern)
		if err != nil {
			return nil, err
		}
		pathRe = re
	}

	out := make([]ast.SearchResult, 0, len(results))
	for _, r := range results {
		if r.Score < opts.MinScore {
			continue
		}
		if opts.MinConfidence > 0 && r.Metadata.Confidence < opts.MinConfidence {
			continue
		}
		if pathRe != nil && !pathRe.MatchString(r.Metadata.FilePath) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) logQuery(queryText, queryHash string, optionsMap map[string]any, resultCount int, elapsed time.Duration, hit bool, level cache.Level) {
	optionsJSON, err := fingerprint.CanonicalJSON(optionsMap)
	if err != nil {
		optionsJSON = "{}"
	}
	levelLabel := ""
	if hit {
		levelLabel = level.String()
	}
	_ = e.cache.LogQuery(ast.QueryLog{
		QueryText:    queryText,
		QueryHash:    queryHash,
		OptionsJSON:  optionsJSON,
		ResultCount:  resultCount,
		ExecutionMS:  float64(elapsed.Microseconds()) / 1000.0,
		CacheHit:     hit,
		CacheLevel:   levelLabel,
		Timestamp:    time.Now(),
		IndexVersion: e.facade.IndexVersion(),
	})
}

func encodeResults(results []ast.SearchResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(results); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeResults(raw []byte) ([]ast.SearchResult, error) {
	var results []ast.SearchResult
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&results); err != nil {
		return nil, err
	}
	return results, nil
}
