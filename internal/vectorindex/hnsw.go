package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// Index is a label-addressed HNSW graph. It knows nothing about node_id,
// metadata, or scoring — internal/vectordb composes this with the metadata
// store and does that translation.
type Index struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config Config

	tombstones map[uint64]bool
	count      int // live (non-tombstoned) vectors

	closed bool
}

// New builds an empty index from cfg.
func New(cfg Config) (*Index, error) {
	cfg = cfg.withDefaults()
	if cfg.Dimensions <= 0 {
		return nil, asterrors.New(asterrors.ErrCodeInvalidDimension, "vectorindex: dimensions must be positive", nil)
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Space {
	case SpaceCosine:
		graph.Distance = hnsw.CosineDistance
	case SpaceL2:
		graph.Distance = hnsw.EuclideanDistance
	case SpaceIP:
		graph.Distance = innerProductDistance
	default:
		return nil, asterrors.New(asterrors.ErrCodeInvalidConfig, fmt.Sprintf("vectorindex: unknown space %q", cfg.Space), nil)
	}

	graph.M = cfg.M
	graph.EfSearch = cfg.Ef
	graph.Ml = 0.25

	return &Index{
		graph:      graph,
		config:     cfg,
		tombstones: make(map[uint64]bool),
	}, nil
}

// Add inserts or replaces the vector stored under label. Re-adding a label
// that is already in the graph (live or tombstoned) removes its prior graph
// node before the insert, since coder/hnsw does not accept a duplicate key;
// the live count grows only when label was not already live. MarkDeleted,
// by contrast, only tombstones.
func (ix *Index) Add(ctx context.Context, label uint64, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return asterrors.Cancelled("vectorindex: add cancelled")
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed {
		return asterrors.New(asterrors.ErrCodeNotInitialized, "vectorindex: index is closed", nil)
	}
	if len(vector) != ix.config.Dimensions {
		return ErrDimensionMismatch{Expected: ix.config.Dimensions, Got: len(vector)}
	}

	existed := ix.graph.Delete(label)
	wasLive := existed && !ix.tombstones[label]
	delete(ix.tombstones, label)

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if ix.config.Space == SpaceCosine {
		normalizeInPlace(vec)
	}

	ix.graph.Add(hnsw.MakeNode(label, vec))
	if !wasLive {
		ix.count++
	}
	return nil
}

// Search returns up to k nearest neighbors to query, excluding tombstoned
// labels. ef overrides the graph's configured EfSearch for this call when
// positive.
func (ix *Index) Search(ctx context.Context, query []float32, k int, ef int) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, asterrors.Cancelled("vectorindex: search cancelled")
	}

	// An ef override mutates the graph's shared EfSearch for the duration
	// of the call, so it needs the write lock; default-ef searches share
	// the read lock and run concurrently.
	if ef > 0 && ef != ix.config.Ef {
		ix.mu.Lock()
		defer ix.mu.Unlock()
	} else {
		ix.mu.RLock()
		defer ix.mu.RUnlock()
	}

	if ix.closed {
		return nil, asterrors.New(asterrors.ErrCodeNotInitialized, "vectorindex: index is closed", nil)
	}
	if len(query) != ix.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: ix.config.Dimensions, Got: len(query)}
	}
	if ix.graph.Len() == 0 || k <= 0 {
		return []Neighbor{}, nil
	}

	if ef > 0 && ef != ix.config.Ef {
		prevEf := ix.graph.EfSearch
		ix.graph.EfSearch = ef
		defer func() { ix.graph.EfSearch = prevEf }()
	}

	q := make([]float32, len(query))
	copy(q, query)
	if ix.config.Space == SpaceCosine {
		normalizeInPlace(q)
	}

	// Tombstoned labels still occupy graph slots (lazy deletion), so
	// over-fetch and filter rather than trust the graph's k directly.
	want := k + len(ix.tombstones)
	nodes := ix.graph.Search(q, want)

	out := make([]Neighbor, 0, k)
	for _, node := range nodes {
		if ix.tombstones[node.Key] {
			continue
		}
		out = append(out, Neighbor{
			Label:    node.Key,
			Distance: ix.graph.Distance(q, node.Value),
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// MarkDeleted tombstones label so future searches skip it. The graph node
// is left in place; rebuild is what reclaims the space by constructing a
// fresh index from live vectors only.
func (ix *Index) MarkDeleted(label uint64) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.closed || ix.tombstones[label] {
		return false
	}
	ix.tombstones[label] = true
	ix.count--
	return true
}

// Count returns the number of live (non-tombstoned) vectors.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.count
}

// Capacity returns the configured max_elements the index was built with.
func (ix *Index) Capacity() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.config.MaxElements
}

// Stats reports counters for get_stats.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Count:      ix.count,
		Capacity:   ix.config.MaxElements,
		Tombstones: len(ix.tombstones),
		Dimensions: ix.config.Dimensions,
		Space:      ix.config.Space,
	}
}

// Close releases graph resources. The index may not be used afterward.
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closed = true
	ix.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// innerProductDistance converts inner product similarity into a distance
// (smaller is closer), the way usearch/hnswlib's "ip" space does: 1 - dot.
func innerProductDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}
