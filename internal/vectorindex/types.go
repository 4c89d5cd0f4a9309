// Package vectorindex wraps a pure-Go HNSW graph (github.com/coder/hnsw)
// behind the operations the vector database façade needs: add, search,
// mark_deleted, save, load, capacity, count. The index speaks only in
// terms of label (uint64); the façade in internal/vectordb owns the
// label <-> node_id mapping.
package vectorindex

import "fmt"

// Space selects the distance metric and, with it, the distance-to-score
// conversion used by Search results.
type Space string

const (
	SpaceCosine Space = "cosine"
	SpaceL2     Space = "l2"
	SpaceIP     Space = "ip"
)

// Config controls graph construction. Zero values are replaced with the
// defaults noted per field.
type Config struct {
	Dimensions     int
	Space          Space // defaults to SpaceCosine
	M              int   // 4..64, defaults to 16
	EfConstruction int   // 16..800, defaults to 200
	Ef             int   // 16..512, defaults to 20
	MaxElements    int   // initial capacity, defaults to 1024
}

func (c Config) withDefaults() Config {
	if c.Space == "" {
		c.Space = SpaceCosine
	}
	if c.M == 0 {
		c.M = 16
	}
	if c.EfConstruction == 0 {
		c.EfConstruction = 200
	}
	if c.Ef == 0 {
		c.Ef = 20
	}
	if c.MaxElements == 0 {
		c.MaxElements = 1024
	}
	return c
}

// Neighbor is one k-NN search result, in the index's own vocabulary:
// a label and a raw distance. internal/vectordb converts distance to
// score and label to node_id.
type Neighbor struct {
	Label    uint64
	Distance float32
}

// Stats reports index-level counters consumed by get_stats.
type Stats struct {
	Count       int
	Capacity    int
	Tombstones  int
	Dimensions  int
	Space       Space
}

// ErrDimensionMismatch mirrors the metadata store's error but stays
// local to this package so vectorindex has no dependency on internal/store.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vectorindex: dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
