// Package events defines the structured event types emitted across
// package boundaries: the parse coordinator emits node deltas and parse
// failures, the vector database emits rebuild completions, and the cache
// emits invalidations. Nothing here carries behavior — these are data
// the rest of the system observes.
package events

import (
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
)

// NodeUpserted reports that a node was parsed and is now current,
// whether newly created or updated in place.
type NodeUpserted struct {
	Node     *ast.Node
	FilePath string
	At       time.Time
}

// NodeRemoved reports that a node no longer exists: its file was deleted,
// or the node itself disappeared from a re-parse.
type NodeRemoved struct {
	NodeID   string
	FilePath string
	At       time.Time
}

// ParseError reports a file that could not be parsed; the coordinator
// skips it and continues with the rest of the batch.
type ParseError struct {
	FilePath string
	Err      error
	At       time.Time
}

// IndexRebuilt reports that the vector index completed an atomic rebuild
// and advanced to a new index version.
type IndexRebuilt struct {
	PreviousVersion uint32
	NewVersion      uint32
	PreviousCount   int
	NewCount        int
	DurationMS      int64
	At              time.Time
}

// CacheInvalidated reports which cache keys were evicted by a pattern
// invalidation or an index rebuild.
type CacheInvalidated struct {
	Reason  string
	Pattern string
	Keys    []string
	At      time.Time
}

// Sink receives events as they occur. Implementations must not block the
// caller for long; the parse coordinator and vector database call Sink
// methods synchronously on their own goroutines.
type Sink interface {
	OnNodeUpserted(NodeUpserted)
	OnNodeRemoved(NodeRemoved)
	OnParseError(ParseError)
	OnIndexRebuilt(IndexRebuilt)
	OnCacheInvalidated(CacheInvalidated)
}

// NopSink implements Sink by discarding every event; embed it to satisfy
// the interface without implementing callbacks you don't need.
type NopSink struct{}

func (NopSink) OnNodeUpserted(NodeUpserted)         {}
func (NopSink) OnNodeRemoved(NodeRemoved)           {}
func (NopSink) OnParseError(ParseError)             {}
func (NopSink) OnIndexRebuilt(IndexRebuilt)         {}
func (NopSink) OnCacheInvalidated(CacheInvalidated) {}
