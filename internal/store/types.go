// Package store provides the SQLite-backed metadata store: node records,
// their embeddings and label assignment, file-parse digests, and the
// persistence layer's own on-disk state. This is the durable half of the
// vector database façade (internal/vectordb); the in-memory half is
// internal/vectorindex.
package store

import (
	"context"
	"time"

	"github.com/astdb-dev/astdb/internal/ast"
)

// Config configures a metadata store at initialize time.
type Config struct {
	// Path is the SQLite database file. Empty means in-memory (tests only).
	Path string
	// Dimensions is the embedding width. Fixed for the lifetime of the
	// store; inserts with a different width fail DimensionMismatch.
	Dimensions int
	// PreferNative selects the CGO-backed driver when it was compiled in;
	// the store falls back to the pure-Go driver otherwise.
	PreferNative bool
	// LockPath, if set, is the workspace advisory lock file
	// (`.astdb/.lock`) the store acquires at Initialize and releases at
	// Shutdown. Empty skips locking entirely — used by in-memory/test
	// stores that don't own a workspace.
	LockPath string
}

// VectorInsert is one item of an insert_vector(s) call.
type VectorInsert struct {
	NodeID    string
	Embedding []float32
	Node      *ast.Node
}

// MetadataPatch carries the fields update_vector should change; a nil
// field is left untouched, merging field by field.
type MetadataPatch struct {
	Language         *string
	Scope            *[]string
	Modifiers        *[]string
	Docstring        *string
	Imports          *[]string
	Exports          *[]string
	Annotations      *[]string
	LanguageSpecific *map[string]string
}

// VectorUpdate is one update_vector call. Embedding nil leaves the stored
// vector unchanged; Name, Significance and Metadata are likewise optional.
type VectorUpdate struct {
	NodeID       string
	Embedding    []float32
	Name         *string
	Significance *ast.Significance
	Metadata     *MetadataPatch
}

// ItemError pairs a failed batch item with the error it produced.
type ItemError struct {
	NodeID string
	Err    error
}

// BatchResult is the outcome of insert_vectors: best-effort per item.
type BatchResult struct {
	SuccessCount int
	FailureCount int
	Failures     []ItemError
}

// Stats summarizes the store for get_stats / IndexInfo reporting.
type Stats struct {
	NodeCount    int
	Dimensions   int
	SizeBytes    int64
	LastModified time.Time
	Backend      string // "native" or "portable"
}

// FileDigestRecord is the store's persisted form of a parsed file's
// content hash and the node ids it currently owns. It mirrors
// parse.FileDigest; duplicated here rather than imported so that store
// has no dependency on the parse pipeline it serves. *SQLiteStore does not
// itself satisfy parse.DigestStore; DigestAdapter translates between the
// two types.
type FileDigestRecord struct {
	Path         string
	ContentHash  string
	LastParsedAt time.Time
	NodeIDs      []string
}

// MetadataStore is the metadata store capability set: a dimension-fixed,
// single-writer/multi-reader store of node records and their embeddings,
// keyed by node id and addressable by dense label for the HNSW half.
type MetadataStore interface {
	Initialize(ctx context.Context, cfg Config) error

	InsertVector(ctx context.Context, item VectorInsert) (label uint64, err error)
	InsertVectors(ctx context.Context, items []VectorInsert) (BatchResult, error)
	GetVector(ctx context.Context, nodeID string) (*ast.VectorRecord, error)
	GetVectors(ctx context.Context, nodeIDs []string) (map[string]*ast.VectorRecord, error)
	UpdateVector(ctx context.Context, update VectorUpdate) error
	DeleteVector(ctx context.Context, nodeID string) (bool, error)

	GetLabelMappings(ctx context.Context) (ast.LabelMapping, error)
	GetSearchMetadata(ctx context.Context, nodeIDs []string) (map[string]ast.VectorMetadata, error)
	GetNode(ctx context.Context, nodeID string) (*ast.Node, error)

	GetStats(ctx context.Context) (Stats, error)
	Shutdown(ctx context.Context) error

	GetFileDigest(ctx context.Context, path string) (FileDigestRecord, bool, error)
	SaveFileDigest(ctx context.Context, digest FileDigestRecord) error
	DeleteFileDigest(ctx context.Context, path string) error
}
