// Package embedder defines the capability contract through which the
// rest of the engine consumes embeddings. Acquiring, loading, and
// running an actual embedding model is explicitly out of scope — every
// caller in this repo (parse coordinator, query engine) depends only on
// the Embedder interface below, the way internal/grammar's Registry lets
// callers depend on a capability set rather than a concrete parser.
package embedder

import "context"

// Embedder turns text into dense vectors. This package ships only
// StaticEmbedder and the RetryingEmbedder/BoundedEmbedder wrappers;
// model-backed implementations are supplied externally.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts in one call,
	// for callers (batch insert, rebuild) that can amortize model
	// overhead across many inputs.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the embedding width this Embedder produces.
	// The vector database façade is initialized with this value and
	// rejects embeddings of any other width.
	Dimensions() int

	// ModelName identifies the model, surfaced in stats and query logs.
	ModelName() string

	// Available reports whether the embedder is currently able to serve
	// requests, without actually issuing one.
	Available(ctx context.Context) bool

	// Close releases any resources held by the embedder.
	Close() error
}
