package embedder

import (
	"context"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// BoundedEmbedder caps how many embedding calls may be in flight at once.
// Callers above the budget block until an earlier call drains, or until
// their context is cancelled. One EmbedBatch call counts as one slot —
// the inner embedder is what amortizes the batch, the budget only bounds
// concurrent invocations of it.
type BoundedEmbedder struct {
	inner Embedder
	slots chan struct{}
}

// NewBoundedEmbedder wraps inner with an in-flight budget. A budget < 1
// is treated as 1.
func NewBoundedEmbedder(inner Embedder, budget int) *BoundedEmbedder {
	if budget < 1 {
		budget = 1
	}
	return &BoundedEmbedder{inner: inner, slots: make(chan struct{}, budget)}
}

func (b *BoundedEmbedder) acquire(ctx context.Context) error {
	select {
	case b.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return asterrors.Cancelled("embedder: cancelled while waiting for an in-flight slot")
	}
}

func (b *BoundedEmbedder) release() { <-b.slots }

func (b *BoundedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()
	return b.inner.Embed(ctx, text)
}

func (b *BoundedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()
	return b.inner.EmbedBatch(ctx, texts)
}

func (b *BoundedEmbedder) Dimensions() int { return b.inner.Dimensions() }

func (b *BoundedEmbedder) ModelName() string { return b.inner.ModelName() }

func (b *BoundedEmbedder) Available(ctx context.Context) bool { return b.inner.Available(ctx) }

func (b *BoundedEmbedder) Close() error { return b.inner.Close() }

var _ Embedder = (*BoundedEmbedder)(nil)
