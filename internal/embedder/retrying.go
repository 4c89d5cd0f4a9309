package embedder

import (
	"context"
	"time"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

// RetryingEmbedder wraps an Embedder with the retry policy used at the
// cache/embedder boundary: a retryable resource error
// (Timeout, ResourceExhausted, EmbedderFailed) is retried exactly once
// with backoff; anything else — including a Cancelled error, and any
// non-retryable failure — propagates on the first attempt.
type RetryingEmbedder struct {
	inner Embedder
	cfg   asterrors.RetryConfig
}

// NewRetryingEmbedder wraps inner with asterrors.DefaultRetryConfig()
// (one retry, 1s initial backoff, 2x multiplier).
func NewRetryingEmbedder(inner Embedder) *RetryingEmbedder {
	return &RetryingEmbedder{inner: inner, cfg: asterrors.DefaultRetryConfig()}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := withRetry(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
	return result, err
}

func (r *RetryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return withRetry(ctx, r.cfg, func() ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

// withRetry retries fn only while the error it returns is marked
// retryable — unlike asterrors.RetryWithResult, which retries any
// error unconditionally, this only pays the backoff for the transient
// codes (Timeout, ResourceExhausted, EmbedderFailed), so a validation
// failure or a deliberate cancellation surfaces immediately.
func withRetry[T any](ctx context.Context, cfg asterrors.RetryConfig, fn func() (T, error)) (T, error) {
	delay := cfg.InitialDelay
	var result T
	var err error

	for attempt := 0; ; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}
		if attempt >= cfg.MaxRetries || !asterrors.IsRetryable(err) {
			return result, err
		}

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}

func (r *RetryingEmbedder) Dimensions() int                    { return r.inner.Dimensions() }
func (r *RetryingEmbedder) ModelName() string                  { return r.inner.ModelName() }
func (r *RetryingEmbedder) Available(ctx context.Context) bool { return r.inner.Available(ctx) }
func (r *RetryingEmbedder) Close() error                       { return r.inner.Close() }

var _ Embedder = (*RetryingEmbedder)(nil)
