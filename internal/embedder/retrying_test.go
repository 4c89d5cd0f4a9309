package embedder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	asterrors "github.com/astdb-dev/astdb/internal/errors"
)

type fakeEmbedder struct {
	embedCalls int
	batchCalls int
	errs       []error
	vector     []float32
	batch      [][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	i := f.embedCalls
	f.embedCalls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	i := f.batchCalls
	f.batchCalls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.batch, nil
}

func (f *fakeEmbedder) Dimensions() int                    { return 4 }
func (f *fakeEmbedder) ModelName() string                  { return "fake" }
func (f *fakeEmbedder) Available(ctx context.Context) bool { return true }
func (f *fakeEmbedder) Close() error                       { return nil }

func fastRetryEmbedder(inner Embedder) *RetryingEmbedder {
	r := NewRetryingEmbedder(inner)
	r.cfg.InitialDelay = time.Millisecond
	r.cfg.MaxDelay = time.Millisecond
	return r
}

func TestRetryingEmbedder_Embed_SucceedsOnSecondAttempt(t *testing.T) {
	inner := &fakeEmbedder{
		errs:   []error{asterrors.EmbedderFailed(errors.New("boom"))},
		vector: []float32{1, 2, 3, 4},
	}
	r := fastRetryEmbedder(inner)

	result, err := r.Embed(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, result)
	assert.Equal(t, 2, inner.embedCalls)
}

func TestRetryingEmbedder_Embed_SurfacesErrorAfterOneRetry(t *testing.T) {
	cause := asterrors.EmbedderFailed(errors.New("boom"))
	inner := &fakeEmbedder{errs: []error{cause, cause, cause}}
	r := fastRetryEmbedder(inner)

	_, err := r.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 2, inner.embedCalls, "MaxRetries=1 means at most two attempts total")
}

func TestRetryingEmbedder_Embed_NonRetryableFailsImmediately(t *testing.T) {
	inner := &fakeEmbedder{errs: []error{asterrors.InvalidConfig("bad config")}}
	r := fastRetryEmbedder(inner)

	_, err := r.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestRetryingEmbedder_Embed_CancelledNeverRetries(t *testing.T) {
	inner := &fakeEmbedder{errs: []error{asterrors.Cancelled("client went away")}}
	r := fastRetryEmbedder(inner)

	_, err := r.Embed(context.Background(), "text")
	require.Error(t, err)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestRetryingEmbedder_EmbedBatch_SucceedsOnSecondAttempt(t *testing.T) {
	inner := &fakeEmbedder{
		errs:  []error{asterrors.ResourceExhausted("rate limited")},
		batch: [][]float32{{1, 2}, {3, 4}},
	}
	r := fastRetryEmbedder(inner)

	result, err := r.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, result)
	assert.Equal(t, 2, inner.batchCalls)
}

func TestRetryingEmbedder_Embed_RespectsContextCancellationDuringBackoff(t *testing.T) {
	inner := &fakeEmbedder{errs: []error{asterrors.Timeout("slow"), asterrors.Timeout("slow")}}
	r := NewRetryingEmbedder(inner)
	r.cfg.InitialDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Embed(ctx, "text")
	require.Error(t, err)
	assert.Equal(t, 1, inner.embedCalls)
}

func TestRetryingEmbedder_PassthroughMethods(t *testing.T) {
	inner := &fakeEmbedder{}
	r := NewRetryingEmbedder(inner)

	assert.Equal(t, 4, r.Dimensions())
	assert.Equal(t, "fake", r.ModelName())
	assert.True(t, r.Available(context.Background()))
	assert.NoError(t, r.Close())
}
