// Package embed defines the embedding capability the pipeline is built
// against, and a batching wrapper that adds backpressure, rate limiting,
// bounded retry, and vector validation around any implementation.
//
// The core never names a concrete model or vendor; implementations are
// injected at construction.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/pkg/fn"
)

// Embedder maps text to fixed-dimension vectors. EmbedBatch returns
// vectors in input order and must not partially fail: either every text
// is embedded or the call errors as a unit.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Options configures the batching wrapper.
type Options struct {
	// BatchSize is the maximum texts per upstream call.
	BatchSize int
	// MaxInFlight bounds concurrent upstream batches (backpressure rather
	// than unbounded fan-out).
	MaxInFlight int
	// RatePerSec limits batch dispatch; 0 disables limiting.
	RatePerSec float64
	// Burst is the limiter burst when RatePerSec is set.
	Burst int
	// Dimensions is the expected vector length; 0 skips the check.
	Dimensions int
	// Timeout applies to each upstream call.
	Timeout time.Duration
	// Retry bounds per-batch retries with exponential backoff.
	Retry fn.RetryOpts
}

// DefaultOptions returns the batching policy used in production.
func DefaultOptions() Options {
	return Options{
		BatchSize:   100,
		MaxInFlight: 4,
		RatePerSec:  0,
		Burst:       1,
		Timeout:     30 * time.Second,
		Retry:       fn.DefaultRetry,
	}
}

// Batcher wraps an Embedder with the Options policy. It satisfies
// Embedder itself so callers can layer it transparently.
type Batcher struct {
	inner   Embedder
	opts    Options
	limiter *rate.Limiter
}

// NewBatcher wraps inner with batching, backpressure, and retry.
func NewBatcher(inner Embedder, opts Options) *Batcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = fn.DefaultRetry
	}
	var limiter *rate.Limiter
	if opts.RatePerSec > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return &Batcher{inner: inner, opts: opts, limiter: limiter}
}

// Embed embeds a single text with the retry policy applied.
func (b *Batcher) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in sub-batches of at most BatchSize, at most
// MaxInFlight in flight at once, preserving input order. Any sub-batch
// failing after retries fails the whole call with ErrEmbeddingUnavailable.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batches := fn.Chunk(texts, b.opts.BatchSize)
	results := fn.ParMapResult(batches, b.opts.MaxInFlight, func(batch []string) fn.Result[[][]float32] {
		return fn.Retry(ctx, b.opts.Retry, func(ctx context.Context) fn.Result[[][]float32] {
			return fn.FromPair(b.callOnce(ctx, batch))
		})
	})

	collected, err := fn.Collect(results).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingUnavailable, err)
	}

	out := make([][]float32, 0, len(texts))
	for _, vecs := range collected {
		out = append(out, vecs...)
	}
	return out, nil
}

// callOnce dispatches one upstream batch under the limiter and timeout,
// and validates the response shape.
func (b *Batcher) callOnce(ctx context.Context, batch []string) ([][]float32, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if b.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.Timeout)
		defer cancel()
	}

	vecs, err := b.inner.EmbedBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(vecs), len(batch))
	}
	for i, v := range vecs {
		if err := ValidateVector(v, b.opts.Dimensions); err != nil {
			return nil, fmt.Errorf("embed: vector %d: %w", i, err)
		}
	}
	return vecs, nil
}

// ValidateVector checks that a vector is non-empty, finite, and of the
// expected dimension (when dims > 0).
func ValidateVector(v []float32, dims int) error {
	if len(v) == 0 {
		return fmt.Errorf("empty vector")
	}
	if dims > 0 && len(v) != dims {
		return fmt.Errorf("dimension %d, want %d", len(v), dims)
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("non-finite component")
		}
	}
	return nil
}
