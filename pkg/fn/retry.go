package fn

import (
	"context"
	"math/rand"
	"time"
)

// RetryOpts bounds a retry loop. A loop never runs more than MaxAttempts
// times and never sleeps longer than MaxWait between attempts.
type RetryOpts struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

// DefaultRetry is the retry policy used across the pipeline.
var DefaultRetry = RetryOpts{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// Backoff returns the sleep before the given attempt (0-based), doubling
// from InitialWait and capped at MaxWait.
func (o RetryOpts) Backoff(attempt int) time.Duration {
	wait := o.InitialWait
	for i := 0; i < attempt; i++ {
		wait *= 2
		if wait >= o.MaxWait {
			return o.MaxWait
		}
	}
	if o.Jitter {
		wait = time.Duration(float64(wait) * (0.5 + rand.Float64()))
	}
	if wait > o.MaxWait {
		wait = o.MaxWait
	}
	return wait
}

// Retry runs f until it succeeds, the attempt budget is spent, or ctx is
// cancelled. Cancellation surfaces ctx.Err() rather than the last failure.
func Retry[T any](ctx context.Context, opts RetryOpts, f func(context.Context) Result[T]) Result[T] {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	var result Result[T]
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		result = f(ctx)
		if result.IsOk() || attempt == opts.MaxAttempts-1 {
			return result
		}
		select {
		case <-ctx.Done():
			return Err[T](ctx.Err())
		case <-time.After(opts.Backoff(attempt)):
		}
	}
	return result
}
