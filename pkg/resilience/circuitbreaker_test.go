package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFail = errors.New("downstream failure")

func failing(context.Context) error { return errFail }
func succeeding(context.Context) error { return nil }

func trip(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.Call(context.Background(), failing); !errors.Is(err, errFail) {
			t.Fatalf("call %d: expected downstream error, got %v", i, err)
		}
	}
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Cooldown: time.Minute})
	trip(t, b, 3)
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}
	if err := b.Call(context.Background(), succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker should fail fast, got %v", err)
	}
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 2, Cooldown: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	trip(t, b, 2)
	if b.State() != StateOpen {
		t.Fatal("breaker should be open")
	}

	now = now.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after cooldown = %v, want half-open", b.State())
	}
	if err := b.Call(context.Background(), succeeding); err != nil {
		t.Fatalf("probe call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("state after probe success = %v, want closed", b.State())
	}
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Cooldown: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }

	trip(t, b, 1)
	now = now.Add(time.Minute)
	if err := b.Call(context.Background(), failing); !errors.Is(err, errFail) {
		t.Fatalf("probe should run, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("failed probe should reopen, state = %v", b.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Cooldown: time.Minute})
	trip(t, b, 2)
	if err := b.Call(context.Background(), succeeding); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trip(t, b, 2)
	if b.State() != StateClosed {
		t.Fatal("interleaved success should reset the failure count")
	}
}
