package fn

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

func TestResultOkErr(t *testing.T) {
	r := Ok(7)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok should report ok")
	}
	v, err := r.Unwrap()
	if v != 7 || err != nil {
		t.Fatalf("Unwrap = (%d, %v)", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err should not report ok")
	}
	if e.UnwrapOr(42) != 42 {
		t.Fatal("UnwrapOr should return fallback on error")
	}
}

func TestFromPair(t *testing.T) {
	if FromPair(1, nil).IsErr() {
		t.Fatal("nil error should be ok")
	}
	if FromPair(0, errors.New("x")).IsOk() {
		t.Fatal("non-nil error should be err")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(3), strconv.Itoa)
	if r.Must() != "3" {
		t.Fatalf("MapResult = %q", r.Must())
	}
	e := MapResult(Err[int](errors.New("boom")), strconv.Itoa)
	if e.IsOk() {
		t.Fatal("MapResult should propagate errors")
	}
}

func TestCollect(t *testing.T) {
	ok := Collect([]Result[int]{Ok(1), Ok(2)})
	vals := ok.Must()
	if len(vals) != 2 || vals[0] != 1 || vals[1] != 2 {
		t.Fatalf("Collect = %v", vals)
	}

	bad := Collect([]Result[int]{Ok(1), Err[int](errors.New("second"))})
	_, err := bad.Unwrap()
	if err == nil || err.Error() != "second" {
		t.Fatalf("Collect should return first error, got %v", err)
	}
}

func TestThenShortCircuits(t *testing.T) {
	called := false
	fail := Stage[int, int](func(context.Context, int) Result[int] {
		return Errf[int]("fail")
	})
	next := Stage[int, string](func(_ context.Context, v int) Result[string] {
		called = true
		return Ok(strconv.Itoa(v))
	})
	r := Then(fail, next)(context.Background(), 1)
	if r.IsOk() || called {
		t.Fatal("Then should short-circuit on error")
	}
}

func TestPipelineOrder(t *testing.T) {
	add := func(n int) Stage[int, int] {
		return MapStage(func(v int) int { return v + n })
	}
	p := Pipeline(add(1), add(10), add(100))
	if p(context.Background(), 0).Must() != 111 {
		t.Fatal("Pipeline should apply stages in order")
	}
}

func TestTapStagePassesThrough(t *testing.T) {
	var seen int
	tap := TapStage(func(_ context.Context, v int) { seen = v })
	r := tap(context.Background(), 7)
	if r.Must() != 7 {
		t.Fatalf("TapStage changed the value: %d", r.Must())
	}
	if seen != 7 {
		t.Fatalf("side effect saw %d", seen)
	}
}

func TestTracedStagePropagatesValueAndError(t *testing.T) {
	double := TracedStage("double", MapStage(func(v int) int { return v * 2 }))
	if got := double(context.Background(), 3).Must(); got != 6 {
		t.Fatalf("TracedStage = %d, want 6", got)
	}

	fail := TracedStage("fail", Stage[int, int](func(context.Context, int) Result[int] {
		return Errf[int]("boom")
	}))
	if fail(context.Background(), 1).IsOk() {
		t.Fatal("TracedStage should propagate the error")
	}
}

func TestBatchStageFailsAsUnit(t *testing.T) {
	stage := Stage[int, int](func(_ context.Context, v int) Result[int] {
		if v == 3 {
			return Errf[int]("bad element")
		}
		return Ok(v * 2)
	})
	r := BatchStage(2, stage)(context.Background(), []int{1, 2, 3, 4})
	if r.IsOk() {
		t.Fatal("BatchStage should fail if any element fails")
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var calls atomic.Int32
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3}, func(context.Context) Result[int] {
		if calls.Add(1) < 3 {
			return Errf[int]("transient")
		}
		return Ok(99)
	})
	if r.Must() != 99 {
		t.Fatal("Retry should succeed on third attempt")
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
}

func TestRetryExhaustsBudget(t *testing.T) {
	var calls int
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 4}, func(context.Context) Result[int] {
		calls++
		return Errf[int]("always")
	})
	if r.IsOk() {
		t.Fatal("Retry should fail when budget is spent")
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: time.Hour}, func(context.Context) Result[int] {
		return Errf[int]("transient")
	})
	_, err := r.Unwrap()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	opts := RetryOpts{InitialWait: time.Second, MaxWait: 3 * time.Second}
	if got := opts.Backoff(0); got != time.Second {
		t.Fatalf("attempt 0 backoff = %v", got)
	}
	if got := opts.Backoff(1); got != 2*time.Second {
		t.Fatalf("attempt 1 backoff = %v", got)
	}
	if got := opts.Backoff(5); got != 3*time.Second {
		t.Fatalf("backoff should cap at MaxWait, got %v", got)
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	out := ParMap([]int{1, 2, 3, 4, 5}, 2, func(v int) int { return v * v })
	want := []int{1, 4, 9, 16, 25}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("ParMap[%d] = %d, want %d", i, out[i], want[i])
		}
	}
}

func TestParMapEmpty(t *testing.T) {
	if out := ParMap(nil, 4, func(v int) int { return v }); len(out) != 0 {
		t.Fatal("ParMap on empty input should return empty")
	}
}

func TestChunkSplits(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Fatalf("Chunk = %v", chunks)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("Chunk with n <= 0 should return nil")
	}
}

func TestFilter(t *testing.T) {
	out := Filter([]int{1, 2, 3, 4}, func(v int) bool { return v%2 == 0 })
	if len(out) != 2 || out[0] != 2 || out[1] != 4 {
		t.Fatalf("Filter = %v", out)
	}
}
