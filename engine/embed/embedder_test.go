package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/pkg/fn"
)

// fakeEmbedder embeds each text as a 3-dim vector derived from its length,
// with optional scripted failures.
type fakeEmbedder struct {
	mu        sync.Mutex
	calls     int
	maxSeen   int
	failFirst int32 // fail this many calls before succeeding
	failText  string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	if len(texts) > f.maxSeen {
		f.maxSeen = len(texts)
	}
	f.mu.Unlock()

	if atomic.AddInt32(&f.failFirst, -1) >= 0 {
		return nil, errors.New("model overloaded")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failText != "" && t == f.failText {
			return nil, errors.New("cannot embed text")
		}
		out[i] = []float32{float32(len(t)), 1, 2}
	}
	return out, nil
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text number %d", i)
	}
	return out
}

func quickRetry() fn.RetryOpts {
	return fn.RetryOpts{MaxAttempts: 3}
}

func TestBatcherPreservesOrder(t *testing.T) {
	inner := &fakeEmbedder{}
	b := NewBatcher(inner, Options{BatchSize: 4, MaxInFlight: 3, Retry: quickRetry()})

	in := texts(11)
	vecs, err := b.EmbedBatch(context.Background(), in)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(in) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(in))
	}
	for i, v := range vecs {
		if v[0] != float32(len(in[i])) {
			t.Fatalf("vector %d does not correspond to input %d", i, i)
		}
	}
	if inner.maxSeen > 4 {
		t.Fatalf("upstream saw a batch of %d, bound is 4", inner.maxSeen)
	}
}

func TestBatcherRetriesTransientFailure(t *testing.T) {
	inner := &fakeEmbedder{failFirst: 2}
	b := NewBatcher(inner, Options{BatchSize: 10, Retry: quickRetry()})

	if _, err := b.EmbedBatch(context.Background(), texts(3)); err != nil {
		t.Fatalf("EmbedBatch should recover from transient failures: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", inner.calls)
	}
}

func TestBatcherFailsAsUnit(t *testing.T) {
	inner := &fakeEmbedder{failText: "poison"}
	b := NewBatcher(inner, Options{BatchSize: 2, Retry: fn.RetryOpts{MaxAttempts: 1}})

	_, err := b.EmbedBatch(context.Background(), []string{"ok one", "ok two", "poison"})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("err = %v, want ErrEmbeddingUnavailable", err)
	}
}

func TestBatcherEmptyInput(t *testing.T) {
	b := NewBatcher(&fakeEmbedder{}, Options{})
	vecs, err := b.EmbedBatch(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("empty input = (%v, %v)", vecs, err)
	}
}

func TestBatcherChecksDimensions(t *testing.T) {
	inner := &fakeEmbedder{} // emits 3-dim vectors
	b := NewBatcher(inner, Options{Dimensions: 384, Retry: fn.RetryOpts{MaxAttempts: 1}})

	_, err := b.EmbedBatch(context.Background(), texts(1))
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("dimension mismatch should fail the batch, got %v", err)
	}
}

func TestValidateVector(t *testing.T) {
	if err := ValidateVector([]float32{1, 2, 3}, 3); err != nil {
		t.Fatalf("valid vector rejected: %v", err)
	}
	if err := ValidateVector(nil, 0); err == nil {
		t.Fatal("empty vector should be rejected")
	}
	if err := ValidateVector([]float32{1, 2}, 3); err == nil {
		t.Fatal("wrong dimension should be rejected")
	}
	if err := ValidateVector([]float32{float32(math.NaN())}, 0); err == nil {
		t.Fatal("NaN component should be rejected")
	}
	if err := ValidateVector([]float32{float32(math.Inf(1))}, 0); err == nil {
		t.Fatal("Inf component should be rejected")
	}
}
