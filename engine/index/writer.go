// Package index implements the durable write path into the vector store:
// batched, idempotent upserts with bounded retry, per-chunk failure
// reporting, and deadline-aware cancellation.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/engine/embed"
	"github.com/DocsmithAI/docsmith-mvp/engine/semantic"
	"github.com/DocsmithAI/docsmith-mvp/pkg/fn"
	"github.com/DocsmithAI/docsmith-mvp/pkg/resilience"
)

// MaxBatchSize caps entries per store call to respect store throughput
// limits.
const MaxBatchSize = 256

// Options configures the writer.
type Options struct {
	// BatchSize is clamped to MaxBatchSize.
	BatchSize int
	// Retry bounds store-call retries with exponential backoff.
	Retry fn.RetryOpts
	// Timeout applies to each individual store call.
	Timeout time.Duration
}

// DefaultOptions is the production write policy.
func DefaultOptions() Options {
	return Options{
		BatchSize: MaxBatchSize,
		Retry:     fn.DefaultRetry,
		Timeout:   10 * time.Second,
	}
}

// Writer persists (chunk, vector) tuples into the index store.
type Writer struct {
	store    semantic.Store
	embedder embed.Embedder
	breaker  *resilience.Breaker
	opts     Options
	logger   *slog.Logger
}

// NewWriter creates a writer. embedder may be nil when only UpsertBatch
// is used with pre-computed vectors.
func NewWriter(store semantic.Store, embedder embed.Embedder, opts Options, logger *slog.Logger) *Writer {
	if opts.BatchSize <= 0 || opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = fn.DefaultRetry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:    store,
		embedder: embedder,
		breaker:  resilience.NewBreaker(resilience.DefaultBreakerOpts),
		opts:     opts,
		logger:   logger,
	}
}

// UpsertBatch writes entries in store batches of at most BatchSize.
// Succeeded entries are never rolled back on later failures; entries in a
// batch that keeps failing are retried individually so one bad entry
// cannot condemn its batchmates. Every submitted chunk_id appears in the
// result exactly once. A caller deadline aborts outstanding retries and
// reports unconfirmed entries as deadline_exceeded.
func (w *Writer) UpsertBatch(ctx context.Context, entries []domain.IndexEntry) domain.BatchResult {
	result := domain.NewBatchResult()

	var writable []domain.IndexEntry
	for _, e := range entries {
		// A chunk whose vector failed to compute is never indexed.
		if err := embed.ValidateVector(e.Vector, 0); err != nil {
			result.Fail(e.ChunkID, domain.KindEmbeddingUnavailable)
			continue
		}
		writable = append(writable, e)
	}

	for _, batch := range fn.Chunk(writable, w.opts.BatchSize) {
		if ctx.Err() != nil {
			failAll(result, batch, domain.KindDeadlineExceeded)
			continue
		}
		if err := w.writeOnce(ctx, batch); err == nil {
			for _, e := range batch {
				result.Ok(e.ChunkID)
			}
			continue
		}
		// The batch failed after retries; isolate permanent failures
		// entry by entry.
		for _, e := range batch {
			if ctx.Err() != nil {
				result.Fail(e.ChunkID, domain.KindDeadlineExceeded)
				continue
			}
			if err := w.writeOnce(ctx, []domain.IndexEntry{e}); err != nil {
				w.logger.Warn("index: entry permanently failed",
					"chunk_id", e.ChunkID, "error", err)
				result.Fail(e.ChunkID, domain.KindOf(fmt.Errorf("%w: %w", domain.ErrIndexWriteFailed, err)))
			} else {
				result.Ok(e.ChunkID)
			}
		}
	}
	return result
}

// writeOnce upserts one batch through the circuit breaker with the retry
// policy and per-call timeout applied.
func (w *Writer) writeOnce(ctx context.Context, batch []domain.IndexEntry) error {
	records := fn.Map(batch, semantic.RecordFromEntry)
	r := fn.Retry(ctx, w.opts.Retry, func(ctx context.Context) fn.Result[struct{}] {
		err := w.breaker.Call(ctx, func(ctx context.Context) error {
			if w.opts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
				defer cancel()
			}
			return w.store.Upsert(ctx, records)
		})
		if err != nil {
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	_, err := r.Unwrap()
	return err
}

// IndexChunks embeds chunks and upserts the resulting entries. Chunks
// whose embedding cannot be computed are reported as
// embedding_unavailable and never reach the store.
func (w *Writer) IndexChunks(ctx context.Context, chunks []domain.Chunk) domain.BatchResult {
	texts := fn.Map(chunks, func(c domain.Chunk) string { return c.Text })

	var entries []domain.IndexEntry
	vectors, err := w.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		for i, c := range chunks {
			entries = append(entries, domain.EntryFromChunk(c, vectors[i]))
		}
		return w.UpsertBatch(ctx, entries)
	}

	// The batch failed as a unit; embed chunk by chunk so one poison
	// chunk does not sink the rest.
	w.logger.Warn("index: batch embedding failed, isolating", "chunks", len(chunks), "error", err)
	result := domain.NewBatchResult()
	for _, c := range chunks {
		if ctx.Err() != nil {
			result.Fail(c.ChunkID, domain.KindDeadlineExceeded)
			continue
		}
		vec, err := w.embedder.Embed(ctx, c.Text)
		if err != nil {
			result.Fail(c.ChunkID, domain.KindEmbeddingUnavailable)
			continue
		}
		entries = append(entries, domain.EntryFromChunk(c, vec))
	}

	upserted := w.UpsertBatch(ctx, entries)
	for id := range upserted.Succeeded {
		result.Ok(id)
	}
	for id, kind := range upserted.Failed {
		result.Fail(id, kind)
	}
	return result
}

func failAll(result domain.BatchResult, entries []domain.IndexEntry, kind domain.ErrorKind) {
	for _, e := range entries {
		result.Fail(e.ChunkID, kind)
	}
}
