package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes the pipeline distinguishes.
var (
	// ErrConfig marks invalid chunking or budget parameters. Fatal,
	// rejected before any I/O.
	ErrConfig = errors.New("invalid configuration")
	// ErrEmbeddingUnavailable marks a failed embedding call after the
	// retry budget is spent.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrIndexWriteFailed marks a permanently failed index write for a
	// specific chunk.
	ErrIndexWriteFailed = errors.New("index write failed")
	// ErrIndexUnavailable means retrieval could not reach the index, or
	// the index holds no entries. Callers must not confuse this with an
	// empty-but-successful search.
	ErrIndexUnavailable = errors.New("index unavailable")
	// ErrInvalidQuery marks a malformed retrieval request, rejected
	// before any I/O.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrContextTooLarge means the rendered prompt exceeds the hard
	// ceiling even after truncation.
	ErrContextTooLarge = errors.New("context too large")
)

// ErrorKind classifies per-chunk failures in a BatchResult.
type ErrorKind string

const (
	KindEmbeddingUnavailable ErrorKind = "embedding_unavailable"
	KindIndexWriteFailed     ErrorKind = "index_write_failed"
	KindDeadlineExceeded     ErrorKind = "deadline_exceeded"
)

// KindOf maps an error to its batch-report classification.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindDeadlineExceeded
	case errors.Is(err, ErrEmbeddingUnavailable):
		return KindEmbeddingUnavailable
	default:
		return KindIndexWriteFailed
	}
}

// BatchResult reports the outcome of an indexing batch per chunk. No chunk
// is ever silently dropped: every submitted chunk_id lands in exactly one
// of the two sets.
type BatchResult struct {
	Succeeded map[string]bool      `json:"succeeded"`
	Failed    map[string]ErrorKind `json:"failed"`
}

// NewBatchResult returns an empty result.
func NewBatchResult() BatchResult {
	return BatchResult{
		Succeeded: make(map[string]bool),
		Failed:    make(map[string]ErrorKind),
	}
}

// Ok records a confirmed write, clearing any earlier failure for the id.
func (b BatchResult) Ok(chunkID string) {
	b.Succeeded[chunkID] = true
	delete(b.Failed, chunkID)
}

// Fail records a permanent failure unless the id already succeeded.
func (b BatchResult) Fail(chunkID string, kind ErrorKind) {
	if b.Succeeded[chunkID] {
		return
	}
	b.Failed[chunkID] = kind
}

// ValidationError wraps a sentinel with the offending field and value.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }
