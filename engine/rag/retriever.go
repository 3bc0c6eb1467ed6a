package rag

import (
	"context"
	"fmt"
	"sort"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/engine/semantic"
)

// Retriever performs k-NN retrieval with deterministic ordering.
type Retriever struct {
	store semantic.Store
}

// NewRetriever creates a retriever over the given store.
func NewRetriever(store semantic.Store) *Retriever {
	return &Retriever{store: store}
}

// Search returns at most k chunks ranked ascending by distance, ties
// broken by ascending chunk_id, ranks starting at 1.
//
// k <= 0 is rejected before any I/O. An unreachable or empty index
// surfaces ErrIndexUnavailable so callers can tell "could not search"
// apart from "nothing relevant found".
func (r *Retriever) Search(ctx context.Context, vector []float32, k int) ([]domain.RankedChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("rag: k=%d: %w", k, domain.ErrInvalidQuery)
	}

	hits, err := r.store.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("rag: %w: %w", domain.ErrIndexUnavailable, err)
	}
	if len(hits) == 0 {
		n, err := r.store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("rag: %w: %w", domain.ErrIndexUnavailable, err)
		}
		if n == 0 {
			return nil, fmt.Errorf("rag: %w: index holds no entries", domain.ErrIndexUnavailable)
		}
		return nil, nil
	}

	// The store orders by score but makes no promise about ties; impose
	// the deterministic order here.
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score < hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	ranked := make([]domain.RankedChunk, len(hits))
	for i, h := range hits {
		ranked[i] = domain.RankedChunk{
			Chunk: h.Chunk(),
			Score: h.Score,
			Rank:  i + 1,
		}
	}
	return ranked, nil
}
