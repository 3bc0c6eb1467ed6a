// Package semantic owns access to the vector-searchable index store. It
// provides the Qdrant-backed production store and an in-memory store with
// the same contract for tests and local runs.
package semantic

import (
	"context"

	"github.com/google/uuid"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

// Store is the index-store access contract. Upsert is idempotent per
// chunk_id; Search returns hits with their distance under the configured
// metric (lower is closer).
type Store interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	Search(ctx context.Context, vector []float32, limit int) ([]SearchResult, error)
	Count(ctx context.Context) (uint64, error)
	DeleteByParentID(ctx context.Context, parentID string) error
}

// VectorRecord is one point to persist.
type VectorRecord struct {
	ID        string // deterministic point id derived from the chunk id
	Embedding []float32
	Payload   map[string]any // content, chunk_id, source, original_id, chunk_index
}

// SearchResult is a single search hit.
type SearchResult struct {
	ChunkID    string  `json:"chunk_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"` // distance, lower is closer
	Source     string  `json:"source"`
	ParentID   string  `json:"original_id"`
	ChunkIndex int     `json:"chunk_index"`
}

// PointID derives the stable store point id for a chunk. Re-indexing the
// same chunk_id always lands on the same point, which is what makes
// upserts idempotent.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// RecordFromEntry converts an index entry into a storable point.
func RecordFromEntry(e domain.IndexEntry) VectorRecord {
	return VectorRecord{
		ID:        PointID(e.ChunkID),
		Embedding: e.Vector,
		Payload: map[string]any{
			"content":     e.Text,
			"chunk_id":    e.ChunkID,
			"source":      string(e.Source),
			"original_id": e.ParentID,
			"chunk_index": e.ChunkIndex,
		},
	}
}

// Chunk reconstructs the domain chunk carried in a search hit.
func (r SearchResult) Chunk() domain.Chunk {
	return domain.Chunk{
		ChunkID:    r.ChunkID,
		ParentID:   r.ParentID,
		Text:       r.Text,
		ChunkIndex: r.ChunkIndex,
		Metadata: map[string]any{
			"source":      r.Source,
			"original_id": r.ParentID,
			"chunk_index": r.ChunkIndex,
		},
	}
}
