package semantic

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-memory Store using squared Euclidean
// distance. It backs tests and single-node local runs; the contract is
// identical to the Qdrant store.
type MemoryStore struct {
	mu     sync.RWMutex
	dims   int
	points map[string]VectorRecord // keyed by point id, so upsert is idempotent
}

// NewMemoryStore creates an empty store expecting vectors of dims length.
func NewMemoryStore(dims int) *MemoryStore {
	return &MemoryStore{dims: dims, points: make(map[string]VectorRecord)}
}

// Upsert inserts or replaces points by id.
func (m *MemoryStore) Upsert(_ context.Context, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		if len(r.Embedding) != m.dims {
			return fmt.Errorf("semantic: vector dimension %d, want %d", len(r.Embedding), m.dims)
		}
	}
	for _, r := range records {
		m.points[r.ID] = r
	}
	return nil
}

// Count returns the number of stored points.
func (m *MemoryStore) Count(context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.points)), nil
}

// DeleteByParentID removes all points whose original_id payload matches.
func (m *MemoryStore) DeleteByParentID(_ context.Context, parentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.points {
		if r.Payload["original_id"] == parentID {
			delete(m.points, id)
		}
	}
	return nil
}

// Search scans every point and returns the limit closest by squared
// Euclidean distance, ascending, with ties broken by chunk_id.
func (m *MemoryStore) Search(_ context.Context, vector []float32, limit int) ([]SearchResult, error) {
	if len(vector) != m.dims {
		return nil, fmt.Errorf("semantic: query dimension %d, want %d", len(vector), m.dims)
	}

	m.mu.RLock()
	results := make([]SearchResult, 0, len(m.points))
	for _, r := range m.points {
		results = append(results, SearchResult{
			ChunkID:    payloadStr(r.Payload, "chunk_id"),
			Text:       payloadStr(r.Payload, "content"),
			Score:      sqDist(vector, r.Embedding),
			Source:     payloadStr(r.Payload, "source"),
			ParentID:   payloadStr(r.Payload, "original_id"),
			ChunkIndex: payloadInt(r.Payload, "chunk_index"),
		})
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func sqDist(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}

func payloadStr(p map[string]any, key string) string {
	s, _ := p[key].(string)
	return s
}

func payloadInt(p map[string]any, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
