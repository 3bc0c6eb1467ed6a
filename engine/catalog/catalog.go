// Package catalog keeps the document lineage graph in Neo4j: which
// records have been ingested and which chunks each produced. The ingest
// pipeline consults it for deduplication and updates it after every
// successful index write.
package catalog

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/DocsmithAI/docsmith-mvp/engine/chunk"
	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

// Catalog provides lineage operations over a Neo4j driver.
type Catalog struct {
	driver neo4j.DriverWithContext
}

// New creates a Catalog.
func New(driver neo4j.DriverWithContext) *Catalog {
	return &Catalog{driver: driver}
}

// RecordEntry is the catalog view of an ingested record.
type RecordEntry struct {
	ID         string
	Source     domain.Source
	ChunkCount int
	IngestedAt time.Time
}

// SaveRecord writes the record node and one node per chunk, linked by
// HAS_CHUNK, in a single transaction. Re-saving the same record replaces
// its chunk set, so a re-index never leaves stale lineage behind.
func (c *Catalog) SaveRecord(ctx context.Context, r domain.SourceRecord, chunks []domain.Chunk) error {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		cypher := `MERGE (r:Record {id: $id})
			 SET r.source = $source, r.chunk_count = $chunk_count, r.ingested_at = datetime()`
		if _, err := tx.Run(ctx, cypher, map[string]any{
			"id":          r.ID,
			"source":      string(r.Source),
			"chunk_count": len(chunks),
		}); err != nil {
			return nil, err
		}

		// Drop lineage from any previous ingest of this record.
		detach := `MATCH (r:Record {id: $id})-[:HAS_CHUNK]->(ch:Chunk) DETACH DELETE ch`
		if _, err := tx.Run(ctx, detach, map[string]any{"id": r.ID}); err != nil {
			return nil, err
		}

		for _, ch := range chunks {
			link := `MATCH (r:Record {id: $record_id})
				 MERGE (ch:Chunk {id: $chunk_id})
				 SET ch.chunk_index = $chunk_index, ch.token_count = $token_count
				 MERGE (r)-[:HAS_CHUNK]->(ch)`
			if _, err := tx.Run(ctx, link, map[string]any{
				"record_id":   r.ID,
				"chunk_id":    ch.ChunkID,
				"chunk_index": ch.ChunkIndex,
				"token_count": chunk.TokenCount(ch.Text),
			}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// HasRecord reports whether a record id is already catalogued.
func (c *Catalog) HasRecord(ctx context.Context, id string) (bool, error) {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (r:Record {id: $id}) RETURN r.id LIMIT 1`, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	return result.Next(ctx), nil
}

// GetRecord returns the catalog entry for a record id.
func (c *Catalog) GetRecord(ctx context.Context, id string) (RecordEntry, error) {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (r:Record {id: $id}) RETURN r`, map[string]any{"id": id})
	if err != nil {
		return RecordEntry{}, err
	}
	if !result.Next(ctx) {
		return RecordEntry{}, result.Err()
	}
	node, _, err := neo4j.GetRecordValue[dbtype.Node](result.Record(), "r")
	if err != nil {
		return RecordEntry{}, err
	}
	return entryFromProps(node.Props), nil
}

// ChunkIDs returns the chunk ids produced by a record, in chunk order.
func (c *Catalog) ChunkIDs(ctx context.Context, recordID string) ([]string, error) {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (:Record {id: $id})-[:HAS_CHUNK]->(ch:Chunk)
		 RETURN ch.id AS id ORDER BY ch.chunk_index`
	result, err := sess.Run(ctx, cypher, map[string]any{"id": recordID})
	if err != nil {
		return nil, err
	}
	var ids []string
	for result.Next(ctx) {
		if v, ok := result.Record().Get("id"); ok {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	return ids, result.Err()
}

// DeleteRecord removes a record and its chunk lineage.
func (c *Catalog) DeleteRecord(ctx context.Context, id string) error {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	cypher := `MATCH (r:Record {id: $id})
		 OPTIONAL MATCH (r)-[:HAS_CHUNK]->(ch:Chunk)
		 DETACH DELETE r, ch`
	_, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	return err
}

// CountRecords returns the number of catalogued records.
func (c *Catalog) CountRecords(ctx context.Context) (int64, error) {
	sess := c.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer sess.Close(ctx)

	result, err := sess.Run(ctx, `MATCH (r:Record) RETURN count(r) AS n`, nil)
	if err != nil {
		return 0, err
	}
	if !result.Next(ctx) {
		return 0, result.Err()
	}
	n, _ := result.Record().Get("n")
	count, _ := n.(int64)
	return count, nil
}

func entryFromProps(props map[string]any) RecordEntry {
	e := RecordEntry{}
	if s, ok := props["id"].(string); ok {
		e.ID = s
	}
	if s, ok := props["source"].(string); ok {
		e.Source = domain.Source(s)
	}
	if n, ok := props["chunk_count"].(int64); ok {
		e.ChunkCount = int(n)
	}
	if t, ok := props["ingested_at"].(time.Time); ok {
		e.IngestedAt = t
	}
	return e
}
