// Package domain defines the core data model shared by the chunking,
// indexing, and retrieval packages, plus the validation gate applied at
// pipeline entry points.
package domain

import "fmt"

// Source identifies the upstream system a record was normalized from.
type Source string

const (
	SourceTable     Source = "table"
	SourceEmail     Source = "email"
	SourcePDF       Source = "pdf"
	SourceDocx      Source = "docx"
	SourceDocxTable Source = "docx_table" // tables extracted from office documents
)

// ValidSources is the set of recognised record sources.
var ValidSources = map[Source]bool{
	SourceTable: true, SourceEmail: true, SourcePDF: true,
	SourceDocx: true, SourceDocxTable: true,
}

// SourceRecord is a normalized source unit as produced by the upstream
// extraction layer. Records are immutable once produced; identity is
// (Source, ID).
type SourceRecord struct {
	Source   Source         `json:"source"`
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Chunk is a token-bounded slice of a record's text. Chunks are created by
// the chunker and never mutated; they disappear only when the parent is
// deleted or re-indexed.
type Chunk struct {
	ChunkID    string         `json:"chunk_id"`
	ParentID   string         `json:"parent_id"`
	Text       string         `json:"text"`
	ChunkIndex int            `json:"chunk_index"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ChunkID derives the stable chunk identifier from its parent and index.
func ChunkID(parentID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", parentID, index)
}

// Source returns the record source carried in the chunk metadata.
func (c Chunk) Source() Source {
	if s, ok := c.Metadata["source"].(string); ok {
		return Source(s)
	}
	if s, ok := c.Metadata["source"].(Source); ok {
		return s
	}
	return ""
}

// IndexEntry is the durable unit written to the vector index, keyed
// uniquely by ChunkID.
type IndexEntry struct {
	ChunkID    string    `json:"chunk_id"`
	Text       string    `json:"text"`
	Vector     []float32 `json:"embedding"`
	Source     Source    `json:"source"`
	ParentID   string    `json:"original_id"`
	ChunkIndex int       `json:"chunk_index"`
}

// EntryFromChunk pairs a chunk with its computed vector.
func EntryFromChunk(c Chunk, vector []float32) IndexEntry {
	return IndexEntry{
		ChunkID:    c.ChunkID,
		Text:       c.Text,
		Vector:     vector,
		Source:     c.Source(),
		ParentID:   c.ParentID,
		ChunkIndex: c.ChunkIndex,
	}
}

// Query is a retrieval request.
type Query struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

// RankedChunk is a retrieval hit. Lower Score means closer under the
// configured distance metric; Rank starts at 1.
type RankedChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Citation is the stable label downstream consumers use to attribute
// claims to this chunk.
func (rc RankedChunk) Citation() string {
	return fmt.Sprintf("%s/%s", rc.Chunk.Source(), rc.Chunk.ChunkID)
}

// PromptContext is the budgeted, ordered set of chunks handed to the
// prompt builder together with the original question.
type PromptContext struct {
	Chunks   []RankedChunk `json:"chunks"`
	Question string        `json:"question"`
}
