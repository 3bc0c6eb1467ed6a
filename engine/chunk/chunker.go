// Package chunk splits normalized source records into token-bounded,
// overlapping chunks ready for embedding. The chunker is stateless and
// performs no I/O.
package chunk

import (
	"fmt"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

const (
	// DefaultMaxTokens bounds the tokens per chunk.
	DefaultMaxTokens = 500
	// DefaultOverlapTokens is how many trailing tokens of a chunk reappear
	// at the head of the next one.
	DefaultOverlapTokens = 50
)

// Config holds the chunking parameters.
type Config struct {
	MaxTokens     int
	OverlapTokens int
}

// DefaultConfig returns the standard chunking policy.
func DefaultConfig() Config {
	return Config{MaxTokens: DefaultMaxTokens, OverlapTokens: DefaultOverlapTokens}
}

// Validate rejects parameter combinations that could never terminate or
// would duplicate content indefinitely.
func (c Config) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("chunk: max_tokens %d: %w", c.MaxTokens, domain.ErrConfig)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("chunk: overlap_tokens %d: %w", c.OverlapTokens, domain.ErrConfig)
	}
	if c.OverlapTokens >= c.MaxTokens {
		return fmt.Errorf("chunk: overlap_tokens %d >= max_tokens %d: %w",
			c.OverlapTokens, c.MaxTokens, domain.ErrConfig)
	}
	return nil
}

// Split chunks a record's text under the given config. Text that fits in
// one window is emitted as a single verbatim chunk; longer text is cut by
// a sliding window of MaxTokens advancing MaxTokens-OverlapTokens per
// step, the final window clipped to the remaining tokens. Empty or
// whitespace-only text yields zero chunks.
func Split(record domain.SourceRecord, cfg Config) ([]domain.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens := Tokenize(record.Text)
	if len(tokens) == 0 {
		return nil, nil
	}

	if len(tokens) <= cfg.MaxTokens {
		return []domain.Chunk{newChunk(record, 0, record.Text)}, nil
	}

	stride := cfg.MaxTokens - cfg.OverlapTokens
	var chunks []domain.Chunk
	for start, index := 0, 0; ; start, index = start+stride, index+1 {
		end := start + cfg.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, newChunk(record, index, Detokenize(tokens[start:end])))
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}

// newChunk builds a chunk inheriting the record's metadata plus the
// lineage fields {source, original_id, chunk_index}.
func newChunk(record domain.SourceRecord, index int, text string) domain.Chunk {
	meta := make(map[string]any, len(record.Metadata)+3)
	for k, v := range record.Metadata {
		meta[k] = v
	}
	meta["source"] = string(record.Source)
	meta["original_id"] = record.ID
	meta["chunk_index"] = index

	return domain.Chunk{
		ChunkID:    domain.ChunkID(record.ID, index),
		ParentID:   record.ID,
		Text:       text,
		ChunkIndex: index,
		Metadata:   meta,
	}
}
