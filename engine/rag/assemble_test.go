package rag

import (
	"strings"
	"testing"

	"github.com/DocsmithAI/docsmith-mvp/engine/chunk"
	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

func tokens(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, " ")
}

func rankedChunks(sizes ...int) []domain.RankedChunk {
	out := make([]domain.RankedChunk, len(sizes))
	for i, n := range sizes {
		out[i] = domain.RankedChunk{
			Chunk: domain.Chunk{
				ChunkID:    domain.ChunkID("doc", i),
				ParentID:   "doc",
				Text:       tokens(n),
				ChunkIndex: i,
				Metadata:   map[string]any{"source": "pdf"},
			},
			Score: float64(i),
			Rank:  i + 1,
		}
	}
	return out
}

func TestAssembleStopsAtBudget(t *testing.T) {
	// Five 600-token hits against a 2000-token budget: the first three fit
	// (1800 tokens), the fourth would overflow, assembly stops there.
	pc := Assemble("q", rankedChunks(600, 600, 600, 600, 600), 2000)

	if len(pc.Chunks) != 3 {
		t.Fatalf("assembled %d chunks, want 3", len(pc.Chunks))
	}
	total := 0
	for _, rc := range pc.Chunks {
		total += chunk.TokenCount(rc.Chunk.Text)
	}
	if total > 2000 {
		t.Fatalf("assembled %d tokens, budget is 2000", total)
	}
	for i, rc := range pc.Chunks {
		if rc.Rank != i+1 {
			t.Errorf("chunk at position %d has rank %d, order must follow rank", i, rc.Rank)
		}
	}
}

func TestAssembleTruncatesOversizedHead(t *testing.T) {
	pc := Assemble("q", rankedChunks(500), 120)

	if len(pc.Chunks) != 1 {
		t.Fatalf("assembled %d chunks, want the truncated head", len(pc.Chunks))
	}
	if n := chunk.TokenCount(pc.Chunks[0].Chunk.Text); n != 120 {
		t.Fatalf("head truncated to %d tokens, want 120", n)
	}
}

func TestAssembleDoesNotTruncateLaterChunks(t *testing.T) {
	// The second chunk does not fit whole and must be dropped, not clipped,
	// even though some budget remains.
	pc := Assemble("q", rankedChunks(80, 50), 100)

	if len(pc.Chunks) != 1 {
		t.Fatalf("assembled %d chunks, want 1", len(pc.Chunks))
	}
	if n := chunk.TokenCount(pc.Chunks[0].Chunk.Text); n != 80 {
		t.Fatalf("head is %d tokens, must be kept whole", n)
	}
}

func TestAssembleWithNoResults(t *testing.T) {
	pc := Assemble("q", nil, 2000)
	if len(pc.Chunks) != 0 {
		t.Fatalf("assembled %d chunks from nothing", len(pc.Chunks))
	}
	if pc.Question != "q" {
		t.Fatalf("question = %q", pc.Question)
	}
}

func TestAssembleWithZeroBudget(t *testing.T) {
	pc := Assemble("q", rankedChunks(10), 0)
	if len(pc.Chunks) != 0 {
		t.Fatalf("zero budget admitted %d chunks", len(pc.Chunks))
	}
}

func TestAssembleIsDeterministic(t *testing.T) {
	ranked := rankedChunks(600, 600, 600, 600, 600)
	a := Assemble("q", ranked, 2000)
	b := Assemble("q", ranked, 2000)

	if len(a.Chunks) != len(b.Chunks) {
		t.Fatalf("runs disagree: %d vs %d chunks", len(a.Chunks), len(b.Chunks))
	}
	for i := range a.Chunks {
		if a.Chunks[i].Chunk.ChunkID != b.Chunks[i].Chunk.ChunkID {
			t.Fatalf("runs disagree at position %d", i)
		}
	}
}
