package rag

import (
	"github.com/DocsmithAI/docsmith-mvp/engine/chunk"
	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

// Assemble packs ranked chunks into a context that fits tokenBudget.
//
// Chunks are taken in rank order. The head chunk is truncated at a token
// boundary if it alone exceeds the budget; once any later chunk would
// overflow the remaining budget, assembly stops rather than including it
// partially. Deterministic for a given input and budget.
func Assemble(question string, ranked []domain.RankedChunk, tokenBudget int) domain.PromptContext {
	pc := domain.PromptContext{Question: question}
	if tokenBudget <= 0 {
		return pc
	}

	remaining := tokenBudget
	for i, rc := range ranked {
		n := chunk.TokenCount(rc.Chunk.Text)
		if n <= remaining {
			pc.Chunks = append(pc.Chunks, rc)
			remaining -= n
			continue
		}
		if i == 0 {
			// Even the best hit does not fit whole; a clipped head beats
			// an empty context.
			clipped := rc
			clipped.Chunk.Text = chunk.TruncateTokens(rc.Chunk.Text, remaining)
			pc.Chunks = append(pc.Chunks, clipped)
		}
		break
	}
	return pc
}
