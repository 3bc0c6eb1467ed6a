package rag

import (
	"fmt"
	"strings"

	"github.com/DocsmithAI/docsmith-mvp/engine/chunk"
	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

const (
	promptPreamble    = "Below are relevant excerpts from our company knowledge base:\n\n"
	promptInstruction = "Please answer using only the passages above."
)

// Render produces the final prompt from an assembled context. The
// template is fixed: each chunk under a "--- Chunk i (id: ...) ---"
// header, then the question, then the answer-only-from-passages
// instruction.
//
// hardCeiling (in tokens, 0 to disable) guards against a misconfigured
// token budget upstream; exceeding it returns ErrContextTooLarge.
func Render(pc domain.PromptContext, hardCeiling int) (string, error) {
	var b strings.Builder
	b.WriteString(promptPreamble)
	for i, rc := range pc.Chunks {
		fmt.Fprintf(&b, "--- Chunk %d (id: %s) ---\n", i+1, rc.Chunk.ChunkID)
		b.WriteString(rc.Chunk.Text)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n", pc.Question)
	b.WriteString(promptInstruction)

	rendered := b.String()
	if hardCeiling > 0 {
		if n := chunk.TokenCount(rendered); n > hardCeiling {
			return "", fmt.Errorf("rag: rendered prompt is %d tokens, ceiling %d: %w",
				n, hardCeiling, domain.ErrContextTooLarge)
		}
	}
	return rendered, nil
}
