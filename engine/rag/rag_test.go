package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

func TestRenderTemplate(t *testing.T) {
	pc := domain.PromptContext{
		Question: "what is the refund policy?",
		Chunks: []domain.RankedChunk{
			{Chunk: domain.Chunk{ChunkID: "a_chunk_0", Text: "refunds within 30 days"}, Rank: 1},
			{Chunk: domain.Chunk{ChunkID: "a_chunk_1", Text: "store credit after 30 days"}, Rank: 2},
		},
	}

	prompt, err := Render(pc, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"--- Chunk 1 (id: a_chunk_0) ---",
		"--- Chunk 2 (id: a_chunk_1) ---",
		"refunds within 30 days",
		"Question: what is the refund policy?",
		promptInstruction,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\nprompt:\n%s", want, prompt)
		}
	}
	if !strings.HasPrefix(prompt, promptPreamble) {
		t.Errorf("prompt does not open with the preamble")
	}
	if idx0, idx1 := strings.Index(prompt, "a_chunk_0"), strings.Index(prompt, "a_chunk_1"); idx0 > idx1 {
		t.Errorf("chunks rendered out of rank order")
	}
}

func TestRenderEnforcesHardCeiling(t *testing.T) {
	pc := domain.PromptContext{
		Question: "q",
		Chunks: []domain.RankedChunk{
			{Chunk: domain.Chunk{ChunkID: "a_chunk_0", Text: tokens(200)}, Rank: 1},
		},
	}

	if _, err := Render(pc, 50); !errors.Is(err, domain.ErrContextTooLarge) {
		t.Fatalf("err = %v, want ErrContextTooLarge", err)
	}
	if _, err := Render(pc, 0); err != nil {
		t.Fatalf("ceiling 0 must disable the check, got %v", err)
	}
}

// fixedEmbedder returns the same vector for every input.
type fixedEmbedder struct {
	vector []float32
	err    error
}

func (e *fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return e.vector, e.err
}

func (e *fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = e.vector
	}
	return out, nil
}

// recordingGenerator captures the prompt it was handed.
type recordingGenerator struct {
	prompt string
	opts   GenOptions
	reply  string
	err    error
	calls  int
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string, opts GenOptions) (string, error) {
	g.calls++
	g.prompt = prompt
	g.opts = opts
	return g.reply, g.err
}

func newTestService(t *testing.T, gen *recordingGenerator) *Service {
	t.Helper()
	retriever := NewRetriever(seededStore(t, 4))
	embedder := &fixedEmbedder{vector: []float32{0, 0}}
	return New(embedder, retriever, gen, DefaultOptions(), nil)
}

func TestQueryEndToEnd(t *testing.T) {
	gen := &recordingGenerator{reply: "the answer"}
	svc := newTestService(t, gen)

	ans, err := svc.Query(context.Background(), domain.Query{Question: "what happened?", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "the answer" {
		t.Fatalf("answer = %q", ans.Text)
	}
	if len(ans.Sources) != 3 {
		t.Fatalf("got %d sources, want 3", len(ans.Sources))
	}
	if ans.Sources[0].Rank != 1 || ans.Sources[0].ChunkID != "doc_chunk_0" {
		t.Fatalf("top source = %+v", ans.Sources[0])
	}
	if ans.Sources[0].Citation != "email/doc_chunk_0" {
		t.Fatalf("citation = %q", ans.Sources[0].Citation)
	}
	if !strings.Contains(gen.prompt, "Question: what happened?") {
		t.Fatalf("generator prompt missing the question:\n%s", gen.prompt)
	}
	if gen.opts.MaxTokens != DefaultOptions().Gen.MaxTokens {
		t.Fatalf("generation options not forwarded: %+v", gen.opts)
	}
}

func TestQueryRejectsInvalidInput(t *testing.T) {
	gen := &recordingGenerator{}
	svc := newTestService(t, gen)

	for _, q := range []domain.Query{
		{Question: "", K: 3},
		{Question: "   ", K: 3},
		{Question: "fine", K: 0},
	} {
		if _, err := svc.Query(context.Background(), q); !errors.Is(err, domain.ErrInvalidQuery) {
			t.Fatalf("query %+v: err = %v, want ErrInvalidQuery", q, err)
		}
	}
	if gen.calls != 0 {
		t.Fatalf("generator called %d times on invalid input", gen.calls)
	}
}

func TestQuerySurfacesEmbeddingFailure(t *testing.T) {
	embedErr := errors.New("model offline")
	svc := New(
		&fixedEmbedder{err: embedErr},
		NewRetriever(seededStore(t, 2)),
		&recordingGenerator{},
		DefaultOptions(),
		nil,
	)

	_, err := svc.Query(context.Background(), domain.Query{Question: "q", K: 2})
	if !errors.Is(err, embedErr) {
		t.Fatalf("err = %v, want the embedding failure", err)
	}
}

func TestQuerySurfacesGenerationFailure(t *testing.T) {
	genErr := errors.New("backend 503")
	svc := newTestService(t, &recordingGenerator{err: genErr})

	_, err := svc.Query(context.Background(), domain.Query{Question: "q", K: 2})
	if !errors.Is(err, genErr) {
		t.Fatalf("err = %v, want the generation failure", err)
	}
}

func TestQueryAgainstUnreachableIndex(t *testing.T) {
	gen := &recordingGenerator{}
	svc := New(&fixedEmbedder{vector: []float32{0, 0}}, NewRetriever(downStore{}), gen, DefaultOptions(), nil)

	_, err := svc.Query(context.Background(), domain.Query{Question: "q", K: 2})
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		t.Fatalf("err = %v, want ErrIndexUnavailable", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not run when retrieval fails")
	}
}
