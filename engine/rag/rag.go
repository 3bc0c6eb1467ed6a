// Package rag answers questions over the indexed corpus: it embeds the
// question, retrieves the nearest chunks, assembles a token-budgeted
// context with citations, renders the prompt, and calls the generation
// backend.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/engine/embed"
)

// Generator is the external text-generation capability. The core treats
// it as a single synchronous call with a timeout.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenOptions) (string, error)
}

// GenOptions are the knobs forwarded to the generation backend.
type GenOptions struct {
	MaxTokens     int
	Temperature   float64
	StopSequences []string
}

// Options configures the query pipeline.
type Options struct {
	// TokenBudget bounds the assembled context.
	TokenBudget int
	// HardCeiling bounds the fully rendered prompt; 0 disables the check.
	HardCeiling int
	// Gen is forwarded to the generation backend.
	Gen GenOptions
	// SearchTimeout bounds embedding plus retrieval.
	SearchTimeout time.Duration
	// GenerateTimeout bounds the generation call.
	GenerateTimeout time.Duration
}

// DefaultOptions returns the production query policy.
func DefaultOptions() Options {
	return Options{
		TokenBudget: 2000,
		HardCeiling: 4000,
		Gen: GenOptions{
			MaxTokens:     512,
			Temperature:   0.0,
			StopSequences: []string{"\n\n"},
		},
		SearchTimeout:   10 * time.Second,
		GenerateTimeout: 60 * time.Second,
	}
}

// NoRelevantInformation is returned as the answer text when retrieval
// finds nothing; the generation backend is not called in that case.
const NoRelevantInformation = "No relevant information found."

// Service is the query-side orchestration service.
type Service struct {
	embedder  embed.Embedder
	retriever *Retriever
	generator Generator
	opts      Options
	logger    *slog.Logger
}

// New creates a Service. All collaborators are injected; the service
// holds no global state.
func New(embedder embed.Embedder, retriever *Retriever, generator Generator, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

// Answer is the structured response to a query.
type Answer struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Source attributes part of the answer to an indexed chunk.
type Source struct {
	ChunkID  string  `json:"chunk_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Source   string  `json:"source"`
	Rank     int     `json:"rank"`
	Citation string  `json:"citation"`
}

// Query runs the full retrieval-augmented pipeline for one question.
func (s *Service) Query(ctx context.Context, q domain.Query) (*Answer, error) {
	if err := domain.ValidateQuery(q); err != nil {
		return nil, err
	}
	s.logger.Info("rag: query", "question_len", len(q.Question), "k", q.K)

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	vector, err := s.embedder.Embed(searchCtx, q.Question)
	if err != nil {
		return nil, fmt.Errorf("rag: embed question: %w", err)
	}

	ranked, err := s.retriever.Search(searchCtx, vector, q.K)
	if err != nil {
		return nil, err
	}
	s.logger.Info("rag: retrieved", "results", len(ranked))

	if len(ranked) == 0 {
		return &Answer{Text: NoRelevantInformation}, nil
	}

	pc := Assemble(q.Question, ranked, s.opts.TokenBudget)
	prompt, err := Render(pc, s.opts.HardCeiling)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.opts.GenerateTimeout)
	defer cancel()

	text, err := s.generator.Generate(genCtx, prompt, s.opts.Gen)
	if err != nil {
		return nil, fmt.Errorf("rag: generate: %w", err)
	}

	sources := make([]Source, len(ranked))
	for i, rc := range ranked {
		sources[i] = Source{
			ChunkID:  rc.Chunk.ChunkID,
			Text:     rc.Chunk.Text,
			Score:    rc.Score,
			Source:   string(rc.Chunk.Source()),
			Rank:     rc.Rank,
			Citation: rc.Citation(),
		}
	}
	return &Answer{Text: text, Sources: sources}, nil
}
