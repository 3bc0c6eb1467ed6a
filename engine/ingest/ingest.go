// Package ingest runs normalized source records through validation,
// chunking, embedding, and index storage, with deduplication and
// re-ingestion bookkeeping against the lineage catalog.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DocsmithAI/docsmith-mvp/engine/chunk"
	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/engine/index"
	"github.com/DocsmithAI/docsmith-mvp/engine/semantic"
	"github.com/DocsmithAI/docsmith-mvp/pkg/fn"
)

// Lineage is the catalog surface the pipeline needs. Nil lineage disables
// deduplication and bookkeeping but not the pipeline itself.
type Lineage interface {
	HasRecord(ctx context.Context, id string) (bool, error)
	SaveRecord(ctx context.Context, r domain.SourceRecord, chunks []domain.Chunk) error
}

// Deps holds the external dependencies of the ingestion pipeline.
type Deps struct {
	Writer   *index.Writer
	Store    semantic.Store
	Lineage  Lineage
	Chunking chunk.Config
	Logger   *slog.Logger
}

// Report summarizes one record's trip through the pipeline.
type Report struct {
	RecordID   string                      `json:"record_id"`
	Source     domain.Source               `json:"source"`
	ChunkCount int                         `json:"chunk_count"`
	Indexed    int                         `json:"indexed"`
	Failed     map[string]domain.ErrorKind `json:"failed,omitempty"`
	Skipped    bool                        `json:"skipped,omitempty"` // duplicate, nothing done
}

// ChunkedRecord pairs a record with its chunks between stages.
type ChunkedRecord struct {
	Record domain.SourceRecord
	Chunks []domain.Chunk
}

// Validate is the entry gate stage.
var Validate fn.Stage[domain.SourceRecord, domain.SourceRecord] = func(_ context.Context, r domain.SourceRecord) fn.Result[domain.SourceRecord] {
	if err := domain.ValidateRecord(r); err != nil {
		return fn.Err[domain.SourceRecord](err)
	}
	return fn.Ok(r)
}

// NewChunkStage splits a record under the given chunking config.
func NewChunkStage(cfg chunk.Config) fn.Stage[domain.SourceRecord, ChunkedRecord] {
	return func(_ context.Context, r domain.SourceRecord) fn.Result[ChunkedRecord] {
		chunks, err := chunk.Split(r, cfg)
		if err != nil {
			return fn.Err[ChunkedRecord](err)
		}
		return fn.Ok(ChunkedRecord{Record: r, Chunks: chunks})
	}
}

// NewIndexStage embeds and stores a record's chunks, then writes lineage.
// Partial failure is not a stage error: the per-chunk outcome lands in the
// report and the caller decides whether to retry the record.
func NewIndexStage(deps Deps) fn.Stage[ChunkedRecord, Report] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context, cr ChunkedRecord) fn.Result[Report] {
		report := Report{
			RecordID:   cr.Record.ID,
			Source:     cr.Record.Source,
			ChunkCount: len(cr.Chunks),
		}
		if len(cr.Chunks) == 0 {
			return fn.Ok(report)
		}

		result := deps.Writer.IndexChunks(ctx, cr.Chunks)
		report.Indexed = len(result.Succeeded)
		if len(result.Failed) > 0 {
			report.Failed = result.Failed
			log.Warn("ingest: partial index",
				"record_id", cr.Record.ID,
				"indexed", report.Indexed,
				"failed", len(result.Failed),
			)
		}

		if deps.Lineage != nil && report.Indexed > 0 {
			if err := deps.Lineage.SaveRecord(ctx, cr.Record, cr.Chunks); err != nil {
				// The index write already happened; lineage is advisory.
				log.Warn("ingest: lineage save failed", "record_id", cr.Record.ID, "error", err)
			}
		}
		return fn.Ok(report)
	}
}

// LoggedTap returns a pass-through stage that logs each value reaching
// the named stage.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return fn.TapStage(func(_ context.Context, _ T) {
		log.Info("stage.enter", "stage", name)
	})
}

// chunking resolves the effective chunk config. Only the zero value is
// defaulted; anything explicitly set must pass validation.
func (d Deps) chunking() (chunk.Config, error) {
	cfg := d.Chunking
	if cfg == (chunk.Config{}) {
		cfg = chunk.DefaultConfig()
	}
	return cfg, cfg.Validate()
}

// NewPipeline composes Validate, Chunk, and Index with logging taps and
// per-stage tracing. An invalid chunk config is not masked here; the
// chunk stage rejects it per record.
func NewPipeline(deps Deps) fn.Stage[domain.SourceRecord, Report] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	deps.Chunking, _ = deps.chunking()

	validated := fn.Then(LoggedTap[domain.SourceRecord]("validate", log), fn.TracedStage("ingest.validate", Validate))
	chunked := fn.Then(validated, fn.Then(LoggedTap[domain.SourceRecord]("chunk", log), fn.TracedStage("ingest.chunk", NewChunkStage(deps.Chunking))))
	return fn.Then(chunked, fn.Then(LoggedTap[ChunkedRecord]("index", log), fn.TracedStage("ingest.index", NewIndexStage(deps))))
}

// Ingest runs one record through the pipeline with deduplication: a
// record already catalogued is skipped, not re-processed. A degenerate
// chunk config is rejected before any I/O.
func (d Deps) Ingest(ctx context.Context, r domain.SourceRecord) (Report, error) {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	if _, err := d.chunking(); err != nil {
		return Report{}, err
	}

	if d.Lineage != nil {
		exists, err := d.Lineage.HasRecord(ctx, r.ID)
		if err != nil {
			log.Warn("ingest: dedup check failed", "record_id", r.ID, "error", err)
		} else if exists {
			log.Info("ingest: skipping duplicate", "record_id", r.ID)
			return Report{RecordID: r.ID, Source: r.Source, Skipped: true}, nil
		}
	}

	result := NewPipeline(d)(ctx, r)
	return result.Unwrap()
}

// Reingest forces a record through the pipeline again. The parent's
// existing chunks are deleted from the index first so stale windows never
// survive a chunking change.
func (d Deps) Reingest(ctx context.Context, r domain.SourceRecord) (Report, error) {
	if _, err := d.chunking(); err != nil {
		return Report{}, err
	}
	if err := d.Store.DeleteByParentID(ctx, r.ID); err != nil {
		return Report{}, fmt.Errorf("ingest: delete stale chunks: %w", err)
	}
	result := NewPipeline(d)(ctx, r)
	return result.Unwrap()
}
