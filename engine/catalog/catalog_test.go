package catalog

import (
	"testing"
	"time"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
)

func TestEntryFromProps(t *testing.T) {
	ingested := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	props := map[string]any{
		"id":          "email_42",
		"source":      "email",
		"chunk_count": int64(3),
		"ingested_at": ingested,
	}
	e := entryFromProps(props)
	if e.ID != "email_42" {
		t.Fatalf("id = %s", e.ID)
	}
	if e.Source != domain.SourceEmail {
		t.Fatalf("source = %s", e.Source)
	}
	if e.ChunkCount != 3 {
		t.Fatalf("chunk_count = %d", e.ChunkCount)
	}
	if !e.IngestedAt.Equal(ingested) {
		t.Fatalf("ingested_at = %v", e.IngestedAt)
	}
}

func TestEntryFromPropsToleratesMissingFields(t *testing.T) {
	e := entryFromProps(map[string]any{"id": "doc_1"})
	if e.ID != "doc_1" || e.ChunkCount != 0 || e.Source != "" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestNewCatalog(t *testing.T) {
	// Construction needs no live Neo4j.
	if c := New(nil); c == nil {
		t.Fatal("expected non-nil Catalog")
	}
}
