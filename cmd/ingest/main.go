// Command ingest watches a directory for normalized-record JSON files and
// runs them through the ingestion pipeline into Qdrant and Neo4j, with an
// optional NATS subscription for streamed records.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/DocsmithAI/docsmith-mvp/engine/catalog"
	"github.com/DocsmithAI/docsmith-mvp/engine/chunk"
	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/engine/embed"
	"github.com/DocsmithAI/docsmith-mvp/engine/index"
	"github.com/DocsmithAI/docsmith-mvp/engine/ingest"
	"github.com/DocsmithAI/docsmith-mvp/engine/semantic"
	"github.com/DocsmithAI/docsmith-mvp/pkg/metrics"
	"github.com/DocsmithAI/docsmith-mvp/pkg/natsutil"
	"github.com/DocsmithAI/docsmith-mvp/pkg/ollama"
)

var met = metrics.New()

var (
	mRecordsTotal   = met.Counter("docsmith_ingest_records_total", "Records ingested")
	mRecordsSkipped = met.Counter("docsmith_ingest_records_skipped_total", "Records skipped by dedup")
	mRecordErrors   = met.Counter("docsmith_ingest_record_errors_total", "Records that failed the pipeline")
	mChunksIndexed  = met.Counter("docsmith_ingest_chunks_indexed_total", "Chunks written to the index")
	mChunksFailed   = met.Counter("docsmith_ingest_chunks_failed_total", "Chunks that could not be indexed")
	mFilesProcessed = met.Counter("docsmith_ingest_files_processed_total", "Files processed")
	mBytesProcessed = met.Counter("docsmith_ingest_bytes_processed_total", "Bytes of source files processed")
	mLastScan       = met.Gauge("docsmith_ingest_last_scan_timestamp", "Epoch of last directory scan")
	mQueueDepth     = met.Gauge("docsmith_ingest_queue_depth", "Files waiting to process")
	mRecordDur      = met.Histogram("docsmith_ingest_record_duration_seconds", "Per-record pipeline time", nil)
)

func main() {
	var (
		dataDir     = flag.String("dir", "/var/lib/docsmith/records", "directory to watch for record JSON files")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("embed-model", "nomic-embed-text", "Ollama embedding model")
		vectorDims  = flag.Int("dims", 768, "embedding vector dimensions")
		neo4jURL    = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL (empty disables the catalog)")
		neo4jUser   = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass   = flag.String("neo4j-pass", "", "Neo4j password")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "docsmith", "Qdrant collection name")
		natsURL     = flag.String("nats", "", "NATS URL (empty disables the consumer)")
		maxTokens   = flag.Int("chunk-tokens", chunk.DefaultMaxTokens, "max tokens per chunk")
		overlap     = flag.Int("chunk-overlap", chunk.DefaultOverlapTokens, "overlap tokens between chunks")
		interval    = flag.Duration("interval", 30*time.Second, "scan interval")
		stateFile   = flag.String("state", "", "processed files state (defaults under -dir)")
		metricsPort = flag.Int("metrics-port", 9091, "metrics listen port")
	)
	flag.Parse()

	met.ServeAsync(*metricsPort)

	log := slog.Default()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := chunk.Config{MaxTokens: *maxTokens, OverlapTokens: *overlap}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid chunking config", "error", err)
		os.Exit(1)
	}

	store, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if err := store.EnsureCollection(ctx, *vectorDims); err != nil {
		log.Error("qdrant ensure collection failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to Qdrant", "collection", *collection, "dims", *vectorDims)

	var lineage ingest.Lineage
	if *neo4jURL != "" {
		driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
		if err != nil {
			log.Error("neo4j connect failed", "error", err)
			os.Exit(1)
		}
		defer driver.Close(ctx)
		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Error("neo4j verify failed", "error", err)
			os.Exit(1)
		}
		lineage = catalog.New(driver)
		log.Info("connected to Neo4j")
	}

	embedOpts := embed.DefaultOptions()
	embedOpts.Dimensions = *vectorDims
	embedder := embed.NewBatcher(ollama.NewEmbedClient(*ollamaURL, *embedModel), embedOpts)
	log.Info("using Ollama embeddings", "model", *embedModel)

	writer := index.NewWriter(store, embedder, index.DefaultOptions(), log)
	deps := ingest.Deps{
		Writer:   writer,
		Store:    store,
		Lineage:  lineage,
		Chunking: cfg,
		Logger:   log,
	}

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL)
		if err != nil {
			log.Error("nats connect failed", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
		sub, err := ingest.StartConsumer(nc, deps)
		if err != nil {
			log.Error("nats subscribe failed", "error", err)
			os.Exit(1)
		}
		defer sub.Unsubscribe()

		// Streamed records surface in the metrics via their reports.
		repSub, err := natsutil.Subscribe(nc, ingest.ReportSubject, func(_ context.Context, r ingest.Report) {
			if r.Skipped {
				mRecordsSkipped.Inc()
				return
			}
			mRecordsTotal.Inc()
			mChunksIndexed.Add(int64(r.Indexed))
			mChunksFailed.Add(int64(len(r.Failed)))
		}, func(err error) {
			log.Warn("report decode failed", "error", err)
		})
		if err != nil {
			log.Error("nats report subscribe failed", "error", err)
			os.Exit(1)
		}
		defer repSub.Unsubscribe()
		log.Info("consuming records", "subject", ingest.IngestSubject)
	}

	state := *stateFile
	if state == "" {
		state = filepath.Join(*dataDir, ".ingest-state.json")
	}
	processed := loadState(state)

	os.MkdirAll(*dataDir, 0o755)
	log.Info("watching for records", "dir", *dataDir, "interval", *interval)

	scan := func() {
		mLastScan.Set(time.Now().Unix())
		entries, err := os.ReadDir(*dataDir)
		if err != nil {
			log.Error("readdir failed", "error", err)
			return
		}

		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") || e.Name()[0] == '.' {
				continue
			}
			path := filepath.Join(*dataDir, e.Name())
			key, size, ok := entryKey(e)
			if !ok || processed[key] {
				continue
			}

			mQueueDepth.Inc()
			log.Info("processing file", "file", e.Name())
			mBytesProcessed.Add(size)
			count, errs := processFile(ctx, path, deps)
			mQueueDepth.Dec()
			mFilesProcessed.Inc()
			log.Info("file done", "file", e.Name(), "ingested", count, "errors", errs)

			// A file with errors is retried on the next scan.
			if errs == 0 {
				processed[key] = true
				saveState(state, processed)
			} else {
				log.Warn("file had errors, will retry", "file", e.Name(), "errors", errs)
			}
		}
	}

	scan()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case <-ticker.C:
			scan()
		}
	}
}

// entryKey identifies a file by name and size so grown files are
// re-scanned. A file that vanished between the directory read and the
// stat is skipped rather than crashing the scan.
func entryKey(e os.DirEntry) (key string, size int64, ok bool) {
	info, err := e.Info()
	if err != nil {
		return "", 0, false
	}
	return fmt.Sprintf("%s:%d", e.Name(), info.Size()), info.Size(), true
}

// processFile decodes a stream of JSON records from one file and ingests
// each. Returns the ingested and failed counts.
func processFile(ctx context.Context, path string, deps ingest.Deps) (int, int) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 1
	}
	defer f.Close()

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	count, errs := 0, 0
	dec := json.NewDecoder(f)
	for {
		if ctx.Err() != nil {
			break
		}
		var record domain.SourceRecord
		if err := dec.Decode(&record); err != nil {
			if err != io.EOF {
				log.Error("record decode failed", "file", path, "error", err)
				errs++
			}
			break
		}

		start := time.Now()
		report, err := deps.Ingest(ctx, record)
		mRecordDur.Since(start)
		if err != nil {
			log.Error("record failed", "record_id", record.ID, "error", err)
			mRecordErrors.Inc()
			errs++
			continue
		}
		if report.Skipped {
			mRecordsSkipped.Inc()
			continue
		}
		mRecordsTotal.Inc()
		mChunksIndexed.Add(int64(report.Indexed))
		mChunksFailed.Add(int64(len(report.Failed)))
		if len(report.Failed) > 0 {
			errs++
		} else {
			count++
		}
	}
	return count, errs
}

func loadState(path string) map[string]bool {
	m := make(map[string]bool)
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	json.Unmarshal(data, &m)
	return m
}

func saveState(path string, m map[string]bool) {
	data, _ := json.Marshal(m)
	os.WriteFile(path, data, 0o644)
}
