// Command query serves the question-answering API: it embeds the
// question, retrieves the closest chunks from Qdrant, assembles a
// token-budgeted context, and answers via the generation backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/DocsmithAI/docsmith-mvp/engine/domain"
	"github.com/DocsmithAI/docsmith-mvp/engine/embed"
	"github.com/DocsmithAI/docsmith-mvp/engine/rag"
	"github.com/DocsmithAI/docsmith-mvp/engine/semantic"
	"github.com/DocsmithAI/docsmith-mvp/pkg/metrics"
	"github.com/DocsmithAI/docsmith-mvp/pkg/mid"
	"github.com/DocsmithAI/docsmith-mvp/pkg/ollama"
)

var met = metrics.New()

var (
	mQueries      = met.Counter("docsmith_query_requests_total", "Query requests served")
	mQueryErrors  = met.Counter("docsmith_query_errors_total", "Query requests that failed")
	mQueryDur     = met.Histogram("docsmith_query_duration_seconds", "End-to-end query time", nil)
	mEmptyAnswers = met.Counter("docsmith_query_empty_answers_total", "Queries with no relevant context")
)

const defaultK = 4

func main() {
	var (
		port        = flag.Int("port", 8090, "HTTP listen port")
		ollamaURL   = flag.String("ollama", "http://localhost:11434", "Ollama base URL")
		embedModel  = flag.String("embed-model", "nomic-embed-text", "Ollama embedding model")
		genModel    = flag.String("gen-model", "llama3.1:8b", "Ollama generation model")
		vectorDims  = flag.Int("dims", 768, "embedding vector dimensions")
		qdrantAddr  = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection  = flag.String("collection", "docsmith", "Qdrant collection name")
		tokenBudget = flag.Int("token-budget", 2000, "context token budget")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	store, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		logger.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	embedOpts := embed.DefaultOptions()
	embedOpts.Dimensions = *vectorDims
	embedder := embed.NewBatcher(ollama.NewEmbedClient(*ollamaURL, *embedModel), embedOpts)

	opts := rag.DefaultOptions()
	opts.TokenBudget = *tokenBudget
	svc := rag.New(
		embedder,
		rag.NewRetriever(store),
		ollama.NewGenerateClient(*ollamaURL, *genModel),
		opts,
		logger,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(w, r, svc, logger)
	})
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.Handle("/metrics", met.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.Traced("query-api"),
	)
	srv := &http.Server{Addr: ":" + strconv.Itoa(*port), Handler: handler}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("query API starting", "port", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
}

type queryResponse struct {
	Answer  string       `json:"answer"`
	Sources []rag.Source `json:"sources"`
}

func handleQuery(w http.ResponseWriter, r *http.Request, svc *rag.Service, logger *slog.Logger) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.K == 0 {
		req.K = defaultK
	}

	start := time.Now()
	ans, err := svc.Query(r.Context(), domain.Query{Question: req.Question, K: req.K})
	mQueryDur.Since(start)
	if err != nil {
		mQueryErrors.Inc()
		switch {
		case errors.Is(err, domain.ErrInvalidQuery):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrIndexUnavailable):
			writeError(w, http.StatusServiceUnavailable, "index unavailable")
		case errors.Is(err, domain.ErrContextTooLarge):
			writeError(w, http.StatusInternalServerError, "context too large")
		default:
			logger.Error("query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "query failed")
		}
		return
	}

	mQueries.Inc()
	if ans.Text == rag.NoRelevantInformation {
		mEmptyAnswers.Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(queryResponse{Answer: ans.Text, Sources: ans.Sources})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
