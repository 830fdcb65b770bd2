// Package server exposes the orchestrator's JSON API: rag queries,
// playbook runs, pipeline triggers and run observability.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/tenderwise/tenderflow/internal/events"
	"github.com/tenderwise/tenderflow/internal/metrics"
	"github.com/tenderwise/tenderflow/internal/pipeline"
)

// defaultRunTimeout bounds a background pipeline execution.
const defaultRunTimeout = 30 * time.Minute

// Server wires the HTTP API to the domain services.
type Server struct {
	engine     QueryEngine
	playbook   PlaybookRunner
	corpus     CorpusManager
	docs       DocumentAnswerer
	runs       RunStore
	documents  DocumentStore
	executor   PipelineExecutor
	definition pipeline.Definition
	bus        *events.Bus
	metrics    *metrics.Collector
	logger     *slog.Logger
	runTimeout time.Duration

	httpServer *http.Server
}

// Deps carries everything the server needs.
type Deps struct {
	Engine     QueryEngine
	Playbook   PlaybookRunner
	Corpus     CorpusManager
	Docs       DocumentAnswerer
	Runs       RunStore
	Documents  DocumentStore
	Executor   PipelineExecutor
	Definition pipeline.Definition
	Bus        *events.Bus
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// New creates the API server listening on the given port.
func New(port string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		engine:     deps.Engine,
		playbook:   deps.Playbook,
		corpus:     deps.Corpus,
		docs:       deps.Docs,
		runs:       deps.Runs,
		documents:  deps.Documents,
		executor:   deps.Executor,
		definition: deps.Definition,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		logger:     logger,
		runTimeout: defaultRunTimeout,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           loggingMiddleware(logger, s.routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("POST /rag/query", s.handleRagQuery)
	mux.HandleFunc("POST /rag/playbook", s.handlePlaybook)
	mux.HandleFunc("GET /rag/files", s.handleFilesList)
	mux.HandleFunc("POST /rag/files/delete", s.handleFilesDelete)
	mux.HandleFunc("PUT /documents/{tenderId}", s.handlePutDocument)
	mux.HandleFunc("POST /pubsub/pipeline-trigger", s.handlePipelineTrigger)
	mux.HandleFunc("GET /runs/watch", s.handleRunsWatch)
	mux.HandleFunc("GET /runs/{tenderId}", s.handleGetRun)
	mux.HandleFunc("GET /runs/{tenderId}/history", s.handleListRuns)
	return mux
}

// ListenAndServe blocks serving the API until the server is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("API server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
