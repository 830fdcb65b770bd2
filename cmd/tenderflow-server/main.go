// Package main provides the Tenderflow API server.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tenderwise/tenderflow/internal/config"
	"github.com/tenderwise/tenderflow/internal/corpus"
	"github.com/tenderwise/tenderflow/internal/db"
	"github.com/tenderwise/tenderflow/internal/embedding"
	"github.com/tenderwise/tenderflow/internal/events"
	"github.com/tenderwise/tenderflow/internal/generative"
	"github.com/tenderwise/tenderflow/internal/llm"
	"github.com/tenderwise/tenderflow/internal/metrics"
	"github.com/tenderwise/tenderflow/internal/parser"
	"github.com/tenderwise/tenderflow/internal/pipeline"
	"github.com/tenderwise/tenderflow/internal/playbook"
	"github.com/tenderwise/tenderflow/internal/rag"
	"github.com/tenderwise/tenderflow/internal/server"
	"github.com/tenderwise/tenderflow/internal/storage"
)

// storageStore selects the object store backend. TENDERFLOW_STORAGE=memory
// runs without S3, useful for local development.
func storageStore(cfg config.Config) (storage.ObjectStore, error) {
	if os.Getenv("TENDERFLOW_STORAGE") == "memory" {
		return storage.NewMemStore(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return storage.NewS3Store(ctx, cfg.S3Endpoint)
}

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	cfg := config.Load()

	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer closeLog()

	logger.Info("starting tenderflow-server", "port", cfg.ServerPort)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger)
	if err != nil {
		cancel()
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("TENDERFLOW_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("wiped all database tables")
	}
	cancel()
	defer func() {
		if err := dbClient.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	objects, err := storageStore(cfg)
	if err != nil {
		logger.Error("failed to create object store", "error", err)
		os.Exit(1)
	}

	embedder, err := embedding.NewOllamaClient(cfg.EmbedModel, cfg.EmbedDimension)
	if err != nil {
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	collector := metrics.NewCollector()

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	model, err := llm.NewModel(ctx, cfg, collector)
	cancel()
	if err != nil {
		logger.Error("failed to create model", "error", err)
		os.Exit(1)
	}

	bus := events.NewBus()
	defer bus.Close()

	chunkCfg := parser.ConfigForTokens(cfg.ChunkSizeTokens, cfg.ChunkOverlapTokens)
	corpusSvc := corpus.NewService(dbClient, objects, embedder, chunkCfg, collector, logger)

	cache := rag.NewCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	engine := rag.NewEngine(corpusSvc, model, cache, cfg.DefaultTopK, collector, logger)

	docs := generative.NewService(model, objects, cfg.RawBucket, logger)

	runner := playbook.NewRunner(
		engine,
		docs,
		corpusSvc,
		objects,
		cfg.ParsedBucket,
		cfg.PlaybookConfigPath,
		cfg.PlaybookPacing,
		logger,
	)

	dispatcher := pipeline.NewDispatcher(
		cfg.ServiceMap,
		dbClient,
		cfg.DispatchTimeout,
		cfg.DispatchMaxRetries,
		bus,
		collector,
		logger,
	)
	executor := pipeline.NewRunner(dbClient, dbClient, dispatcher, pipeline.Default, bus, cfg.DispatchRetryWait, logger)

	srv := server.New(cfg.ServerPort, server.Deps{
		Engine:     engine,
		Playbook:   runner,
		Corpus:     corpusSvc,
		Docs:       docs,
		Runs:       dbClient,
		Documents:  dbClient,
		Executor:   executor,
		Definition: pipeline.Default,
		Bus:        bus,
		Metrics:    collector,
		Logger:     logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logger.Info("received signal, shutting down", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}
}
