package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engram-labs/engram/internal/api"
	"github.com/engram-labs/engram/internal/classify"
	"github.com/engram-labs/engram/internal/config"
	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/importance"
	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/search"
	"github.com/engram-labs/engram/internal/store"
	"github.com/engram-labs/engram/internal/syncmgr"
	"github.com/engram-labs/engram/internal/vectorindex"
)

func main() {
	// Logger
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// SQLite
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stores
	records := store.NewRecordStore(db)
	categories := store.NewCategoryStore(db)
	accessLog := store.NewAccessLogStore(db)

	// Taxonomy: built-in defaults, then the user overlay on top
	if err := categories.SeedDefaults(); err != nil {
		logger.Error("failed to seed categories", "error", err)
		os.Exit(1)
	}
	overlay, err := cfg.LoadCategoryOverlay()
	if err != nil {
		logger.Error("failed to load category overlay", "error", err)
		os.Exit(1)
	}
	if len(overlay) > 0 {
		added, err := categories.MergeOverlay(overlay)
		if err != nil {
			logger.Error("failed to merge category overlay", "error", err)
			os.Exit(1)
		}
		logger.Info("category overlay merged", "added", added)
	}

	// Embedding stack: the concrete backend is chosen at compile time,
	// wrapped in a lazy initializer and a vector cache.
	embedder := buildEmbedder(cfg, logger)
	if embedder != nil {
		cached, err := embedding.NewCached(embedder, cfg.EmbedCacheBytes)
		if err != nil {
			logger.Error("failed to create embedding cache", "error", err)
			os.Exit(1)
		}
		defer cached.Close()
		embedder = cached
	}

	// Vector index: nil embedder means keyword-only operation
	index, err := vectorindex.New(embedder)
	if err != nil {
		logger.Error("failed to create vector index", "error", err)
		os.Exit(1)
	}

	// Services
	syncMgr := syncmgr.New(records, index, cfg.SyncMaxRetries, logger)
	classifier := classify.New(categories, embedder, logger)
	scorer := importance.NewScorer()
	engine := search.NewEngine(records, index, logger)

	mgr := memory.NewManager(memory.Services{
		Records:    records,
		Categories: categories,
		AccessLog:  accessLog,
		Index:      index,
		Sync:       syncMgr,
		Classifier: classifier,
		Scorer:     scorer,
		Engine:     engine,
		Logger:     logger,
	})

	// Regenerate the index from the canonical store on startup
	if index.Available() {
		go func() {
			synced, err := mgr.RebuildIndex(context.Background())
			if err != nil {
				logger.Error("index rebuild failed", "error", err)
				return
			}
			logger.Info("index rebuild complete", "synced", synced)
		}()
	}

	// Router
	defaults := api.RecallDefaults{
		TopK:                cfg.DefaultTopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
	}
	router := api.NewRouter(db, mgr, index, defaults, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("engram server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
