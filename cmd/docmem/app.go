package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docmem/internal/ai"
	"github.com/xxxsen/docmem/internal/chunker"
	"github.com/xxxsen/docmem/internal/config"
	"github.com/xxxsen/docmem/internal/db"
	"github.com/xxxsen/docmem/internal/embedcache"
	"github.com/xxxsen/docmem/internal/memory"
	"github.com/xxxsen/docmem/internal/repo"
	"github.com/xxxsen/docmem/internal/service"
	"github.com/xxxsen/docmem/internal/snapstore"
)

// app holds the wired services shared by the server and the CLI commands.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	cacheRepo *repo.EmbeddingCacheRepo
	snapshots snapstore.Store
	manager   *memory.Manager
	memories  *service.MemoryService
	assistant *service.AssistantService
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	logger := logutil.GetLogger(ctx)

	if cfg.Database.Enabled() {
		conn, err := db.Open(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = conn
		a.cacheRepo = repo.NewEmbeddingCacheRepo(conn)
	}

	snapCfg := cfg.SnapshotStore
	if snapCfg.Type == "postgres" && snapCfg.Data == nil {
		snapCfg.Data = cfg.Database
	}
	snapshots, err := snapstore.New(snapCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}
	a.snapshots = snapshots

	chunks, err := chunker.New(cfg.Chunker)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	embedder, err := ai.BuildEmbedder(cfg.Embedder.Providers, cfg.Memory.Dimension)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	if cfg.EmbedCache.UseDB && a.cacheRepo != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.EmbedCache.LRUSize,
		time.Duration(cfg.EmbedCache.LRUTTLMinutes)*time.Minute)

	generator, err := ai.BuildGenerator(cfg.AI.Providers)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init ai provider: %w", err)
	}
	aiManager := ai.NewManager(generator, ai.ManagerConfig{
		Timeout:       cfg.AI.Timeout,
		MaxInputChars: cfg.AI.MaxInputChars,
	})

	a.manager = memory.NewManager(chunks, embedder, snapshots, memory.Options{
		Dimension:     cfg.Memory.Dimension,
		MinChunkChars: cfg.Memory.MinChunkChars,
		DefaultTopK:   cfg.Memory.DefaultTopK,
		EmbedTimeout:  time.Duration(cfg.Memory.EmbedTimeout) * time.Second,
	})
	a.memories = service.NewMemoryService(a.manager, cfg.Memory.DefaultTopK)
	a.assistant = service.NewAssistantService(a.memories, aiManager)

	logger.Info("services ready",
		zap.String("snapshot_store", snapshots.Type()),
		zap.String("embedder", embedder.ModelName()),
		zap.Int("dimension", embedder.Dimension()),
		zap.Bool("ai_available", aiManager.Available()),
		zap.Bool("db_cache", cfg.EmbedCache.UseDB && a.cacheRepo != nil),
	)
	return a, nil
}

func (a *app) Close() {
	if a.snapshots != nil {
		if err := a.snapshots.Close(); err != nil {
			logutil.GetLogger(context.Background()).Error("close snapshot store failed", zap.Error(err))
		}
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
