package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docmem/internal/config"
	"github.com/xxxsen/docmem/internal/handler"
	"github.com/xxxsen/docmem/internal/job"
	"github.com/xxxsen/docmem/internal/middleware"
	"github.com/xxxsen/docmem/internal/observability"
	"github.com/xxxsen/docmem/internal/schedule"
	"github.com/xxxsen/docmem/internal/service"
)

const defaultScope = "default"

type rootOptions struct {
	configPath string
	scope      string
}

func main() {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "docmem",
		Short:         "document memory: upload PDFs, ask questions about them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.PersistentFlags().StringVar(&opts.scope, "scope", defaultScope, "memory scope used by CLI commands")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newIngestCmd(opts),
		newAskCmd(opts),
		newSearchCmd(opts),
		newDocsCmd(opts),
		newRemoveCmd(opts),
		newStatsCmd(opts),
		newClearCmd(opts),
	)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

// loadConfig reads .env, the config file (or the offline defaults) and
// initializes logging.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Debug("config loaded", zap.String("config", opts.configPath))
	return cfg, nil
}

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("jwt_secret is required to run the server")
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logutil.GetLogger(ctx)

	tp, err := observability.InitTracing(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracing shutdown failed", zap.Error(err))
		}
	}()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	scheduler := schedule.NewCronScheduler()
	idle := time.Duration(cfg.Schedule.ScopeIdleMinutes) * time.Minute
	if err := scheduler.AddJob(job.NewScopeEvictionJob(a.manager, idle), cfg.Schedule.ScopeEvictionSpec); err != nil {
		return fmt.Errorf("schedule scope eviction: %w", err)
	}
	if a.cacheRepo != nil {
		cleanup := job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.EmbedCache.MaxAgeDays)
		if err := scheduler.AddJob(cleanup, cfg.Schedule.CacheCleanupSpec); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Sessions:     handler.NewSessionHandler(service.NewSessionService([]byte(cfg.JWTSecret), time.Hour*time.Duration(cfg.JWTTTLHours))),
		Documents:    handler.NewDocumentHandler(a.memories, a.assistant, int64(cfg.UploadLimitMB)*1024*1024),
		Query:        handler.NewQueryHandler(a.memories, a.assistant),
		Memory:       handler.NewMemoryHandler(a.memories, a.assistant),
		JWTSecret:    []byte(cfg.JWTSecret),
		AskRateLimit: time.Duration(cfg.AskRateLimitMS) * time.Millisecond,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}
