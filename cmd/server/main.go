package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/topicstream/topicstream/internal/api"
	"github.com/topicstream/topicstream/internal/cache"
	"github.com/topicstream/topicstream/internal/discourse"
	"github.com/topicstream/topicstream/internal/feed"
	"github.com/topicstream/topicstream/internal/models"
	"github.com/topicstream/topicstream/internal/notify"
	"github.com/topicstream/topicstream/internal/session"
	"github.com/topicstream/topicstream/internal/store"
	"github.com/topicstream/topicstream/internal/summary"
	"github.com/topicstream/topicstream/pkg/config"
	"github.com/topicstream/topicstream/pkg/logging"
	"github.com/topicstream/topicstream/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logging.InitLogger(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logging.GetLogger().Sync()

	logger := logging.GetLogger()
	logger.Info("Starting TopicStream server")

	// Initialize telemetry
	telemetryShutdown, err := telemetry.Init(&cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetryShutdown()

	// Database
	db, err := store.New(&cfg.Database, cfg.Logging.Level)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	repo := store.NewRepository(db.DB)
	readMarks := store.NewReadMarkRepository(repo)
	settings := store.NewSettingsRepository(repo)

	// Session cache, redis when configured
	var sessionCache cache.Store
	if cfg.Redis.Enabled && cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedis(&cfg.Redis)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		sessionCache = redisCache
	} else {
		logger.Info("Redis not configured, using in-memory session cache")
		sessionCache = cache.NewMemory()
	}
	defer sessionCache.Close()

	// Forum client
	forum, err := discourse.New(&cfg.Forum)
	if err != nil {
		logger.Fatal("Failed to create forum client", zap.Error(err))
	}

	checker := session.New(forum, sessionCache, &cfg.Forum)
	summarizer := summary.NewClient(cfg.AI)

	// Background task queue and notification center
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	queue := notify.NewQueue(64)
	queue.Start(rootCtx)
	center := notify.NewCenter()

	// Feed engine
	engine := feed.NewEngine(feed.Options{
		Gateway:     forum,
		ReadMarks:   readMarks,
		Settings:    settings,
		Queue:       queue,
		Notifier:    center,
		Categories:  cfg.Forum.Categories,
		FreshWindow: cfg.Feed.FreshWindow,
		Defaults: models.FilterConfig{
			PollingInterval:  cfg.Feed.PollingInterval,
			LowDataMode:      cfg.Feed.LowDataMode,
			BlockCategories:  cfg.Feed.BlockCategories,
			KeywordBlacklist: cfg.Feed.KeywordBlacklist,
			QualityFilter:    cfg.Feed.QualityFilter,
			ReadStatusAction: cfg.Feed.ReadStatusAction,
			ShowBadge:        cfg.Feed.ShowBadge,
			NotifyKeywords:   cfg.Feed.NotifyKeywords,
			SyncReadStatus:   cfg.Feed.SyncReadStatus,
		},
		UserDefault: models.UserSettings{
			AutoRefreshEnabled: cfg.Feed.PollingInterval > 0,
			CategoryFilter:     "all",
			SortFilter:         cfg.Feed.SortKey,
		},
	})
	if err := engine.Init(rootCtx); err != nil {
		logger.Fatal("Failed to initialize feed engine", zap.Error(err))
	}

	// Initial load; a failed load leaves the engine in its error state
	// and the poller retries on the next cycle.
	loadCtx, loadCancel := context.WithTimeout(rootCtx, 30*time.Second)
	if err := engine.Load(loadCtx); err != nil {
		logger.Warn("Initial feed load failed", zap.Error(err))
	}
	loadCancel()

	poller := feed.NewPoller(engine.Config().PollingInterval, func(ctx context.Context) {
		if err := engine.Load(ctx); err != nil {
			logger.Warn("Scheduled feed load failed", zap.Error(err))
		}
	})
	if engine.UserSettings().AutoRefreshEnabled {
		poller.Start(rootCtx)
	}
	defer poller.Stop()

	// Create Gin router
	if cfg.Logging.Level == "DEBUG" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	apiRouter := api.NewRouter(engine, poller, checker, forum, summarizer, center)
	apiRouter.SetupRoutes(router)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	poller.Stop()
	rootCancel()
	queue.Wait()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
