package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nextconvert/reelmix/internal/api"
	"github.com/nextconvert/reelmix/internal/api/handlers"
	"github.com/nextconvert/reelmix/internal/api/websocket"
	"github.com/nextconvert/reelmix/internal/modules/jobs"
	"github.com/nextconvert/reelmix/internal/modules/media"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/nextconvert/reelmix/internal/shared/database"
	"github.com/nextconvert/reelmix/internal/shared/logging"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Reelmix API Server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	runStore := jobs.NewPostgresStore(db)
	if err := runStore.Migrate(ctx); err != nil {
		logger.Fatal("Failed to migrate run store", zap.Error(err))
	}

	// Initialize Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Initialize storage
	storageService, err := storage.NewService(cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	m := metrics.New()

	// WebSocket hub; worker events arrive through the Redis relay
	wsHub := websocket.NewHub(logger, cfg.AllowedOrigins, m)
	go wsHub.Run(ctx)
	go wsHub.Relay(ctx, redisClient.Client)

	presets, pipeline, err := media.NewPipeline(cfg, m, logger)
	if err != nil {
		logger.Fatal("Failed to load presets", zap.Error(err))
	}

	// Initialize job queue client
	jobQueue := jobs.NewQueueClient(cfg.RedisURL, logger)
	defer jobQueue.Close()

	runs := jobs.NewModule(jobs.ModuleConfig{
		Store:          runStore,
		Storage:        storageService,
		Queue:          jobQueue,
		Publishers:     []jobs.EventPublisher{jobs.NewRedisPublisher(redisClient)},
		Metrics:        m,
		Logger:         logger,
		MaxRunsPerUser: cfg.MaxRunsPerUser,
	})

	// Create API server
	server := api.NewServer(api.ServerConfig{
		Config: cfg,
		Logger: logger,
		Redis:  redisClient,
		Checks: map[string]handlers.HealthChecker{
			"postgres": db,
			"redis":    redisClient,
		},
		Storage:  storageService,
		WSHub:    wsHub,
		Pipeline: pipeline,
		Presets:  presets,
		Runs:     runs,
		Metrics:  m,
	})

	// Synchronous clip requests hold the response open for the whole render,
	// so there is no write timeout.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("API server listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
