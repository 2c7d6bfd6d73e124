package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/nextconvert/reelmix/internal/modules/jobs"
	"github.com/nextconvert/reelmix/internal/modules/media"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/nextconvert/reelmix/internal/shared/database"
	"github.com/nextconvert/reelmix/internal/shared/logging"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// metricsPort serves the worker's /metrics endpoint
const metricsPort = 9091

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

	logger.Info("Starting Reelmix Worker",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("environment", cfg.Environment),
	)

	// Initialize database
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

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

	_, pipeline, err := media.NewPipeline(cfg, m, logger)
	if err != nil {
		logger.Fatal("Failed to load presets", zap.Error(err))
	}

	jobQueue := jobs.NewQueueClient(cfg.RedisURL, logger)
	defer jobQueue.Close()

	// Run bookkeeping; events reach API servers over Redis
	runs := jobs.NewModule(jobs.ModuleConfig{
		Store:          jobs.NewPostgresStore(db),
		Storage:        storageService,
		Queue:          jobQueue,
		Publishers:     []jobs.EventPublisher{jobs.NewRedisPublisher(redisClient)},
		Metrics:        m,
		Logger:         logger,
		MaxRunsPerUser: cfg.MaxRunsPerUser,
	})

	// Create job handler
	jobHandler := jobs.NewHandler(jobs.HandlerConfig{
		Runs:         runs,
		Storage:      storageService,
		Pipeline:     pipeline,
		WorkspaceDir: cfg.Montage.WorkspaceDir,
		Metrics:      m,
		Logger:       logger,
	})

	// Configure Asynq server
	srv := asynq.NewServer(
		jobs.RedisClientOpt(cfg.RedisURL),
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues:      jobs.Queues,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeMontageRun, jobHandler.HandleMontageRun)
	mux.HandleFunc(jobs.TypeCleanupFiles, jobHandler.HandleCleanupFiles)

	scheduler, err := jobQueue.ScheduleCleanup()
	if err != nil {
		logger.Fatal("Failed to schedule cleanup", zap.Error(err))
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", metricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	// Start worker
	go func() {
		logger.Info("Worker started", zap.Int("concurrency", cfg.WorkerConcurrency))
		if err := srv.Run(mux); err != nil {
			logger.Fatal("Worker failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	scheduler.Shutdown()
	srv.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	metricsServer.Shutdown(ctx)
	logger.Info("Worker stopped")
}
