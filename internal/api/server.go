package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nextconvert/reelmix/internal/api/handlers"
	"github.com/nextconvert/reelmix/internal/api/middleware"
	"github.com/nextconvert/reelmix/internal/api/websocket"
	"github.com/nextconvert/reelmix/internal/modules/montage"
	"github.com/nextconvert/reelmix/internal/shared/config"
	"github.com/nextconvert/reelmix/internal/shared/database"
	"github.com/nextconvert/reelmix/internal/shared/metrics"
	"github.com/nextconvert/reelmix/internal/shared/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ServerConfig holds dependencies for the API server
type ServerConfig struct {
	Config   *config.Config
	Logger   *zap.Logger
	Redis    *database.Redis // optional; rate limiting is off without it
	Checks   map[string]handlers.HealthChecker
	Storage  *storage.Service
	WSHub    *websocket.Hub
	Pipeline montage.Runner
	Presets  *montage.Presets
	Runs     handlers.RunService
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // defaults to the global registry
}

// Server represents the API server
type Server struct {
	config   *config.Config
	logger   *zap.Logger
	redis    *database.Redis
	checks   map[string]handlers.HealthChecker
	storage  *storage.Service
	wsHub    *websocket.Hub
	pipeline montage.Runner
	presets  *montage.Presets
	runs     handlers.RunService
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		config:   cfg.Config,
		logger:   cfg.Logger,
		redis:    cfg.Redis,
		checks:   cfg.Checks,
		storage:  cfg.Storage,
		wsHub:    cfg.WSHub,
		pipeline: cfg.Pipeline,
		presets:  cfg.Presets,
		runs:     cfg.Runs,
		metrics:  cfg.Metrics,
		gatherer: cfg.Gatherer,
	}
}

// Router returns the configured HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	if s.metrics != nil {
		r.Use(middleware.MetricsMiddleware(s.metrics))
	}
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(cors.Handler(middleware.CORSOptions(s.config.AllowedOrigins)))

	var redisClient *redis.Client
	if s.redis != nil {
		redisClient = s.redis.Client
	}
	rateLimiter := middleware.NewRateLimiter(redisClient, s.logger)

	// Apply global rate limit (100 req/min per IP) - before auth so it catches everything
	r.Use(rateLimiter.Limit(middleware.GlobalRateLimit))

	clerkAuth := middleware.NewClerkAuthMiddleware(s.config.ClerkSecretKey, s.config.IsProduction())

	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.checks)
	clipHandler := handlers.NewClipHandler(handlers.ClipHandlerConfig{
		Pipeline:      s.pipeline,
		Presets:       s.presets,
		Storage:       s.storage,
		Publisher:     s.wsHub,
		WorkspaceDir:  s.config.Montage.WorkspaceDir,
		DefaultPreset: s.config.Montage.DefaultPreset,
		Metrics:       s.metrics,
		Logger:        s.logger,
	})
	runHandler := handlers.NewRunHandler(s.runs, s.presets, s.storage, s.config.Montage.DefaultPreset, s.logger)
	outputHandler := handlers.NewOutputHandler(s.storage, s.logger)
	presetsHandler := handlers.NewPresetsHandler(s.presets)

	// Uploads: per-user limit, stricter anonymous IP limit, then file checks
	uploads := []func(http.Handler) http.Handler{
		clerkAuth.Handler,
		rateLimiter.Limit(middleware.ClipRateLimit),
		rateLimiter.Limit(middleware.AnonClipRateLimit),
		middleware.ValidateUploads(s.config.MaxUploadSize, middleware.ClipUploads),
	}

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	// Form endpoint of the original single-page clipper
	r.With(uploads...).Post("/clip-video/", clipHandler.Clip)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (public)
		r.Get("/health", healthHandler.Health)
		r.Get("/ready", healthHandler.Ready)

		r.Get("/presets", presetsHandler.ListPresets)
		r.Get("/presets/{name}", presetsHandler.GetPreset)

		r.With(uploads...).Post("/clips", clipHandler.Clip)
		r.With(uploads...).Post("/clips/batch", clipHandler.ClipBatch)

		r.Get("/outputs/{runId}/{file}", outputHandler.Download)

		// Routes scoped to the caller's identity
		r.Group(func(r chi.Router) {
			r.Use(clerkAuth.Handler)
			r.Use(middleware.NoCache)

			r.With(
				rateLimiter.Limit(middleware.RunCreationRateLimit),
				rateLimiter.Limit(middleware.AnonClipRateLimit),
				middleware.ValidateUploads(s.config.MaxUploadSize, middleware.ClipUploads),
			).Post("/runs", runHandler.CreateRun)
			r.Get("/runs", runHandler.ListRuns)
			r.Get("/runs/{id}", runHandler.GetRun)

			// WebSocket
			r.Get("/ws", s.wsHub.HandleConnection)
		})
	})

	return r
}
