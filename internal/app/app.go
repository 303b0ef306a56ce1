package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"sehatmap/internal/config"
	apierrors "sehatmap/internal/errors"
	"sehatmap/internal/files"
	"sehatmap/internal/infrastructure"
	customMiddleware "sehatmap/internal/middleware"
	"sehatmap/internal/pipeline"
	"sehatmap/internal/services"
	"sehatmap/internal/store"
	handlers "sehatmap/internal/transport/http"
	"sehatmap/pkg/contracts"
)

// Application represents the main application container
type Application struct {
	Config            *config.Config
	Router            *chi.Mux
	Server            *http.Server
	Logger            *slog.Logger
	OTelProviders     *infrastructure.OTelProviders
	Metrics           *infrastructure.PipelineMetrics
	Store             *store.SQLiteStore
	PredictionService *services.PredictionService
	HealthService     *services.HealthService
	ErrorHandler      *apierrors.ErrorHandler
}

// NewApplication loads configuration and the global logger, then builds the application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(context.Background(), cfg, logger)
}

// New wires every component from an already loaded configuration
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.GetVersionString()))

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	cfg.LogPathResolution(logger)

	if cfg.Pipeline.GeoJSONPath != "" && !config.FileExists(cfg.Pipeline.GeoJSONPath) {
		logger.Warn("Geographic reference not found, coordinates will be empty",
			slog.String("path", cfg.Pipeline.GeoJSONPath))
	}

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.CreatePipelineMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  apierrors.NewErrorHandler(logger, false),
	}

	if err := app.initializeServices(ctx); err != nil {
		app.close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices opens the store and builds the services on top of it
func (a *Application) initializeServices(ctx context.Context) error {
	var (
		predictionStore services.PredictionStore
		pinger          services.Pinger
	)
	if a.Config.Store.Enabled {
		st, err := store.Open(ctx, a.Config.Store.Path, a.Logger)
		if err != nil {
			return err
		}
		a.Store = st
		predictionStore = st
		pinger = st
	}

	opts := pipeline.OptionsFromConfig(a.Config.Pipeline)
	if dir := a.Config.Pipeline.UploadDir; dir != "" {
		latest, ok, err := files.NewDiscovery("").LatestDataset(dir)
		if err != nil {
			return err
		}
		if ok {
			a.Logger.Info("Using previously uploaded dataset",
				slog.String("path", latest.Path),
				slog.Time("modified", latest.ModTime))
			opts.InputPath = latest.Path
		}
	}

	runner := pipeline.NewRunner(a.Logger, a.OTelProviders.Tracer, a.Metrics)
	a.PredictionService = services.NewPredictionService(services.PredictionServiceConfig{
		Options:    opts,
		UploadDir:  a.Config.Pipeline.UploadDir,
		RunTimeout: a.Config.Server.RunTimeout,
	}, runner, predictionStore, a.Logger)

	if err := a.PredictionService.Bootstrap(ctx); err != nil {
		return fmt.Errorf("failed to import existing predictions: %w", err)
	}

	a.HealthService = services.NewHealthService(
		pinger,
		a.PredictionService.DatasetPath,
		a.Config.Pipeline.GeoJSONPath,
		a.Logger,
	)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// RequestID → RealIP → OTel → Logger → Recoverer
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders.Tracer, a.Metrics, a.Logger).Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.ErrorHandler))
	r.Use(customMiddleware.SecurityHeaders)

	if a.Config.Security.EnableCORS {
		r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
			AllowedOrigins: a.Config.Security.AllowedOrigins,
			Logger:         a.Logger,
		}))
	}
	if a.Config.Security.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Security.RateLimit.RPS,
			a.Config.Security.RateLimit.Burst,
			a.Logger,
			a.ErrorHandler,
		).Handler)
	}
	r.Use(customMiddleware.Compress(5))

	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	healthHandler := handlers.NewHealthHandler(a.HealthService, a.Logger)
	r.Get("/healthz", healthHandler.LivenessCheck)
	r.Get("/readyz", healthHandler.ReadinessCheck)
	r.Get("/version", healthHandler.Version)
	r.Method(http.MethodGet, "/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.ErrorHandler))

	predictionHandler := handlers.NewPredictionHandler(
		a.PredictionService,
		a.Config.Server.MaxUploadBytes,
		a.Logger,
		a.ErrorHandler,
	)
	r.Mount("/api/ml", predictionHandler.Routes())

	a.Router = r
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Serve runs the HTTP server until ctx is cancelled, then shuts it down gracefully
func (a *Application) Serve(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Starting HTTP server",
		slog.String("address", a.Server.Addr),
		slog.String("level", a.Config.Logging.Level))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.WithoutCancel(gctx))
	})
	return g.Wait()
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Stop gracefully stops the server and releases the store and telemetry providers
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	if a.Server != nil {
		if serr := a.Server.Shutdown(shutdownCtx); serr != nil {
			err = fmt.Errorf("server shutdown error: %w", serr)
		}
	}
	a.close(shutdownCtx)

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return err
}

func (a *Application) close(ctx context.Context) {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Error closing store", slog.String("error", err.Error()))
		}
		a.Store = nil
	}
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
		a.OTelProviders = nil
	}
}
