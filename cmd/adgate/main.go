package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adgate/internal/api"
	"adgate/internal/authz"
	"adgate/internal/config"
	"adgate/internal/logger"
	"adgate/internal/models"
	"adgate/internal/observability"
	"adgate/internal/ratelimit"
	"adgate/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, version.GetInfo())
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, version.GetInfo())
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the counter store
	store, err := initializeStore(cfg)
	if err != nil {
		slog.Error("Failed to initialize counter store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Wrap the store with instrumentation if metrics are enabled
	var activeStore ratelimit.CounterStore = store
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStore(store)
		if err != nil {
			slog.Error("Failed to create instrumented store", "error", err)
			os.Exit(1)
		}
		activeStore = instrumented
	}

	// Build the decision engine; an invalid mode fails here, never mid-request.
	engine, err := ratelimit.NewEngine(ratelimit.Config{
		Window:         cfg.Limiter.Window,
		MaxRequests:    cfg.Limiter.MaxRequests,
		Mode:           ratelimit.Mode(cfg.Limiter.Mode),
		SlowdownBase:   cfg.Limiter.Slowdown.Base,
		SlowdownGrowth: cfg.Limiter.Slowdown.Growth,
		SlowdownCap:    cfg.Limiter.Slowdown.Cap,
	}, activeStore, nil)
	if err != nil {
		slog.Error("Failed to build rate limiter", "error", err)
		os.Exit(1)
	}

	classifier := authz.NewStaticClassifier(cfg.Security.APIKeys)

	handlers := api.NewHandlers(api.WithStore(activeStore))

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	var limiterOpts []ratelimit.MiddlewareOption
	if cfg.Limiter.FailClosed {
		limiterOpts = append(limiterOpts, ratelimit.FailClosed())
	}
	routeOpts = append(routeOpts, api.WithRateLimiter(
		ratelimit.Middleware(engine, classifier, limiterOpts...)))

	router := api.SetupRoutes(handlers, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"limiter_mode", cfg.Limiter.Mode,
			"limiter_store", cfg.Limiter.Store,
			"window", cfg.Limiter.Window,
			"max_requests", cfg.Limiter.MaxRequests)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeStore creates a counter store based on configuration.
func initializeStore(cfg *models.Config) (ratelimit.CounterStore, error) {
	switch cfg.Limiter.Store {
	case models.StoreMemory:
		return ratelimit.NewMemoryStore(time.Minute), nil
	case models.StoreRedis:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return ratelimit.NewRedisStore(ctx, ratelimit.RedisOptions{
			Addr:     cfg.Limiter.Redis.Addr,
			Password: cfg.Limiter.Redis.Password,
			DB:       cfg.Limiter.Redis.DB,
			PoolSize: cfg.Limiter.Redis.PoolSize,
		})
	case models.StoreSQLite:
		return ratelimit.NewSQLiteStore(cfg.Limiter.SQLite.Path)
	case models.StorePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ratelimit.NewPostgresStore(ctx, cfg.Limiter.Postgres.DSN)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Limiter.Store)
	}
}
