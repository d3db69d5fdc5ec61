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

	"customizer/internal/api"
	"customizer/internal/command"
	"customizer/internal/config"
	"customizer/internal/logger"
	"customizer/internal/observability"
	"customizer/internal/queue"
	"customizer/internal/ratelimit"
	"customizer/internal/settings"
	"customizer/internal/storage"
	"customizer/internal/token"
	"customizer/internal/version"
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

	// Initialize storage
	storeInstance, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer storeInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStore storage.Store = storeInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStore(storeInstance)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStore = instrumented
	}

	// Seed the bootstrap actor for first-run provisioning
	directory := api.NewDirectory(activeStore)
	if err := directory.Seed(context.Background(), cfg.Security.BootstrapKey); err != nil {
		slog.Error("Failed to seed bootstrap actor", "error", err)
		os.Exit(1)
	}

	// Admission dependencies: token issuer and per-action rate limiter
	tokens := token.NewIssuer(cfg.Security.TokenSecret, cfg.Security.TokenLifetime)
	limiter := ratelimit.NewWindowLimiter(activeStore, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	gate := command.NewGate(tokens, limiter)

	// Command registry: settings is the only built-in feature for now
	registry := command.NewRegistry()
	settingsService := settings.NewService(activeStore)
	if err := settings.Register(registry, settingsService); err != nil {
		slog.Error("Failed to register commands", "error", err)
		os.Exit(1)
	}
	registry.Freeze()

	// Retry queue and dispatch pipeline
	tickets := queue.NewTicketStore(activeStore, cfg.Queue)
	dispatcher := command.NewDispatcher(registry, gate, tickets, cfg.Dispatch, log)
	processor := queue.NewProcessor(tickets, registry, cfg.Queue, cfg.Dispatch.Timeout, log)

	// Initialize HTTP handlers
	handlers := api.NewHandlers(dispatcher, processor, tickets, tokens, registry)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	// Transport rate limiter, upstream of the per-action admission limit
	if cfg.Security.Transport.Enabled {
		tl := cfg.Security.Transport
		transportLimiter := ratelimit.NewMemoryLimiter(tl.RequestsPerMinute, tl.BurstSize, tl.CleanupInterval)
		defer transportLimiter.Close()
		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(transportLimiter)))
	}

	router := api.SetupRoutes(handlers, directory, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Background queue sweep and retention cleanup
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go runScheduler(schedulerCtx, processor, cfg.Queue.SweepInterval, cfg.Queue.CleanupInterval)

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
		slog.Info("Starting server", "addr", server.Addr)

		var err error
		if cfg.Server.TLSEnabled {
			if cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "" {
				slog.Error("TLS is enabled but cert file or key file is not specified")
				os.Exit(1)
			}
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
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
	stopScheduler()

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// runScheduler drives the periodic queue sweep and retention cleanup until
// the context is cancelled.
func runScheduler(ctx context.Context, processor *queue.Processor, sweepEvery, cleanupEvery time.Duration) {
	sweep := time.NewTicker(sweepEvery)
	defer sweep.Stop()
	cleanup := time.NewTicker(cleanupEvery)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			summary, err := processor.ProcessQueue(ctx)
			if err != nil {
				slog.Error("Queue sweep failed", "error", err)
				continue
			}
			if summary.Processed > 0 {
				slog.Info("Queue sweep complete",
					"processed", summary.Processed,
					"succeeded", summary.Succeeded,
					"failed", summary.Failed,
					"deferred", summary.Deferred)
			}
		case <-cleanup.C:
			removed, err := processor.Cleanup(ctx)
			if err != nil {
				slog.Error("Queue cleanup failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("Queue cleanup complete", "removed", removed)
			}
		}
	}
}
