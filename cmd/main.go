package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/streamtip/settlement_service/internal/api/routes"
	"github.com/streamtip/settlement_service/internal/infrastructure/config"
	"github.com/streamtip/settlement_service/internal/infrastructure/di"
	"github.com/streamtip/settlement_service/pkg/logger"
	"github.com/streamtip/settlement_service/pkg/metrics"
	"github.com/streamtip/settlement_service/pkg/tracing"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}
	tracingShutdown, err := tracing.InitTracer(context.Background(), tracingConfig, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}
	defer tracingShutdown(context.Background())

	// Build dependency injection container
	container, err := di.NewContainer(cfg, log, version)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}
	defer container.Close()

	// Initialize router with DI container
	router := routes.SetupRoutes(container)

	// Start the settlement maintenance worker
	if err := container.Worker.Start(); err != nil {
		log.Fatal("Failed to start settlement worker", "error", err)
	}

	// Prime the bridge health cache
	container.OrchestratorService.RefreshBridgeStatus(context.Background())

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		log.Info("Starting server",
			"port", cfg.Server.Port,
			"environment", cfg.Environment,
			"demo_mode", cfg.DemoMode,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Periodic database connection metrics
	if container.DB != nil {
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for range ticker.C {
				stats := container.DB.Stats()
				metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
				metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
				metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
			}
		}()
	}

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Give outstanding requests time to complete
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server exited")
}
