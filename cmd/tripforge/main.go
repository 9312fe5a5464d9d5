// TripForge server accepts trip requests over HTTP, runs the incremental
// itinerary generation pipeline, and streams progress events over WebSocket.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tripforge/tripforge/pkg/api"
	"github.com/tripforge/tripforge/pkg/config"
	"github.com/tripforge/tripforge/pkg/database"
	"github.com/tripforge/tripforge/pkg/events"
	"github.com/tripforge/tripforge/pkg/metrics"
	"github.com/tripforge/tripforge/pkg/pipeline"
	"github.com/tripforge/tripforge/pkg/services"
	"github.com/tripforge/tripforge/pkg/store"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("TRIPFORGE_CONFIG", "./config/tripforge.yaml"),
		"Path to configuration file")
	flag.Parse()

	// Load .env before config so env expansion sees it
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment", "error", err)
	}

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting TripForge",
		"addr", cfg.Server.Addr(),
		"store", cfg.Database.Driver)

	// 2. Initialize storage
	var st store.Store
	var dbClient *database.Client
	if cfg.Database.Driver == "postgres" {
		dbClient, err = database.NewClient(ctx, database.Config{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			User:            cfg.Database.User,
			Password:        cfg.Database.Password,
			Database:        cfg.Database.Database,
			SSLMode:         cfg.Database.SSLMode,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		st = store.NewPostgresStore(dbClient.DB())
		slog.Info("Connected to PostgreSQL database")
	} else {
		st = store.NewMemoryStore()
		slog.Info("Using in-memory store")
	}

	// 3. Initialize event infrastructure
	busMetrics := metrics.NewBusCollector()
	bus := events.NewBus(events.BusConfig{
		TailSize:   cfg.Events.TailSize,
		SendBuffer: cfg.Events.SendBuffer,
		TopicGrace: cfg.Events.TopicGrace,
	}, busMetrics)
	publisher := events.NewPublisher(bus)
	connManager := events.NewConnectionManager(bus, cfg.Events.WriteTimeout)
	slog.Info("Event infrastructure initialized")

	// 4. Initialize the pipeline orchestrator with the built-in agents
	pipelineMetrics := metrics.NewPipelineCollector()
	orchestrator := pipeline.NewOrchestrator(cfg.Pipeline, st, publisher,
		pipeline.DefaultPhases(), pipelineMetrics)

	// 5. Initialize services
	initService := services.NewInitService(st, orchestrator)
	itineraryService := services.NewItineraryService(st, orchestrator)
	slog.Info("Services initialized")

	// 6. Create and start HTTP server (non-blocking)
	httpServer := api.NewServer(initService, itineraryService, orchestrator, connManager, dbClient)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.Addr())
		if err := httpServer.Start(cfg.Server.Addr()); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("TripForge started successfully",
		"max_concurrent_generations", cfg.Pipeline.MaxConcurrentGenerations)

	// 7. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 8. Graceful shutdown: drain in-flight generations first, then stop the
	// HTTP server on its own budget.
	drainCtx, drainCancel := context.WithTimeout(ctx, cfg.Pipeline.DrainTimeout)
	defer drainCancel()
	if err := orchestrator.Drain(drainCtx); err != nil {
		slog.Warn("Drain timeout exceeded, remaining generations cancelled", "error", err)
	}

	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer httpCancel()
	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
