package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/resident-trust-ledger/internal/api_gateway"
	"github.com/resident-trust-ledger/internal/api_gateway/service"
	"github.com/resident-trust-ledger/internal/app"
	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/engine"
	"github.com/resident-trust-ledger/internal/logger"
	"github.com/resident-trust-ledger/internal/platform/messaging/producers"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting API Gateway",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"store", cfg.Store.Driver,
		"cache", cfg.Cache.Driver,
	)

	// Initialize store and cache backends
	backends, err := app.Open(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to initialize backends", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg, backends.Repos, backends.Cache, log)
	if err != nil {
		log.Error("Failed to initialize ledger engine", "error", err)
		backends.Close(context.Background())
		os.Exit(1)
	}

	// Monthly pre-authorization runs are queued for the ledger worker. Without
	// a durable store the worker cannot see our data, so runs stay disabled.
	var (
		runProducer *producers.JSONProducer
		runs        service.PreAuthRunService
	)
	if backends.Durable() && cfg.Kafka.PreAuthRunTopic != "" {
		runProducer, err = producers.NewJSONProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.PreAuthRunTopic)
		if err != nil {
			log.Error("Failed to initialize pre-authorization run producer", "error", err)
			eng.Shutdown()
			backends.Close(context.Background())
			os.Exit(1)
		}
		runs = service.NewPreAuthRunService(log, eng.PreAuth, runProducer)
	} else {
		log.Warn("Asynchronous pre-authorization runs disabled")
	}

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, eng, runs)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before tearing down what they use
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	eng.Shutdown()

	if runProducer != nil {
		if err = runProducer.Close(); err != nil {
			log.Error("Error closing Kafka producer", "error", err)
		}
	}

	backends.Close(shutdownCtx)

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}
