package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/resident-trust-ledger/internal/app"
	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/engine"
	"github.com/resident-trust-ledger/internal/ledger_worker/consumer"
	"github.com/resident-trust-ledger/internal/ledger_worker/outbox_poller"
	"github.com/resident-trust-ledger/internal/logger"
	"github.com/resident-trust-ledger/internal/platform/messaging/consumers"
	"github.com/resident-trust-ledger/internal/platform/messaging/producers"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("ledger_worker")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	log.Info("Starting Ledger Worker",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	if cfg.Store.Driver != config.StoreDriverPostgres {
		log.Error("Ledger worker requires the postgres store", "store", cfg.Store.Driver)
		os.Exit(1)
	}

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

	// Initialize Kafka producers
	eventProducer, err := producers.NewJSONProducer(appCtx, log, &cfg.Kafka, cfg.Kafka.LedgerEventTopic)
	if err != nil {
		log.Error("Failed to initialize ledger event producer", "error", err)
		os.Exit(1)
	}

	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}
	// dlqProducer is nil when DLQTopic is not configured; keep the interface nil too
	var deadLetters producers.DeadLetterPublisher
	if dlqProducer != nil {
		deadLetters = dlqProducer
	}

	// Initialize Kafka consumer for monthly pre-authorization runs
	kafkaConsumer := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, cfg.Kafka.PreAuthRunTopic)
	runHandler := consumer.NewPreAuthRunHandler(
		log.With("component", "preauth_run_handler"),
		eng.PreAuth,
		deadLetters,
		cfg.Kafka.PreAuthRunTopic,
	)

	// Initialize outbox poller
	eventPublisher := outbox_poller.NewLedgerEventPublisher(
		backends.Outbox,
		backends.Repos.Withdrawals,
		eventProducer,
		log.With("component", "ledger_event_publisher"),
	)
	poller := outbox_poller.NewPoller(
		&cfg.Outbox,
		backends.Outbox,
		eventPublisher,
		log.With("component", "outbox_poller"),
	)

	// Create error channel for service errors
	errChan := make(chan error, 2)

	// Create wait group for graceful shutdown
	var wg sync.WaitGroup

	// Start Kafka consumer in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting Kafka consumer",
			"topic", cfg.Kafka.PreAuthRunTopic,
			"group", cfg.Kafka.ConsumerGroup,
		)
		if err := kafkaConsumer.Subscribe(appCtx, runHandler.HandleMessage); err != nil {
			errChan <- fmt.Errorf("kafka consumer error: %w", err)
		}
	}()

	// Start outbox poller in a goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Wait for all goroutines to finish
	log.Info("Waiting for services to stop...")
	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	// In-flight pre-authorization work drains before the store goes away
	eng.Shutdown()

	if dlqProducer != nil {
		if err = dlqProducer.Close(); err != nil {
			log.Error("Error closing DLQ Kafka producer", "error", err)
		}
	}

	if err = eventProducer.Close(); err != nil {
		log.Error("Error closing ledger event producer", "error", err)
	}

	if err = kafkaConsumer.Close(); err != nil {
		log.Error("Error closing Kafka consumer", "error", err)
	}

	backends.Close(shutdownCtx)

	// Final status
	if serviceErr != nil {
		log.Error("Ledger worker shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Ledger worker shutdown completed successfully")
}
