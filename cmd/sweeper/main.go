package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dregan-protocol/staking-core/internal/access"
	"github.com/dregan-protocol/staking-core/internal/adapter"
	"github.com/dregan-protocol/staking-core/internal/config"
	"github.com/dregan-protocol/staking-core/internal/logger"
	"github.com/dregan-protocol/staking-core/internal/providers/jetstream"
	"github.com/dregan-protocol/staking-core/internal/store"
	"github.com/dregan-protocol/staking-core/internal/sweeper"
	"github.com/dregan-protocol/staking-core/internal/tier"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Access Reverifier")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("dsn", cfg.Database.DSN()))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize clock adapter
	clock := adapter.NewClock()

	// Connect to NATS JetStream so re-verifications broadcast like any other
	// verification
	publisher, err := jetstream.NewPublisher(jetstream.Config{
		URL:            cfg.NATS.URL,
		StreamName:     cfg.NATS.StreamName,
		MaxReconnects:  cfg.NATS.MaxReconnects,
		ReconnectWait:  cfg.NATS.ReconnectWait,
		ConnectionName: cfg.NATS.ConnectionName,
	}, adapter.NewNatsJetStream(), adapter.NewJSON())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer publisher.Close()
	logger.InfoCtx(ctx, "Connected to NATS", zap.String("stream", cfg.NATS.StreamName))

	// Initialize the access flow
	flow, err := access.NewFlow(dataStore, clock, publisher, tier.Thresholds{
		Bronze: cfg.Access.BronzeThreshold,
		Silver: cfg.Access.SilverThreshold,
		Gold:   cfg.Access.GoldThreshold,
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to initialize access flow", zap.Error(err))
	}

	// Initialize the reverifier
	reverifier := sweeper.NewReverifier(&sweeper.ReverifierConfig{
		ReverifyAfter:   cfg.Reverifier.ReverifyAfter,
		Interval:        cfg.Reverifier.Interval,
		BatchSize:       cfg.Reverifier.BatchSize,
		WorkerPoolSize:  cfg.Reverifier.Worker.WorkerPoolSize,
		WorkerQueueSize: cfg.Reverifier.Worker.WorkerQueueSize,
	}, dataStore, flow, clock)

	logger.InfoCtx(ctx, "Initialized access reverifier",
		zap.Duration("reverify_after", cfg.Reverifier.ReverifyAfter),
		zap.Duration("interval", cfg.Reverifier.Interval),
		zap.Int("batch_size", cfg.Reverifier.BatchSize),
		zap.Int("worker_pool_size", cfg.Reverifier.Worker.WorkerPoolSize),
	)

	// Start the sweeper in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := reverifier.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	// Cancel context to stop the sweeper
	cancel()

	// Give the sweeper time to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()

	if err := reverifier.Stop(shutdownCtx); err != nil {
		logger.ErrorCtx(shutdownCtx, err)
	}

	logger.InfoCtx(shutdownCtx, "Sweeper stopped")
}
