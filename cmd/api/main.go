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
	"github.com/dregan-protocol/staking-core/internal/api/rest"
	"github.com/dregan-protocol/staking-core/internal/api/server"
	"github.com/dregan-protocol/staking-core/internal/config"
	"github.com/dregan-protocol/staking-core/internal/logger"
	"github.com/dregan-protocol/staking-core/internal/providers/jetstream"
	"github.com/dregan-protocol/staking-core/internal/staking"
	"github.com/dregan-protocol/staking-core/internal/store"
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
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
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
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Dregan Ledger API")

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

	// Connect to NATS JetStream for event broadcasting
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

	// Initialize the staking engine
	engine, err := staking.NewEngine(dataStore, clock, publisher, staking.Config{
		RewardPolicy:   cfg.Staking.Policy(),
		SinglePosition: cfg.Staking.SinglePosition,
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to initialize staking engine", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Initialized staking engine",
		zap.String("reward_policy", string(cfg.Staking.Policy())),
		zap.Bool("single_position", cfg.Staking.SinglePosition),
	)

	// Initialize the access flow
	flow, err := access.NewFlow(dataStore, clock, publisher, tier.Thresholds{
		Bronze: cfg.Access.BronzeThreshold,
		Silver: cfg.Access.SilverThreshold,
		Gold:   cfg.Access.GoldThreshold,
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to initialize access flow", zap.Error(err))
	}

	// Create and start server
	handler := rest.NewHandler(engine, flow, dataStore)
	srv := server.New(cfg, handler)
	logger.InfoCtx(ctx, "Starting HTTP server", zap.String("addr", srv.Addr()))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}
