package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dregan-protocol/staking-core/internal/access"
	"github.com/dregan-protocol/staking-core/internal/adapter"
	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/logger"
	"github.com/dregan-protocol/staking-core/internal/store"
)

// ReverifierConfig holds configuration for the access re-verifier
type ReverifierConfig struct {
	ReverifyAfter   time.Duration // Only refresh records verified longer ago than this
	Interval        time.Duration // Time to sleep between sweep cycles
	BatchSize       int           // Records to refresh per cycle
	WorkerPoolSize  int           // Concurrent workers
	WorkerQueueSize int           // Worker pool queue capacity
}

// reverifier implements the Sweeper interface for access tier re-verification.
// Tiers are derived from balances that move underneath the access records, so
// stored tiers drift; the reverifier re-runs the verification flow for records
// whose last check is older than the configured cutoff.
type reverifier struct {
	config    *ReverifierConfig
	store     store.Store
	flow      *access.Flow
	pool      pond.Pool
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewReverifier creates a new access re-verification sweeper
func NewReverifier(config *ReverifierConfig, st store.Store, flow *access.Flow, clock adapter.Clock) Sweeper {
	return &reverifier{
		config:    config,
		store:     st,
		flow:      flow,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *reverifier) Name() string {
	return "access-reverifier"
}

// Start begins the sweeper's main loop
func (s *reverifier) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh) // Signal that we've stopped
	}()

	logger.InfoCtx(ctx, "Starting access reverifier",
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
		zap.Duration("reverify_after", s.config.ReverifyAfter),
		zap.Duration("interval", s.config.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Access reverifier stopping due to context cancellation", zap.Error(ctx.Err()))
			s.cleanup()
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Access reverifier stop requested")
			s.cleanup()
			return nil
		default:
			if err := s.runSweepCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
		}
	}
}

// cleanup stops the worker pool and waits for tasks to complete
func (s *reverifier) cleanup() {
	if s.pool != nil {
		s.pool.StopAndWait()
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *reverifier) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping access reverifier")

	// Signal stop to the main loop
	close(s.stopChan)

	// Wait for main loop to exit, but respect context cancellation
	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Access reverifier stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Access reverifier stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runSweepCycle refreshes one batch of stale access records
func (s *reverifier) runSweepCycle(ctx context.Context) error {
	startTime := s.clock.Now()

	cutoff := startTime.Add(-s.config.ReverifyAfter)
	records, err := s.store.GetStaleAccessRecords(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to get stale access records: %w", err)
	}

	if len(records) == 0 {
		if !s.sleep(ctx, s.config.Interval) {
			return ctx.Err() // Context canceled during sleep
		}
		return nil
	}

	logger.InfoCtx(ctx, "Found stale access records", zap.Int("count", len(records)))

	var refreshed, failed atomic.Int32

	s.pool = pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.WorkerQueueSize),
		pond.WithContext(ctx),
	)

	for _, record := range records {
		owner := domain.Address(record.Owner)
		s.pool.Submit(func() {
			if err := s.reverifyWithRetry(ctx, owner); err != nil {
				failed.Add(1)
				logger.ErrorCtx(ctx, fmt.Errorf("failed to reverify access record: %w", err),
					zap.String("owner", string(owner)),
				)
				return
			}
			refreshed.Add(1)
		})
	}

	// Wait for all refreshes to complete
	s.pool.StopAndWait()
	s.pool = nil

	duration := s.clock.Since(startTime)
	logger.InfoCtx(ctx, "Reverify cycle completed",
		zap.Duration("duration", duration),
		zap.Int("total", len(records)),
		zap.Int32("refreshed", refreshed.Load()),
		zap.Int32("failed", failed.Load()),
	)

	if !s.sleep(ctx, s.config.Interval) {
		return ctx.Err() // Context canceled during sleep
	}
	return nil
}

// reverifyWithRetry re-runs verification for one owner with exponential
// backoff. Transient store failures resolve quickly; a record that vanished
// mid-sweep is not an error.
func (s *reverifier) reverifyWithRetry(ctx context.Context, owner domain.Address) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 5 * time.Minute
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5 // Add jitter to prevent thundering herd

	backoffWithContext := backoff.WithContext(b, ctx)

	operation := func() error {
		_, err := s.flow.Verify(ctx, owner)
		if errors.Is(err, domain.ErrNotInitialized) || errors.Is(err, domain.ErrRecordNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoffWithContext)
	if errors.Is(err, domain.ErrNotInitialized) || errors.Is(err, domain.ErrRecordNotFound) {
		logger.WarnCtx(ctx, "Access record disappeared during sweep",
			zap.String("owner", string(owner)),
		)
		return nil
	}
	return err
}

// sleep sleeps for the given duration but can be interrupted by context
// cancellation. Returns true if sleep completed normally.
func (s *reverifier) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-s.clock.After(duration):
		return true // Sleep completed
	case <-ctx.Done():
		return false // Interrupted by context cancellation
	case <-s.stopChan:
		return false // Interrupted by stop signal
	}
}
