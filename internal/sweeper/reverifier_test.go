package sweeper

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dregan-protocol/staking-core/internal/access"
	"github.com/dregan-protocol/staking-core/internal/adapter"
	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/logger"
	"github.com/dregan-protocol/staking-core/internal/store"
	"github.com/dregan-protocol/staking-core/internal/store/schema"
	"github.com/dregan-protocol/staking-core/internal/tier"
)

const testAsset = "DRGN"

var (
	authority = domain.Address("0x1111111111111111111111111111111111111111")
	treasury  = domain.Address("0x3333333333333333333333333333333333333333")
	owner     = domain.Address("0x2222222222222222222222222222222222222222")
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: true}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func seedPool(t *testing.T, s store.Store) {
	t.Helper()

	rates, err := schema.EncodeRateTable(domain.RateTable{
		domain.Lock30: 1000,
		domain.Lock60: 1500,
		domain.Lock90: 2000,
	})
	require.NoError(t, err)

	pool := &schema.Pool{
		RecordAddress:      string(domain.DeriveAddress(authority, domain.PurposePool, "")),
		Authority:          string(authority),
		ReferenceAsset:     testAsset,
		VaultAddress:       string(domain.DeriveAddress(authority, domain.PurposeVault, "")),
		RewardVaultAddress: string(domain.DeriveAddress(authority, domain.PurposeRewards, "")),
		TreasuryAddress:    string(treasury),
		RateTable:          rates,
	}
	require.NoError(t, s.CreatePool(context.Background(), pool, domain.LedgerEvent{
		EventID:   "01TESTPOOLEVENT000000000AA",
		EventType: domain.EventTypePoolInitialized,
		Owner:     authority,
		Timestamp: time.Now().UTC(),
	}))
}

func seedStaleRecord(t *testing.T, s store.Store, addr domain.Address, currentTier domain.Tier, verifiedAt time.Time) {
	t.Helper()

	record := &schema.AccessRecord{
		RecordAddress: string(domain.DeriveAddress(addr, domain.PurposeAccess, "")),
		Owner:         string(addr),
		CurrentTier:   uint8(currentTier),
		VerifiedAt:    verifiedAt,
	}
	require.NoError(t, s.CreateAccessRecord(context.Background(), record, domain.LedgerEvent{
		EventID:   "01TESTACCESSEVENT0000000" + string(addr[40:]),
		EventType: domain.EventTypeTierVerified,
		Owner:     addr,
		Timestamp: verifiedAt,
	}))
}

func newReverifierFixture(t *testing.T) (Sweeper, store.Store) {
	t.Helper()

	s := store.NewMemoryStore()
	clock := adapter.NewClock()
	flow, err := access.NewFlow(s, clock, nil, tier.DefaultThresholds())
	require.NoError(t, err)

	sw := NewReverifier(&ReverifierConfig{
		ReverifyAfter:   time.Hour,
		Interval:        10 * time.Millisecond,
		BatchSize:       100,
		WorkerPoolSize:  4,
		WorkerQueueSize: 128,
	}, s, flow, clock)
	return sw, s
}

func TestReverifierName(t *testing.T) {
	sw, _ := newReverifierFixture(t)
	assert.Equal(t, "access-reverifier", sw.Name())
}

func TestReverifierRefreshesStaleRecords(t *testing.T) {
	sw, s := newReverifierFixture(t)
	seedPool(t, s)

	// A record verified two hours ago at bronze whose balance has since grown
	// past the gold threshold
	stale := time.Now().UTC().Add(-2 * time.Hour)
	seedStaleRecord(t, s, owner, domain.TierBronze, stale)
	require.NoError(t, s.Credit(context.Background(), owner, testAsset, 3_000))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sw.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		record, err := s.GetAccessRecord(context.Background(), owner)
		require.NoError(t, err)
		return record != nil && domain.Tier(record.CurrentTier) == domain.TierGold
	}, 5*time.Second, 20*time.Millisecond)

	record, err := s.GetAccessRecord(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000), record.LastVerifiedBalance)
	assert.True(t, record.VerifiedAt.After(stale))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, sw.Stop(stopCtx))
	require.NoError(t, <-done)
}

func TestReverifierSkipsFreshRecords(t *testing.T) {
	sw, s := newReverifierFixture(t)
	seedPool(t, s)

	// Verified just now; the sweep must leave it alone
	fresh := time.Now().UTC()
	seedStaleRecord(t, s, owner, domain.TierBronze, fresh)
	require.NoError(t, s.Credit(context.Background(), owner, testAsset, 3_000))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sw.Start(ctx)
	}()

	time.Sleep(100 * time.Millisecond)

	record, err := s.GetAccessRecord(context.Background(), owner)
	require.NoError(t, err)
	assert.Equal(t, domain.TierBronze, domain.Tier(record.CurrentTier))
	assert.Equal(t, fresh, record.VerifiedAt)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, sw.Stop(stopCtx))
	require.NoError(t, <-done)
}

func TestReverifierDoubleStart(t *testing.T) {
	sw, s := newReverifierFixture(t)
	seedPool(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- sw.Start(ctx)
	}()

	// Give the first loop time to take the running flag
	time.Sleep(20 * time.Millisecond)
	assert.Error(t, sw.Start(ctx))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, sw.Stop(stopCtx))
	require.NoError(t, <-done)
}
