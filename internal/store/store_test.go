package store

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/store/schema"
)

const testAsset = "DRGN"

var (
	testAuthority = domain.Address("0x1111111111111111111111111111111111111111")
	testOwner     = domain.Address("0x2222222222222222222222222222222222222222")
	testVault     = domain.DeriveAddress(testAuthority, domain.PurposeVault, "")
	testRewards   = domain.DeriveAddress(testAuthority, domain.PurposeRewards, "")
	testTreasury  = domain.Address("0x3333333333333333333333333333333333333333")
)

func testEvent(eventType domain.EventType, owner domain.Address) domain.LedgerEvent {
	return domain.LedgerEvent{
		EventID:   ulid.Make().String(),
		EventType: eventType,
		Owner:     owner,
		Timestamp: time.Now().UTC(),
	}
}

func seedPool(t *testing.T, s Store) {
	t.Helper()

	rates, err := schema.EncodeRateTable(domain.RateTable{
		domain.Lock30: 1000,
		domain.Lock60: 1500,
		domain.Lock90: 2000,
	})
	require.NoError(t, err)

	pool := &schema.Pool{
		RecordAddress:      string(domain.DeriveAddress(testAuthority, domain.PurposePool, "")),
		Authority:          string(testAuthority),
		ReferenceAsset:     testAsset,
		VaultAddress:       string(testVault),
		RewardVaultAddress: string(testRewards),
		TreasuryAddress:    string(testTreasury),
		RateTable:          rates,
	}
	require.NoError(t, s.CreatePool(context.Background(), pool, testEvent(domain.EventTypePoolInitialized, testAuthority)))
}

func seedPosition(t *testing.T, s Store, principal uint64) *schema.StakePosition {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Credit(ctx, testOwner, testAsset, principal))

	openedAt := time.Now().UTC().Truncate(time.Microsecond)
	position := &schema.StakePosition{
		RecordAddress: string(domain.DeriveAddress(testOwner, domain.PurposeStake, openedAt.Format(time.RFC3339Nano))),
		Owner:         string(testOwner),
		Principal:     principal,
		LockDays:      uint8(domain.Lock30),
		RateBps:       1000,
		OpenedAt:      openedAt,
		UnlocksAt:     openedAt.Add(domain.Lock30.Duration()),
		RewardAmount:  8,
	}
	require.NoError(t, s.ApplyStake(ctx, ApplyStakeInput{
		Position: position,
		Transfer: domain.Transfer{From: testOwner, To: testVault, Amount: principal},
		Asset:    testAsset,
		Event:    testEvent(domain.EventTypeStaked, testOwner),
	}))
	return position
}

// RunStoreTests runs the full store test suite against any Store
// implementation
func RunStoreTests(t *testing.T, initStore func(t *testing.T) Store) {
	t.Run("CreatePool", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		pool, err := s.GetPool(ctx)
		require.NoError(t, err)
		assert.Nil(t, pool)

		seedPool(t, s)

		pool, err = s.GetPool(ctx)
		require.NoError(t, err)
		require.NotNil(t, pool)
		assert.Equal(t, string(testAuthority), pool.Authority)
		assert.False(t, pool.Paused)

		rates, err := pool.Rates()
		require.NoError(t, err)
		assert.Equal(t, uint16(1000), rates[domain.Lock30])
		assert.Equal(t, uint16(2000), rates[domain.Lock90])
	})

	t.Run("CreatePoolTwiceFails", func(t *testing.T) {
		s := initStore(t)

		seedPool(t, s)

		pool := &schema.Pool{
			RecordAddress:  "0x0000000000000000000000000000000000000001",
			Authority:      string(testAuthority),
			ReferenceAsset: testAsset,
			RateTable:      []byte(`{}`),
		}
		err := s.CreatePool(context.Background(), pool, testEvent(domain.EventTypePoolInitialized, testAuthority))
		assert.ErrorIs(t, err, domain.ErrPoolExists)
	})

	t.Run("SetPoolPaused", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		err := s.SetPoolPaused(ctx, true, testEvent(domain.EventTypePoolPaused, testAuthority))
		assert.ErrorIs(t, err, domain.ErrNotInitialized)

		seedPool(t, s)
		require.NoError(t, s.SetPoolPaused(ctx, true, testEvent(domain.EventTypePoolPaused, testAuthority)))

		pool, err := s.GetPool(ctx)
		require.NoError(t, err)
		assert.True(t, pool.Paused)
	})

	t.Run("UpdatePoolRates", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		require.NoError(t, s.UpdatePoolRates(ctx, domain.RateTable{
			domain.Lock30: 500,
			domain.Lock60: 900,
			domain.Lock90: 1200,
		}, testEvent(domain.EventTypeRatesUpdated, testAuthority)))

		pool, err := s.GetPool(ctx)
		require.NoError(t, err)
		rates, err := pool.Rates()
		require.NoError(t, err)
		assert.Equal(t, uint16(500), rates[domain.Lock30])
	})

	t.Run("BalanceCreditAndTransfer", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		amount, err := s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), amount)

		require.NoError(t, s.Credit(ctx, testOwner, testAsset, 500))
		require.NoError(t, s.Credit(ctx, testOwner, testAsset, 250))

		amount, err = s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(750), amount)

		require.NoError(t, s.ApplyTransfer(ctx,
			domain.Transfer{From: testOwner, To: testTreasury, Amount: 200},
			testAsset, testEvent(domain.EventTypeRewardsFunded, testOwner)))

		amount, err = s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(550), amount)

		amount, err = s.GetBalance(ctx, testTreasury, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(200), amount)
	})

	t.Run("TransferInsufficientFunds", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		require.NoError(t, s.Credit(ctx, testOwner, testAsset, 100))

		err := s.ApplyTransfer(ctx,
			domain.Transfer{From: testOwner, To: testTreasury, Amount: 101},
			testAsset, testEvent(domain.EventTypeRewardsFunded, testOwner))
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		// Nothing moved
		amount, err := s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(100), amount)
	})

	t.Run("ApplyStake", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		position := seedPosition(t, s, 1000)

		// Principal moved into the vault
		amount, err := s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), amount)

		amount, err = s.GetBalance(ctx, testVault, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), amount)

		// Pool aggregates incremented
		pool, err := s.GetPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), pool.TotalStaked)
		assert.Equal(t, uint64(1), pool.TotalStakers)

		stored, err := s.GetPosition(ctx, domain.Address(position.RecordAddress))
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, uint64(1000), stored.Principal)
		assert.False(t, stored.Closed)

		open, err := s.HasOpenPosition(ctx, testOwner)
		require.NoError(t, err)
		assert.True(t, open)

		sum, err := s.SumOpenPrincipal(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), sum)
	})

	t.Run("ApplyStakeWhilePausedFails", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		require.NoError(t, s.SetPoolPaused(ctx, true, testEvent(domain.EventTypePoolPaused, testAuthority)))
		require.NoError(t, s.Credit(ctx, testOwner, testAsset, 1000))

		openedAt := time.Now().UTC()
		err := s.ApplyStake(ctx, ApplyStakeInput{
			Position: &schema.StakePosition{
				RecordAddress: string(domain.DeriveAddress(testOwner, domain.PurposeStake, openedAt.Format(time.RFC3339Nano))),
				Owner:         string(testOwner),
				Principal:     1000,
				LockDays:      uint8(domain.Lock30),
				RateBps:       1000,
				OpenedAt:      openedAt,
				UnlocksAt:     openedAt.Add(domain.Lock30.Duration()),
			},
			Transfer: domain.Transfer{From: testOwner, To: testVault, Amount: 1000},
			Asset:    testAsset,
			Event:    testEvent(domain.EventTypeStaked, testOwner),
		})
		assert.ErrorIs(t, err, domain.ErrPoolPaused)

		// The funding transfer rolled back with the rest
		amount, err := s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), amount)
	})

	t.Run("ApplyClaim", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		position := seedPosition(t, s, 1000)
		require.NoError(t, s.Credit(ctx, testRewards, testAsset, 100))

		require.NoError(t, s.ApplyClaim(ctx, ApplyClaimInput{
			PositionAddress: position.RecordAddress,
			Claimed:         8,
			Transfer:        domain.Transfer{From: testRewards, To: testOwner, Amount: 8},
			Asset:           testAsset,
			Event:           testEvent(domain.EventTypeClaimed, testOwner),
		}))

		stored, err := s.GetPosition(ctx, domain.Address(position.RecordAddress))
		require.NoError(t, err)
		assert.Equal(t, uint64(8), stored.ClaimedReward)

		amount, err := s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(8), amount)

		pool, err := s.GetPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(8), pool.TotalRewardsDistributed)
	})

	t.Run("ApplyUnstake", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		position := seedPosition(t, s, 1000)
		require.NoError(t, s.Credit(ctx, testRewards, testAsset, 100))

		require.NoError(t, s.ApplyUnstake(ctx, ApplyUnstakeInput{
			PositionAddress: position.RecordAddress,
			Principal:       1000,
			Reward:          8,
			CloseReason:     schema.CloseReasonUnstaked,
			Transfers: []domain.Transfer{
				{From: testVault, To: testOwner, Amount: 1000},
				{From: testRewards, To: testOwner, Amount: 8},
			},
			Asset: testAsset,
			Event: testEvent(domain.EventTypeUnstaked, testOwner),
		}))

		stored, err := s.GetPosition(ctx, domain.Address(position.RecordAddress))
		require.NoError(t, err)
		assert.True(t, stored.Closed)
		assert.Equal(t, schema.CloseReasonUnstaked, stored.CloseReason)

		amount, err := s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(1008), amount)

		pool, err := s.GetPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), pool.TotalStaked)
		assert.Equal(t, uint64(0), pool.TotalStakers)
		assert.Equal(t, uint64(8), pool.TotalRewardsDistributed)

		// Closing again fails and pays nothing
		err = s.ApplyUnstake(ctx, ApplyUnstakeInput{
			PositionAddress: position.RecordAddress,
			Principal:       1000,
			CloseReason:     schema.CloseReasonUnstaked,
			Transfers:       []domain.Transfer{{From: testVault, To: testOwner, Amount: 1000}},
			Asset:           testAsset,
			Event:           testEvent(domain.EventTypeUnstaked, testOwner),
		})
		assert.ErrorIs(t, err, domain.ErrPositionClosed)
	})

	t.Run("ApplyUnstakeEmergencyZeroesReward", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		position := seedPosition(t, s, 1000)

		require.NoError(t, s.ApplyUnstake(ctx, ApplyUnstakeInput{
			PositionAddress: position.RecordAddress,
			Principal:       1000,
			CloseReason:     schema.CloseReasonEmergency,
			Transfers:       []domain.Transfer{{From: testVault, To: testOwner, Amount: 1000}},
			Asset:           testAsset,
			Event:           testEvent(domain.EventTypeEmergencyUnstaked, testOwner),
		}))

		stored, err := s.GetPosition(ctx, domain.Address(position.RecordAddress))
		require.NoError(t, err)
		assert.True(t, stored.Closed)
		assert.Equal(t, schema.CloseReasonEmergency, stored.CloseReason)
		assert.Equal(t, uint64(0), stored.RewardAmount)

		amount, err := s.GetBalance(ctx, testOwner, testAsset)
		require.NoError(t, err)
		assert.Equal(t, uint64(1000), amount)
	})

	t.Run("ApplyClaimOnClosedPositionFails", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		position := seedPosition(t, s, 1000)

		require.NoError(t, s.ApplyUnstake(ctx, ApplyUnstakeInput{
			PositionAddress: position.RecordAddress,
			Principal:       1000,
			CloseReason:     schema.CloseReasonEmergency,
			Transfers:       []domain.Transfer{{From: testVault, To: testOwner, Amount: 1000}},
			Asset:           testAsset,
			Event:           testEvent(domain.EventTypeEmergencyUnstaked, testOwner),
		}))

		err := s.ApplyClaim(ctx, ApplyClaimInput{
			PositionAddress: position.RecordAddress,
			Claimed:         8,
			Transfer:        domain.Transfer{From: testRewards, To: testOwner, Amount: 8},
			Asset:           testAsset,
			Event:           testEvent(domain.EventTypeClaimed, testOwner),
		})
		assert.ErrorIs(t, err, domain.ErrPositionClosed)
	})

	t.Run("AccessRecords", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		record, err := s.GetAccessRecord(ctx, testOwner)
		require.NoError(t, err)
		assert.Nil(t, record)

		verifiedAt := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, s.CreateAccessRecord(ctx, &schema.AccessRecord{
			RecordAddress: string(domain.DeriveAddress(testOwner, domain.PurposeAccess, "")),
			Owner:         string(testOwner),
			CurrentTier:   uint8(domain.TierBronze),
			VerifiedAt:    verifiedAt,
		}, testEvent(domain.EventTypeTierVerified, testOwner)))

		record, err = s.GetAccessRecord(ctx, testOwner)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, uint8(domain.TierBronze), record.CurrentTier)

		later := verifiedAt.Add(time.Hour)
		require.NoError(t, s.SaveAccessVerification(ctx, testOwner, domain.TierGold, 2500, later,
			testEvent(domain.EventTypeTierVerified, testOwner)))

		record, err = s.GetAccessRecord(ctx, testOwner)
		require.NoError(t, err)
		assert.Equal(t, uint8(domain.TierGold), record.CurrentTier)
		assert.Equal(t, uint64(2500), record.LastVerifiedBalance)

		stale, err := s.GetStaleAccessRecords(ctx, later.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, string(testOwner), stale[0].Owner)

		stale, err = s.GetStaleAccessRecords(ctx, later.Add(-time.Minute), 10)
		require.NoError(t, err)
		assert.Empty(t, stale)
	})

	t.Run("SaveAccessVerificationMissingRecord", func(t *testing.T) {
		s := initStore(t)

		err := s.SaveAccessVerification(context.Background(), testOwner, domain.TierBronze, 100, time.Now().UTC(),
			testEvent(domain.EventTypeTierVerified, testOwner))
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	t.Run("TierConfigs", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		tier, err := s.GetTier(ctx, domain.TierBronze)
		require.NoError(t, err)
		assert.Nil(t, tier)

		require.NoError(t, s.CreateTier(ctx, &schema.TierConfig{
			TierID:      uint8(domain.TierBronze),
			Name:        "Bronze",
			Price:       100,
			MaxSupply:   10,
			MetadataURI: "https://example.com/bronze.json",
		}, testEvent(domain.EventTypeTierCreated, testAuthority)))
		require.NoError(t, s.CreateTier(ctx, &schema.TierConfig{
			TierID:      uint8(domain.TierSilver),
			Name:        "Silver",
			Price:       500,
			MaxSupply:   5,
			MetadataURI: "https://example.com/silver.json",
		}, testEvent(domain.EventTypeTierCreated, testAuthority)))

		tiers, err := s.ListTiers(ctx)
		require.NoError(t, err)
		require.Len(t, tiers, 2)
		assert.Equal(t, "Bronze", tiers[0].Name)

		require.NoError(t, s.SetTierActive(ctx, domain.TierBronze, false,
			testEvent(domain.EventTypeTierUpdated, testAuthority)))
		require.NoError(t, s.UpdateTierPrice(ctx, domain.TierSilver, 600,
			testEvent(domain.EventTypeTierUpdated, testAuthority)))

		tier, err = s.GetTier(ctx, domain.TierBronze)
		require.NoError(t, err)
		assert.False(t, tier.Active)

		tier, err = s.GetTier(ctx, domain.TierSilver)
		require.NoError(t, err)
		assert.Equal(t, uint64(600), tier.Price)

		err = s.SetTierActive(ctx, domain.TierGold, false,
			testEvent(domain.EventTypeTierUpdated, testAuthority))
		assert.ErrorIs(t, err, domain.ErrInvalidTier)
	})

	t.Run("ApplyTierPurchase", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		require.NoError(t, s.CreateTier(ctx, &schema.TierConfig{
			TierID:      uint8(domain.TierBronze),
			Name:        "Bronze",
			Price:       100,
			MaxSupply:   1,
			MetadataURI: "https://example.com/bronze.json",
		}, testEvent(domain.EventTypeTierCreated, testAuthority)))
		require.NoError(t, s.Credit(ctx, testOwner, testAsset, 250))

		purchasedAt := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, s.ApplyTierPurchase(ctx, ApplyTierPurchaseInput{
			Holder: &schema.HolderRecord{
				RecordAddress: string(domain.DeriveAddress(testOwner, domain.PurposeHolder, "1")),
				Holder:        string(testOwner),
				TierID:        uint8(domain.TierBronze),
				PricePaid:     100,
				PurchasedAt:   purchasedAt,
			},
			Transfer: domain.Transfer{From: testOwner, To: testTreasury, Amount: 100},
			Asset:    testAsset,
			Event:    testEvent(domain.EventTypeTierPurchased, testOwner),
		}))

		record, err := s.GetHolderRecord(ctx, testOwner, domain.TierBronze)
		require.NoError(t, err)
		require.NotNil(t, record)
		assert.Equal(t, uint64(100), record.PricePaid)

		records, err := s.GetHolderRecords(ctx, testOwner)
		require.NoError(t, err)
		assert.Len(t, records, 1)

		tier, err := s.GetTier(ctx, domain.TierBronze)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), tier.CurrentSupply)

		pool, err := s.GetPool(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), pool.TotalMinted)

		// Supply exhausted
		other := domain.Address("0x4444444444444444444444444444444444444444")
		require.NoError(t, s.Credit(ctx, other, testAsset, 250))
		err = s.ApplyTierPurchase(ctx, ApplyTierPurchaseInput{
			Holder: &schema.HolderRecord{
				RecordAddress: string(domain.DeriveAddress(other, domain.PurposeHolder, "1")),
				Holder:        string(other),
				TierID:        uint8(domain.TierBronze),
				PricePaid:     100,
				PurchasedAt:   purchasedAt,
			},
			Transfer: domain.Transfer{From: other, To: testTreasury, Amount: 100},
			Asset:    testAsset,
			Event:    testEvent(domain.EventTypeTierPurchased, other),
		})
		assert.ErrorIs(t, err, domain.ErrSoldOut)
	})

	t.Run("ListEvents", func(t *testing.T) {
		s := initStore(t)
		ctx := context.Background()

		seedPool(t, s)
		seedPosition(t, s, 1000)

		events, err := s.ListEvents(ctx, testOwner, 10, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, string(domain.EventTypeStaked), events[0].EventType)

		events, err = s.ListEvents(ctx, testAuthority, 10, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, string(domain.EventTypePoolInitialized), events[0].EventType)
	})
}
