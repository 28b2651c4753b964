package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// It accesses the underlying *sql.DB and sets the pool configuration.
// If any of the pool settings are 0 or empty, reasonable defaults are used:
//   - MaxOpenConns: 20 (if 0)
//   - MaxIdleConns: 5 (if 0)
//   - ConnMaxLifetime: 5 minutes (if 0)
//   - ConnMaxIdleTime: 10 minutes (if 0)
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// journalEvent writes the event row inside the caller's transaction so the
// journal never disagrees with the committed state.
func journalEvent(tx *gorm.DB, event domain.LedgerEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event payload: %w", err)
	}

	row := schema.EventJournal{
		EventID:   event.EventID,
		EventType: string(event.EventType),
		Owner:     string(event.Owner),
		Payload:   payload,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to journal event: %w", err)
	}
	return nil
}

// debit subtracts from a balance row, failing when the row is missing or the
// held amount is insufficient. The amount guard lives in the WHERE clause so
// concurrent spenders cannot both pass a stale read.
func debit(tx *gorm.DB, account domain.Address, asset string, amount uint64) error {
	result := tx.Model(&schema.Balance{}).
		Where("account = ? AND asset = ? AND amount >= ?", string(account), asset, amount).
		Updates(map[string]interface{}{
			"amount":     gorm.Expr("amount - ?", amount),
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to debit %s: %w", account, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// credit adds to a balance row, creating it when absent
func credit(tx *gorm.DB, account domain.Address, asset string, amount uint64) error {
	row := schema.Balance{
		Account: string(account),
		Asset:   asset,
		Amount:  amount,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account"}, {Name: "asset"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount":     gorm.Expr("balances.amount + EXCLUDED.amount"),
			"updated_at": gorm.Expr("now()"),
		}),
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", account, err)
	}
	return nil
}

// transfer debits the source and credits the destination in the caller's
// transaction
func transfer(tx *gorm.DB, t domain.Transfer, asset string) error {
	if err := debit(tx, t.From, asset, t.Amount); err != nil {
		return err
	}
	return credit(tx, t.To, asset, t.Amount)
}

// GetPool retrieves the deployment's pool record, nil if not initialized
func (s *pgStore) GetPool(ctx context.Context) (*schema.Pool, error) {
	var pool schema.Pool
	err := s.db.WithContext(ctx).First(&pool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pool: %w", err)
	}
	return &pool, nil
}

// CreatePool initializes the pool record exactly once
func (s *pgStore) CreatePool(ctx context.Context, pool *schema.Pool, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&schema.Pool{}).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count pools: %w", err)
		}
		if count > 0 {
			return domain.ErrPoolExists
		}

		if err := tx.Create(pool).Error; err != nil {
			return fmt.Errorf("failed to create pool: %w", err)
		}
		return journalEvent(tx, event)
	})
}

// SetPoolPaused flips the pause flag
func (s *pgStore) SetPoolPaused(ctx context.Context, paused bool, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.Pool{}).
			Where("1 = 1").
			Updates(map[string]interface{}{
				"paused":     paused,
				"updated_at": gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to set pool paused: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotInitialized
		}
		return journalEvent(tx, event)
	})
}

// UpdatePoolRates replaces the rate table
func (s *pgStore) UpdatePoolRates(ctx context.Context, rates domain.RateTable, event domain.LedgerEvent) error {
	encoded, err := schema.EncodeRateTable(rates)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.Pool{}).
			Where("1 = 1").
			Updates(map[string]interface{}{
				"rate_table": encoded,
				"updated_at": gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update pool rates: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrNotInitialized
		}
		return journalEvent(tx, event)
	})
}

// GetBalance reads the authoritative balance for an account, 0 if absent
func (s *pgStore) GetBalance(ctx context.Context, account domain.Address, asset string) (uint64, error) {
	var balance schema.Balance
	err := s.db.WithContext(ctx).
		Where("account = ? AND asset = ?", string(account), asset).
		First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return balance.Amount, nil
}

// Credit adds to an account's balance, creating the row if needed
func (s *pgStore) Credit(ctx context.Context, account domain.Address, asset string, amount uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return credit(tx, account, asset, amount)
	})
}

// ApplyTransfer moves a balance between two accounts with an event
func (s *pgStore) ApplyTransfer(ctx context.Context, t domain.Transfer, asset string, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transfer(tx, t, asset); err != nil {
			return err
		}
		return journalEvent(tx, event)
	})
}

// GetPosition retrieves a stake position by its record address
func (s *pgStore) GetPosition(ctx context.Context, recordAddress domain.Address) (*schema.StakePosition, error) {
	var position schema.StakePosition
	err := s.db.WithContext(ctx).
		Where("record_address = ?", string(recordAddress)).
		First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}
	return &position, nil
}

// GetPositionsByOwner retrieves an owner's positions, open ones first
func (s *pgStore) GetPositionsByOwner(ctx context.Context, owner domain.Address) ([]*schema.StakePosition, error) {
	var positions []*schema.StakePosition
	err := s.db.WithContext(ctx).
		Where("owner = ?", string(owner)).
		Order("closed ASC, opened_at DESC").
		Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	return positions, nil
}

// HasOpenPosition reports whether the owner has any open position
func (s *pgStore) HasOpenPosition(ctx context.Context, owner domain.Address) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&schema.StakePosition{}).
		Where("owner = ? AND closed = false", string(owner)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count open positions: %w", err)
	}
	return count > 0, nil
}

// SumOpenPrincipal sums principal over all open positions
func (s *pgStore) SumOpenPrincipal(ctx context.Context) (uint64, error) {
	var sum uint64
	err := s.db.WithContext(ctx).Model(&schema.StakePosition{}).
		Where("closed = false").
		Select("COALESCE(SUM(principal), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum open principal: %w", err)
	}
	return sum, nil
}

// ApplyStake commits a new position, its funding transfer, and the pool
// aggregate increments in one transaction
func (s *pgStore) ApplyStake(ctx context.Context, input ApplyStakeInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := transfer(tx, input.Transfer, input.Asset); err != nil {
			return err
		}

		if err := tx.Create(input.Position).Error; err != nil {
			return fmt.Errorf("failed to create position: %w", err)
		}

		result := tx.Model(&schema.Pool{}).
			Where("paused = false").
			Updates(map[string]interface{}{
				"total_staked":  gorm.Expr("total_staked + ?", input.Position.Principal),
				"total_stakers": gorm.Expr("total_stakers + 1"),
				"updated_at":    gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update pool aggregates: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrPoolPaused
		}

		return journalEvent(tx, input.Event)
	})
}

// ApplyClaim commits a reward payout against a still-open position. The
// closed=false guard rejects a claim racing an unstake.
func (s *pgStore) ApplyClaim(ctx context.Context, input ApplyClaimInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.StakePosition{}).
			Where("record_address = ? AND closed = false", input.PositionAddress).
			Updates(map[string]interface{}{
				"claimed_reward": gorm.Expr("claimed_reward + ?", input.Claimed),
				"updated_at":     gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update claimed reward: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrPositionClosed
		}

		if err := transfer(tx, input.Transfer, input.Asset); err != nil {
			return err
		}

		if err := tx.Model(&schema.Pool{}).
			Where("1 = 1").
			Updates(map[string]interface{}{
				"total_rewards_distributed": gorm.Expr("total_rewards_distributed + ?", input.Claimed),
				"updated_at":                gorm.Expr("now()"),
			}).Error; err != nil {
			return fmt.Errorf("failed to update pool aggregates: %w", err)
		}

		return journalEvent(tx, input.Event)
	})
}

// ApplyUnstake commits the terminal payout and closes the position. The
// closed=false guard makes closing idempotent-unsafe by design: the second
// attempt fails instead of paying twice.
func (s *pgStore) ApplyUnstake(ctx context.Context, input ApplyUnstakeInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		closeUpdates := map[string]interface{}{
			"closed":       true,
			"close_reason": string(input.CloseReason),
			"updated_at":   gorm.Expr("now()"),
		}
		if input.CloseReason == schema.CloseReasonEmergency {
			// An emergency close forfeits the reward; zero the stored figure
			// so nothing outstanding survives on the row
			closeUpdates["reward_amount"] = 0
		}
		result := tx.Model(&schema.StakePosition{}).
			Where("record_address = ? AND closed = false", input.PositionAddress).
			Updates(closeUpdates)
		if result.Error != nil {
			return fmt.Errorf("failed to close position: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrPositionClosed
		}

		for _, t := range input.Transfers {
			if err := transfer(tx, t, input.Asset); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{
			"total_staked":  gorm.Expr("total_staked - ?", input.Principal),
			"total_stakers": gorm.Expr("total_stakers - 1"),
			"updated_at":    gorm.Expr("now()"),
		}
		if input.Reward > 0 {
			updates["total_rewards_distributed"] = gorm.Expr("total_rewards_distributed + ?", input.Reward)
		}
		poolResult := tx.Model(&schema.Pool{}).
			Where("total_staked >= ? AND total_stakers >= 1", input.Principal).
			Updates(updates)
		if poolResult.Error != nil {
			return fmt.Errorf("failed to update pool aggregates: %w", poolResult.Error)
		}
		if poolResult.RowsAffected == 0 {
			return domain.ErrMathOverflow
		}

		return journalEvent(tx, input.Event)
	})
}

// GetAccessRecord retrieves an owner's access record, nil if absent
func (s *pgStore) GetAccessRecord(ctx context.Context, owner domain.Address) (*schema.AccessRecord, error) {
	var record schema.AccessRecord
	err := s.db.WithContext(ctx).
		Where("owner = ?", string(owner)).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get access record: %w", err)
	}
	return &record, nil
}

// CreateAccessRecord initializes an owner's access record
func (s *pgStore) CreateAccessRecord(ctx context.Context, record *schema.AccessRecord, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to create access record: %w", err)
		}
		return journalEvent(tx, event)
	})
}

// SaveAccessVerification persists a re-derived tier for an owner
func (s *pgStore) SaveAccessVerification(ctx context.Context, owner domain.Address, tier domain.Tier, balance uint64, verifiedAt time.Time, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.AccessRecord{}).
			Where("owner = ?", string(owner)).
			Updates(map[string]interface{}{
				"current_tier":          uint8(tier),
				"last_verified_balance": balance,
				"verified_at":           verifiedAt,
				"updated_at":            gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to save verification: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrRecordNotFound
		}
		return journalEvent(tx, event)
	})
}

// GetStaleAccessRecords lists records whose verification is older than the cutoff
func (s *pgStore) GetStaleAccessRecords(ctx context.Context, verifiedBefore time.Time, limit int) ([]*schema.AccessRecord, error) {
	var records []*schema.AccessRecord
	err := s.db.WithContext(ctx).
		Where("verified_at < ?", verifiedBefore).
		Order("verified_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list stale access records: %w", err)
	}
	return records, nil
}

// GetTier retrieves a tier config by tier ID, nil if absent
func (s *pgStore) GetTier(ctx context.Context, tierID domain.Tier) (*schema.TierConfig, error) {
	var tier schema.TierConfig
	err := s.db.WithContext(ctx).
		Where("tier_id = ?", uint8(tierID)).
		First(&tier).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tier: %w", err)
	}
	return &tier, nil
}

// ListTiers lists all tier configs in ascending tier order
func (s *pgStore) ListTiers(ctx context.Context) ([]*schema.TierConfig, error) {
	var tiers []*schema.TierConfig
	err := s.db.WithContext(ctx).
		Order("tier_id ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tiers: %w", err)
	}
	return tiers, nil
}

// CreateTier creates a tier config
func (s *pgStore) CreateTier(ctx context.Context, tier *schema.TierConfig, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tier).Error; err != nil {
			return fmt.Errorf("failed to create tier: %w", err)
		}
		return journalEvent(tx, event)
	})
}

// SetTierActive flips a tier's active flag
func (s *pgStore) SetTierActive(ctx context.Context, tierID domain.Tier, active bool, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.TierConfig{}).
			Where("tier_id = ?", uint8(tierID)).
			Updates(map[string]interface{}{
				"active":     active,
				"updated_at": gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to set tier active: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvalidTier
		}
		return journalEvent(tx, event)
	})
}

// UpdateTierPrice changes a tier's price
func (s *pgStore) UpdateTierPrice(ctx context.Context, tierID domain.Tier, price uint64, event domain.LedgerEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.TierConfig{}).
			Where("tier_id = ?", uint8(tierID)).
			Updates(map[string]interface{}{
				"price":      price,
				"updated_at": gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update tier price: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrInvalidTier
		}
		return journalEvent(tx, event)
	})
}

// GetHolderRecord retrieves the holder record for (holder, tier), nil if absent
func (s *pgStore) GetHolderRecord(ctx context.Context, holder domain.Address, tierID domain.Tier) (*schema.HolderRecord, error) {
	var record schema.HolderRecord
	err := s.db.WithContext(ctx).
		Where("holder = ? AND tier_id = ?", string(holder), uint8(tierID)).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get holder record: %w", err)
	}
	return &record, nil
}

// GetHolderRecords lists all holder records for a holder
func (s *pgStore) GetHolderRecords(ctx context.Context, holder domain.Address) ([]*schema.HolderRecord, error) {
	var records []*schema.HolderRecord
	err := s.db.WithContext(ctx).
		Where("holder = ?", string(holder)).
		Order("tier_id ASC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list holder records: %w", err)
	}
	return records, nil
}

// ApplyTierPurchase commits a purchase: payment, holder record, supply
// counters. The current_supply guard enforces max supply under concurrency.
func (s *pgStore) ApplyTierPurchase(ctx context.Context, input ApplyTierPurchaseInput) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&schema.TierConfig{}).
			Where("tier_id = ? AND active = true AND current_supply < max_supply", input.Holder.TierID).
			Updates(map[string]interface{}{
				"current_supply": gorm.Expr("current_supply + 1"),
				"updated_at":     gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update tier supply: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrSoldOut
		}

		if err := transfer(tx, input.Transfer, input.Asset); err != nil {
			return err
		}

		if err := tx.Create(input.Holder).Error; err != nil {
			return fmt.Errorf("failed to create holder record: %w", err)
		}

		if err := tx.Model(&schema.Pool{}).
			Where("1 = 1").
			Updates(map[string]interface{}{
				"total_minted": gorm.Expr("total_minted + 1"),
				"updated_at":   gorm.Expr("now()"),
			}).Error; err != nil {
			return fmt.Errorf("failed to update pool aggregates: %w", err)
		}

		return journalEvent(tx, input.Event)
	})
}

// ListEvents pages through the journal for an owner, newest first
func (s *pgStore) ListEvents(ctx context.Context, owner domain.Address, limit, offset int) ([]*schema.EventJournal, error) {
	var events []*schema.EventJournal
	err := s.db.WithContext(ctx).
		Where("owner = ?", string(owner)).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}
