package store

import (
	"context"
	"time"

	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/store/schema"
)

// ApplyStakeInput carries everything a stake commit touches: the transfer of
// principal into the vault, the new position row, and the pool aggregates.
type ApplyStakeInput struct {
	Position *schema.StakePosition
	Transfer domain.Transfer
	Asset    string
	Event    domain.LedgerEvent
}

// ApplyClaimInput carries a reward payout against an open position
type ApplyClaimInput struct {
	PositionAddress string
	Claimed         uint64
	Transfer        domain.Transfer
	Asset           string
	Event           domain.LedgerEvent
}

// ApplyUnstakeInput carries the terminal payout of a position. Principal and
// reward move in the same transaction; a failed transfer commits nothing.
type ApplyUnstakeInput struct {
	PositionAddress string
	Principal       uint64
	Reward          uint64
	CloseReason     schema.CloseReason
	Transfers       []domain.Transfer
	Asset           string
	Event           domain.LedgerEvent
}

// ApplyTierPurchaseInput carries a tier purchase: payment to the treasury,
// the new holder record, and the supply counters.
type ApplyTierPurchaseInput struct {
	Holder   *schema.HolderRecord
	Transfer domain.Transfer
	Asset    string
	Event    domain.LedgerEvent
}

// Store defines the interface for record storage and the atomic ledger
// primitives the state machines run on. Every Apply* method commits all of
// its mutations in one transaction or none of them.
type Store interface {
	// GetPool retrieves the deployment's pool record, nil if not initialized
	GetPool(ctx context.Context) (*schema.Pool, error)
	// CreatePool initializes the pool record exactly once
	CreatePool(ctx context.Context, pool *schema.Pool, event domain.LedgerEvent) error
	// SetPoolPaused flips the pause flag
	SetPoolPaused(ctx context.Context, paused bool, event domain.LedgerEvent) error
	// UpdatePoolRates replaces the rate table
	UpdatePoolRates(ctx context.Context, rates domain.RateTable, event domain.LedgerEvent) error

	// GetBalance reads the authoritative balance for an account, 0 if absent
	GetBalance(ctx context.Context, account domain.Address, asset string) (uint64, error)
	// Credit adds to an account's balance, creating the row if needed
	Credit(ctx context.Context, account domain.Address, asset string, amount uint64) error
	// ApplyTransfer moves a balance between two accounts with an event,
	// used for admin funding operations
	ApplyTransfer(ctx context.Context, transfer domain.Transfer, asset string, event domain.LedgerEvent) error

	// GetPosition retrieves a stake position by its record address
	GetPosition(ctx context.Context, recordAddress domain.Address) (*schema.StakePosition, error)
	// GetPositionsByOwner retrieves an owner's positions, open ones first
	GetPositionsByOwner(ctx context.Context, owner domain.Address) ([]*schema.StakePosition, error)
	// HasOpenPosition reports whether the owner has any open position
	HasOpenPosition(ctx context.Context, owner domain.Address) (bool, error)
	// SumOpenPrincipal sums principal over all open positions
	SumOpenPrincipal(ctx context.Context) (uint64, error)
	// ApplyStake commits a new position, its funding transfer, and the pool
	// aggregate increments
	ApplyStake(ctx context.Context, input ApplyStakeInput) error
	// ApplyClaim commits a reward payout against a still-open position
	ApplyClaim(ctx context.Context, input ApplyClaimInput) error
	// ApplyUnstake commits the terminal payout and closes the position
	ApplyUnstake(ctx context.Context, input ApplyUnstakeInput) error

	// GetAccessRecord retrieves an owner's access record, nil if absent
	GetAccessRecord(ctx context.Context, owner domain.Address) (*schema.AccessRecord, error)
	// CreateAccessRecord initializes an owner's access record
	CreateAccessRecord(ctx context.Context, record *schema.AccessRecord, event domain.LedgerEvent) error
	// SaveAccessVerification persists a re-derived tier for an owner
	SaveAccessVerification(ctx context.Context, owner domain.Address, tier domain.Tier, balance uint64, verifiedAt time.Time, event domain.LedgerEvent) error
	// GetStaleAccessRecords lists records whose verification is older than the cutoff
	GetStaleAccessRecords(ctx context.Context, verifiedBefore time.Time, limit int) ([]*schema.AccessRecord, error)

	// GetTier retrieves a tier config by tier ID, nil if absent
	GetTier(ctx context.Context, tierID domain.Tier) (*schema.TierConfig, error)
	// ListTiers lists all tier configs in ascending tier order
	ListTiers(ctx context.Context) ([]*schema.TierConfig, error)
	// CreateTier creates a tier config
	CreateTier(ctx context.Context, tier *schema.TierConfig, event domain.LedgerEvent) error
	// SetTierActive flips a tier's active flag
	SetTierActive(ctx context.Context, tierID domain.Tier, active bool, event domain.LedgerEvent) error
	// UpdateTierPrice changes a tier's price
	UpdateTierPrice(ctx context.Context, tierID domain.Tier, price uint64, event domain.LedgerEvent) error
	// GetHolderRecord retrieves the holder record for (holder, tier), nil if absent
	GetHolderRecord(ctx context.Context, holder domain.Address, tierID domain.Tier) (*schema.HolderRecord, error)
	// GetHolderRecords lists all holder records for a holder
	GetHolderRecords(ctx context.Context, holder domain.Address) ([]*schema.HolderRecord, error)
	// ApplyTierPurchase commits a purchase: payment, holder record, supply counters
	ApplyTierPurchase(ctx context.Context, input ApplyTierPurchaseInput) error

	// ListEvents pages through the journal for an owner, newest first
	ListEvents(ctx context.Context, owner domain.Address, limit, offset int) ([]*schema.EventJournal, error)
}
