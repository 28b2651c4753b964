// Package staking implements the time-locked staking state machine: stake,
// claim, unstake, emergency unstake, and the pool admin operations.
//
// Every mutation follows the same shape: validate the caller and the record
// identity against fresh store reads, compute the outcome, then hand the
// whole outcome to the store as one atomic commit. The engine never trusts a
// caller-supplied balance or reward figure.
package staking

import (
	"context"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/dregan-protocol/staking-core/internal/adapter"
	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/logger"
	"github.com/dregan-protocol/staking-core/internal/messaging"
	"github.com/dregan-protocol/staking-core/internal/reward"
	"github.com/dregan-protocol/staking-core/internal/store"
	"github.com/dregan-protocol/staking-core/internal/store/schema"
	"github.com/dregan-protocol/staking-core/internal/validator"
)

// Config holds the policy knobs for the staking engine
type Config struct {
	// RewardPolicy selects fixed or continuous accrual for the deployment
	RewardPolicy domain.RewardPolicy
	// SinglePosition restricts each owner to one open position at a time
	SinglePosition bool
}

// Engine drives the staking state machine on top of the store
type Engine struct {
	store          store.Store
	clock          adapter.Clock
	publisher      messaging.Publisher
	policy         domain.RewardPolicy
	singlePosition bool
}

// NewEngine creates a staking engine. The publisher may be nil, in which case
// committed events are journaled but not broadcast.
func NewEngine(s store.Store, clock adapter.Clock, publisher messaging.Publisher, cfg Config) (*Engine, error) {
	policy := cfg.RewardPolicy
	if policy == "" {
		policy = domain.RewardPolicyFixed
	}
	if !domain.IsValidRewardPolicy(policy) {
		return nil, domain.ErrUnsupportedPolicy
	}

	return &Engine{
		store:          s,
		clock:          clock,
		publisher:      publisher,
		policy:         policy,
		singlePosition: cfg.SinglePosition,
	}, nil
}

// Policy returns the deployment's reward policy
func (e *Engine) Policy() domain.RewardPolicy {
	return e.policy
}

// PositionInfo is the read view of a stake position with the reward figures
// computed for the current time under the deployment's policy
type PositionInfo struct {
	Address     domain.Address     `json:"address"`
	Owner       domain.Address     `json:"owner"`
	Principal   uint64             `json:"principal"`
	LockClass   domain.LockClass   `json:"lock_class"`
	RateBps     uint16             `json:"rate_bps"`
	OpenedAt    time.Time          `json:"opened_at"`
	UnlocksAt   time.Time          `json:"unlocks_at"`
	Unlocked    bool               `json:"unlocked"`
	RewardTotal uint64             `json:"reward_total"`
	Claimed     uint64             `json:"claimed"`
	Claimable   uint64             `json:"claimable"`
	Closed      bool               `json:"closed"`
	CloseReason schema.CloseReason `json:"close_reason,omitempty"`
}

// PoolInfo is the read view of the pool record
type PoolInfo struct {
	Authority               domain.Address   `json:"authority"`
	ReferenceAsset          string           `json:"reference_asset"`
	VaultAddress            domain.Address   `json:"vault_address"`
	RewardVaultAddress      domain.Address   `json:"reward_vault_address"`
	TreasuryAddress         domain.Address   `json:"treasury_address"`
	Paused                  bool             `json:"paused"`
	Rates                   domain.RateTable `json:"rates"`
	TotalStaked             uint64           `json:"total_staked"`
	TotalStakers            uint64           `json:"total_stakers"`
	TotalRewardsDistributed uint64           `json:"total_rewards_distributed"`
	TotalMinted             uint64           `json:"total_minted"`
}

// InitializePool creates the deployment's pool record. It runs exactly once;
// a second call fails with ErrPoolExists.
func (e *Engine) InitializePool(ctx context.Context, authority, treasury domain.Address, referenceAsset string, rates domain.RateTable) (*domain.OperationResult, error) {
	if !domain.IsValidAddress(authority) || !domain.IsValidAddress(treasury) {
		return nil, domain.ErrIdentityMismatch
	}
	if err := validateRates(rates); err != nil {
		return nil, err
	}

	authority = domain.NormalizeAddress(authority)
	encoded, err := schema.EncodeRateTable(rates)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	pool := &schema.Pool{
		RecordAddress:      string(domain.DeriveAddress(authority, domain.PurposePool, "")),
		Authority:          string(authority),
		ReferenceAsset:     referenceAsset,
		VaultAddress:       string(domain.DeriveAddress(authority, domain.PurposeVault, "")),
		RewardVaultAddress: string(domain.DeriveAddress(authority, domain.PurposeRewards, "")),
		TreasuryAddress:    string(domain.NormalizeAddress(treasury)),
		RateTable:          encoded,
	}

	event := e.newEvent(domain.EventTypePoolInitialized, authority, now)
	if err := e.store.CreatePool(ctx, pool, event); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{Event: event}, nil
}

// Stake locks principal into a new position under the given lock class. The
// full-term reward is computed from the current rate table and frozen into
// the position so later rate changes are not retroactive.
func (e *Engine) Stake(ctx context.Context, caller domain.Address, amount uint64, class domain.LockClass) (*domain.OperationResult, error) {
	if !domain.IsValidAddress(caller) {
		return nil, domain.ErrIdentityMismatch
	}
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !domain.IsValidLockClass(class) {
		return nil, domain.ErrInvalidLockClass
	}
	caller = domain.NormalizeAddress(caller)

	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if pool.Paused {
		return nil, domain.ErrPoolPaused
	}

	rates, err := pool.Rates()
	if err != nil {
		return nil, err
	}
	rateBps, ok := rates.Rate(class)
	if !ok {
		return nil, domain.ErrInvalidLockClass
	}

	if e.singlePosition {
		open, err := e.store.HasOpenPosition(ctx, caller)
		if err != nil {
			return nil, err
		}
		if open {
			return nil, domain.ErrPositionActive
		}
	}

	// Authoritative balance read; the store re-checks inside the commit
	balance, err := e.store.GetBalance(ctx, caller, pool.ReferenceAsset)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, domain.ErrInsufficientFunds
	}

	if pool.TotalStaked > math.MaxUint64-amount {
		return nil, domain.ErrMathOverflow
	}

	rewardTotal, err := reward.FixedReward(amount, rateBps, class)
	if err != nil {
		return nil, err
	}

	// timestamptz keeps microsecond precision; the open time feeds the
	// derivation salt, so anything finer would derive a different address
	// after a round-trip through the store
	now := e.clock.Now().UTC().Truncate(time.Microsecond)
	unlocksAt := now.Add(class.Duration())
	position := &schema.StakePosition{
		RecordAddress: string(domain.DeriveAddress(caller, domain.PurposeStake, now.Format(time.RFC3339Nano))),
		Owner:         string(caller),
		Principal:     amount,
		LockDays:      uint8(class),
		RateBps:       rateBps,
		OpenedAt:      now,
		UnlocksAt:     unlocksAt,
		RewardAmount:  rewardTotal,
	}

	transfer := domain.Transfer{
		From:   caller,
		To:     domain.Address(pool.VaultAddress),
		Amount: amount,
	}

	event := e.newEvent(domain.EventTypeStaked, caller, now)
	event.Amount = amount
	event.Reward = rewardTotal
	event.LockClass = class
	event.Position = domain.Address(position.RecordAddress)
	unlocksUnix := unlocksAt.Unix()
	event.UnlocksAt = &unlocksUnix

	if err := e.store.ApplyStake(ctx, store.ApplyStakeInput{
		Position: position,
		Transfer: transfer,
		Asset:    pool.ReferenceAsset,
		Event:    event,
	}); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{
		Transfers: []domain.Transfer{transfer},
		Event:     event,
	}, nil
}

// Claim pays out the reward accrued so far on an open position. Only the
// continuous policy supports partial claims; under the fixed policy the
// reward is paid in full at unstake. Pausing gates new stakes only, so a
// claim goes through on a paused pool.
func (e *Engine) Claim(ctx context.Context, caller, positionAddress domain.Address) (*domain.OperationResult, error) {
	if e.policy != domain.RewardPolicyContinuous {
		return nil, domain.ErrUnsupportedPolicy
	}

	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}

	position, err := e.ownedPosition(ctx, caller, positionAddress)
	if err != nil {
		return nil, err
	}
	if position.Closed {
		return nil, domain.ErrPositionClosed
	}

	now := e.clock.Now().UTC()
	elapsed := reward.Elapsed(now, position.OpenedAt, position.UnlocksAt)
	owed, err := reward.Accrue(position.Principal, position.RateBps, elapsed)
	if err != nil {
		return nil, err
	}
	if owed <= position.ClaimedReward {
		return nil, domain.ErrNothingToClaim
	}
	claimable := owed - position.ClaimedReward

	transfer := domain.Transfer{
		From:   domain.Address(pool.RewardVaultAddress),
		To:     domain.Address(position.Owner),
		Amount: claimable,
	}

	event := e.newEvent(domain.EventTypeClaimed, domain.Address(position.Owner), now)
	event.Reward = claimable
	event.Position = positionAddress

	if err := e.store.ApplyClaim(ctx, store.ApplyClaimInput{
		PositionAddress: position.RecordAddress,
		Claimed:         claimable,
		Transfer:        transfer,
		Asset:           pool.ReferenceAsset,
		Event:           event,
	}); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{
		Transfers: []domain.Transfer{transfer},
		Event:     event,
	}, nil
}

// Unstake closes a position after its lock has expired, paying principal plus
// the outstanding reward in one commit. Pausing does not gate it: an expired
// position pays out in full whether or not the pool accepts new stakes.
func (e *Engine) Unstake(ctx context.Context, caller, positionAddress domain.Address) (*domain.OperationResult, error) {
	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}

	position, err := e.ownedPosition(ctx, caller, positionAddress)
	if err != nil {
		return nil, err
	}
	if position.Closed {
		return nil, domain.ErrPositionClosed
	}

	now := e.clock.Now().UTC()
	if now.Before(position.UnlocksAt) {
		return nil, domain.ErrStillLocked
	}

	outstanding, err := e.outstandingReward(position, now)
	if err != nil {
		return nil, err
	}

	transfers := []domain.Transfer{
		{From: domain.Address(pool.VaultAddress), To: domain.Address(position.Owner), Amount: position.Principal},
	}
	if outstanding > 0 {
		transfers = append(transfers, domain.Transfer{
			From:   domain.Address(pool.RewardVaultAddress),
			To:     domain.Address(position.Owner),
			Amount: outstanding,
		})
	}

	event := e.newEvent(domain.EventTypeUnstaked, domain.Address(position.Owner), now)
	event.Amount = position.Principal
	event.Reward = outstanding
	event.Position = positionAddress

	if err := e.store.ApplyUnstake(ctx, store.ApplyUnstakeInput{
		PositionAddress: position.RecordAddress,
		Principal:       position.Principal,
		Reward:          outstanding,
		CloseReason:     schema.CloseReasonUnstaked,
		Transfers:       transfers,
		Asset:           pool.ReferenceAsset,
		Event:           event,
	}); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{
		Transfers: transfers,
		Event:     event,
	}, nil
}

// EmergencyUnstake closes a position before its lock expires, returning
// exactly the principal and forfeiting the entire reward. It works even while
// the pool is paused so funds are never trapped. The forfeited amount is
// recorded on the event and the stored reward zeroed so nothing outstanding
// survives the close.
func (e *Engine) EmergencyUnstake(ctx context.Context, caller, positionAddress domain.Address) (*domain.OperationResult, error) {
	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}

	position, err := e.ownedPosition(ctx, caller, positionAddress)
	if err != nil {
		return nil, err
	}
	if position.Closed {
		return nil, domain.ErrPositionClosed
	}

	now := e.clock.Now().UTC()
	forfeited, err := e.outstandingReward(position, now)
	if err != nil {
		return nil, err
	}

	transfers := []domain.Transfer{
		{From: domain.Address(pool.VaultAddress), To: domain.Address(position.Owner), Amount: position.Principal},
	}

	event := e.newEvent(domain.EventTypeEmergencyUnstaked, domain.Address(position.Owner), now)
	event.Amount = position.Principal
	event.Position = positionAddress
	event.Forfeited = forfeited

	if err := e.store.ApplyUnstake(ctx, store.ApplyUnstakeInput{
		PositionAddress: position.RecordAddress,
		Principal:       position.Principal,
		Reward:          0,
		CloseReason:     schema.CloseReasonEmergency,
		Transfers:       transfers,
		Asset:           pool.ReferenceAsset,
		Event:           event,
	}); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{
		Transfers: transfers,
		Event:     event,
	}, nil
}

// StakeInfo returns the read view of a caller's position with reward figures
// computed for the current time
func (e *Engine) StakeInfo(ctx context.Context, caller, positionAddress domain.Address) (*PositionInfo, error) {
	position, err := e.ownedPosition(ctx, caller, positionAddress)
	if err != nil {
		return nil, err
	}
	return e.positionInfo(position)
}

// Positions returns the read views of all the caller's positions
func (e *Engine) Positions(ctx context.Context, caller domain.Address) ([]*PositionInfo, error) {
	if !domain.IsValidAddress(caller) {
		return nil, domain.ErrIdentityMismatch
	}

	positions, err := e.store.GetPositionsByOwner(ctx, domain.NormalizeAddress(caller))
	if err != nil {
		return nil, err
	}

	infos := make([]*PositionInfo, 0, len(positions))
	for _, position := range positions {
		info, err := e.positionInfo(position)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PoolStatus returns the read view of the pool record
func (e *Engine) PoolStatus(ctx context.Context) (*PoolInfo, error) {
	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}

	rates, err := pool.Rates()
	if err != nil {
		return nil, err
	}

	return &PoolInfo{
		Authority:               domain.Address(pool.Authority),
		ReferenceAsset:          pool.ReferenceAsset,
		VaultAddress:            domain.Address(pool.VaultAddress),
		RewardVaultAddress:      domain.Address(pool.RewardVaultAddress),
		TreasuryAddress:         domain.Address(pool.TreasuryAddress),
		Paused:                  pool.Paused,
		Rates:                   rates,
		TotalStaked:             pool.TotalStaked,
		TotalStakers:            pool.TotalStakers,
		TotalRewardsDistributed: pool.TotalRewardsDistributed,
		TotalMinted:             pool.TotalMinted,
	}, nil
}

// SetPaused flips the pool pause flag. Authority only.
func (e *Engine) SetPaused(ctx context.Context, caller domain.Address, paused bool) (*domain.OperationResult, error) {
	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.Admin(caller, domain.Address(pool.Authority)); err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	event := e.newEvent(domain.EventTypePoolPaused, domain.Address(pool.Authority), now)
	if err := e.store.SetPoolPaused(ctx, paused, event); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{Event: event}, nil
}

// UpdateRewardRates replaces the rate table. Authority only. Existing
// positions keep the rate snapshotted when they were opened.
func (e *Engine) UpdateRewardRates(ctx context.Context, caller domain.Address, rates domain.RateTable) (*domain.OperationResult, error) {
	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.Admin(caller, domain.Address(pool.Authority)); err != nil {
		return nil, err
	}
	if err := validateRates(rates); err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	event := e.newEvent(domain.EventTypeRatesUpdated, domain.Address(pool.Authority), now)
	if err := e.store.UpdatePoolRates(ctx, rates, event); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{Event: event}, nil
}

// FundRewards moves reference asset from the authority's account into the
// reward vault. Authority only.
func (e *Engine) FundRewards(ctx context.Context, caller domain.Address, amount uint64) (*domain.OperationResult, error) {
	if amount == 0 {
		return nil, domain.ErrInvalidAmount
	}

	pool, err := e.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.Admin(caller, domain.Address(pool.Authority)); err != nil {
		return nil, err
	}

	transfer := domain.Transfer{
		From:   domain.Address(pool.Authority),
		To:     domain.Address(pool.RewardVaultAddress),
		Amount: amount,
	}

	now := e.clock.Now().UTC()
	event := e.newEvent(domain.EventTypeRewardsFunded, domain.Address(pool.Authority), now)
	event.Amount = amount

	if err := e.store.ApplyTransfer(ctx, transfer, pool.ReferenceAsset, event); err != nil {
		return nil, err
	}

	e.publish(ctx, event)
	return &domain.OperationResult{
		Transfers: []domain.Transfer{transfer},
		Event:     event,
	}, nil
}

// requirePool reads the pool record, failing when the deployment has not been
// initialized
func (e *Engine) requirePool(ctx context.Context) (*schema.Pool, error) {
	pool, err := e.store.GetPool(ctx)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, domain.ErrNotInitialized
	}
	return pool, nil
}

// ownedPosition reads a position and runs the full owner-scoped identity
// sequence against it
func (e *Engine) ownedPosition(ctx context.Context, caller, positionAddress domain.Address) (*schema.StakePosition, error) {
	if !domain.IsValidAddress(caller) || !domain.IsValidAddress(positionAddress) {
		return nil, domain.ErrIdentityMismatch
	}

	position, err := e.store.GetPosition(ctx, domain.NormalizeAddress(positionAddress))
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, domain.ErrRecordNotFound
	}

	rec := validator.Record{
		Address:     domain.Address(position.RecordAddress),
		Owner:       domain.Address(position.Owner),
		Salt:        position.Salt(),
		Initialized: true,
	}
	if err := validator.OwnedRecord(rec, caller, domain.PurposeStake); err != nil {
		return nil, err
	}
	return position, nil
}

// outstandingReward computes the reward still owed on a position at close
// time. Under the fixed policy this is the frozen full-term reward; under the
// continuous policy it is the accrued total capped at lock expiry, minus what
// was already claimed.
func (e *Engine) outstandingReward(position *schema.StakePosition, now time.Time) (uint64, error) {
	total := position.RewardAmount
	if e.policy == domain.RewardPolicyContinuous {
		elapsed := reward.Elapsed(now, position.OpenedAt, position.UnlocksAt)
		owed, err := reward.Accrue(position.Principal, position.RateBps, elapsed)
		if err != nil {
			return 0, err
		}
		total = owed
	}

	if total <= position.ClaimedReward {
		return 0, nil
	}
	return total - position.ClaimedReward, nil
}

// positionInfo builds the read view for a position
func (e *Engine) positionInfo(position *schema.StakePosition) (*PositionInfo, error) {
	now := e.clock.Now().UTC()

	var claimable uint64
	if !position.Closed {
		if e.policy == domain.RewardPolicyContinuous {
			outstanding, err := e.outstandingReward(position, now)
			if err != nil {
				return nil, err
			}
			claimable = outstanding
		} else if !now.Before(position.UnlocksAt) {
			claimable = position.RewardAmount - position.ClaimedReward
		}
	}

	return &PositionInfo{
		Address:     domain.Address(position.RecordAddress),
		Owner:       domain.Address(position.Owner),
		Principal:   position.Principal,
		LockClass:   domain.LockClass(position.LockDays),
		RateBps:     position.RateBps,
		OpenedAt:    position.OpenedAt,
		UnlocksAt:   position.UnlocksAt,
		Unlocked:    !now.Before(position.UnlocksAt),
		RewardTotal: position.RewardAmount,
		Claimed:     position.ClaimedReward,
		Claimable:   claimable,
		Closed:      position.Closed,
		CloseReason: position.CloseReason,
	}, nil
}

// newEvent builds the common event envelope
func (e *Engine) newEvent(eventType domain.EventType, owner domain.Address, now time.Time) domain.LedgerEvent {
	return domain.LedgerEvent{
		EventID:   ulid.Make().String(),
		EventType: eventType,
		Owner:     owner,
		Timestamp: now,
	}
}

// publish broadcasts a committed event, logging instead of failing when the
// broker is unreachable
func (e *Engine) publish(ctx context.Context, event domain.LedgerEvent) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.PublishEvent(ctx, &event); err != nil {
		logger.WarnCtx(ctx, "failed to publish event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
	}
}

// validateRates checks that a rate table covers every supported lock class
// with a non-zero rate no higher than 100% annually
func validateRates(rates domain.RateTable) error {
	for _, class := range domain.LockClasses() {
		rate, ok := rates.Rate(class)
		if !ok || rate == 0 || rate > domain.BasisPointDenominator {
			return domain.ErrInvalidLockClass
		}
	}
	return nil
}
