package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/store/schema"
)

// memoryStore is an in-memory Store implementation with the same guard
// semantics as the PostgreSQL store. It backs unit tests of the state
// machines and local development without a database.
type memoryStore struct {
	mu sync.Mutex

	pool      *schema.Pool
	balances  map[balanceKey]uint64
	positions map[string]*schema.StakePosition
	access    map[string]*schema.AccessRecord
	tiers     map[uint8]*schema.TierConfig
	holders   map[holderKey]*schema.HolderRecord
	events    []*schema.EventJournal
	nextID    int64
}

type balanceKey struct {
	account string
	asset   string
}

type holderKey struct {
	holder string
	tierID uint8
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() Store {
	return &memoryStore{
		balances:  make(map[balanceKey]uint64),
		positions: make(map[string]*schema.StakePosition),
		access:    make(map[string]*schema.AccessRecord),
		tiers:     make(map[uint8]*schema.TierConfig),
		holders:   make(map[holderKey]*schema.HolderRecord),
	}
}

func (s *memoryStore) journal(event domain.LedgerEvent) {
	s.nextID++
	s.events = append(s.events, &schema.EventJournal{
		ID:        s.nextID,
		EventID:   event.EventID,
		EventType: string(event.EventType),
		Owner:     string(event.Owner),
		CreatedAt: event.Timestamp,
	})
}

/// applyTransfers applies a set of transfers atomically: all guards are
// checked against a scratch copy first, the real map only changes when every
// movement is possible.
func (s *memoryStore) applyTransfers(transfers []domain.Transfer, asset string) error {
	scratch := make(map[balanceKey]uint64, len(s.balances))
	for key, amount := range s.balances {
		scratch[key] = amount
	}

	for _, t := range transfers {
		from := balanceKey{account: string(t.From), asset: asset}
		if scratch[from] < t.Amount {
			return domain.ErrInsufficientFunds
		}
		scratch[from] -= t.Amount
		scratch[balanceKey{account: string(t.To), asset: asset}] += t.Amount
	}

	s.balances = scratch
	return nil
}

func copyPosition(position *schema.StakePosition) *schema.StakePosition {
	clone := *position
	return &clone
}

func (s *memoryStore) GetPool(ctx context.Context) (*schema.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return nil, nil
	}
	clone := *s.pool
	return &clone, nil
}

func (s *memoryStore) CreatePool(ctx context.Context, pool *schema.Pool, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		return domain.ErrPoolExists
	}
	clone := *pool
	s.pool = &clone
	s.journal(event)
	return nil
}

func (s *memoryStore) SetPoolPaused(ctx context.Context, paused bool, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return domain.ErrNotInitialized
	}
	s.pool.Paused = paused
	s.journal(event)
	return nil
}

func (s *memoryStore) UpdatePoolRates(ctx context.Context, rates domain.RateTable, event domain.LedgerEvent) error {
	encoded, err := schema.EncodeRateTable(rates)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		return domain.ErrNotInitialized
	}
	s.pool.RateTable = encoded
	s.journal(event)
	return nil
}

func (s *memoryStore) GetBalance(ctx context.Context, account domain.Address, asset string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.balances[balanceKey{account: string(account), asset: asset}], nil
}

func (s *memoryStore) Credit(ctx context.Context, account domain.Address, asset string, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[balanceKey{account: string(account), asset: asset}] += amount
	return nil
}

func (s *memoryStore) ApplyTransfer(ctx context.Context, transfer domain.Transfer, asset string, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.applyTransfers([]domain.Transfer{transfer}, asset); err != nil {
		return err
	}
	s.journal(event)
	return nil
}

func (s *memoryStore) GetPosition(ctx context.Context, recordAddress domain.Address) (*schema.StakePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, ok := s.positions[string(recordAddress)]
	if !ok {
		return nil, nil
	}
	return copyPosition(position), nil
}

func (s *memoryStore) GetPositionsByOwner(ctx context.Context, owner domain.Address) ([]*schema.StakePosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []*schema.StakePosition
	for _, position := range s.positions {
		if position.Owner == string(owner) {
			positions = append(positions, copyPosition(position))
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Closed != positions[j].Closed {
			return !positions[i].Closed
		}
		return positions[i].OpenedAt.After(positions[j].OpenedAt)
	})
	return positions, nil
}

func (s *memoryStore) HasOpenPosition(ctx context.Context, owner domain.Address) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, position := range s.positions {
		if position.Owner == string(owner) && !position.Closed {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryStore) SumOpenPrincipal(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum uint64
	for _, position := range s.positions {
		if !position.Closed {
			sum += position.Principal
		}
	}
	return sum, nil
}

func (s *memoryStore) ApplyStake(ctx context.Context, input ApplyStakeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil || s.pool.Paused {
		return domain.ErrPoolPaused
	}
	if err := s.applyTransfers([]domain.Transfer{input.Transfer}, input.Asset); err != nil {
		return err
	}

	s.positions[input.Position.RecordAddress] = copyPosition(input.Position)
	s.pool.TotalStaked += input.Position.Principal
	s.pool.TotalStakers++
	s.journal(input.Event)
	return nil
}

func (s *memoryStore) ApplyClaim(ctx context.Context, input ApplyClaimInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, ok := s.positions[input.PositionAddress]
	if !ok || position.Closed {
		return domain.ErrPositionClosed
	}
	if err := s.applyTransfers([]domain.Transfer{input.Transfer}, input.Asset); err != nil {
		return err
	}

	position.ClaimedReward += input.Claimed
	if s.pool != nil {
		s.pool.TotalRewardsDistributed += input.Claimed
	}
	s.journal(input.Event)
	return nil
}

func (s *memoryStore) ApplyUnstake(ctx context.Context, input ApplyUnstakeInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	position, ok := s.positions[input.PositionAddress]
	if !ok || position.Closed {
		return domain.ErrPositionClosed
	}
	if s.pool == nil || s.pool.TotalStaked < input.Principal || s.pool.TotalStakers < 1 {
		return domain.ErrMathOverflow
	}
	if err := s.applyTransfers(input.Transfers, input.Asset); err != nil {
		return err
	}

	position.Closed = true
	position.CloseReason = input.CloseReason
	if input.CloseReason == schema.CloseReasonEmergency {
		position.RewardAmount = 0
	}
	s.pool.TotalStaked -= input.Principal
	s.pool.TotalStakers--
	s.pool.TotalRewardsDistributed += input.Reward
	s.journal(input.Event)
	return nil
}

func (s *memoryStore) GetAccessRecord(ctx context.Context, owner domain.Address) (*schema.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.access[string(owner)]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (s *memoryStore) CreateAccessRecord(ctx context.Context, record *schema.AccessRecord, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.access[record.Owner]; ok {
		return fmt.Errorf("access record already exists for %s", record.Owner)
	}
	clone := *record
	s.access[record.Owner] = &clone
	s.journal(event)
	return nil
}

func (s *memoryStore) SaveAccessVerification(ctx context.Context, owner domain.Address, tier domain.Tier, balance uint64, verifiedAt time.Time, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.access[string(owner)]
	if !ok {
		return domain.ErrRecordNotFound
	}
	record.CurrentTier = uint8(tier)
	record.LastVerifiedBalance = balance
	record.VerifiedAt = verifiedAt
	s.journal(event)
	return nil
}

func (s *memoryStore) GetStaleAccessRecords(ctx context.Context, verifiedBefore time.Time, limit int) ([]*schema.AccessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*schema.AccessRecord
	for _, record := range s.access {
		if record.VerifiedAt.Before(verifiedBefore) {
			clone := *record
			records = append(records, &clone)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].VerifiedAt.Before(records[j].VerifiedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *memoryStore) GetTier(ctx context.Context, tierID domain.Tier) (*schema.TierConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tier, ok := s.tiers[uint8(tierID)]
	if !ok {
		return nil, nil
	}
	clone := *tier
	return &clone, nil
}

func (s *memoryStore) ListTiers(ctx context.Context) ([]*schema.TierConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tiers []*schema.TierConfig
	for _, tier := range s.tiers {
		clone := *tier
		tiers = append(tiers, &clone)
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].TierID < tiers[j].TierID
	})
	return tiers, nil
}

func (s *memoryStore) CreateTier(ctx context.Context, tier *schema.TierConfig, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tiers[tier.TierID]; ok {
		return fmt.Errorf("tier %d already exists", tier.TierID)
	}
	clone := *tier
	s.tiers[tier.TierID] = &clone
	s.journal(event)
	return nil
}

func (s *memoryStore) SetTierActive(ctx context.Context, tierID domain.Tier, active bool, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tier, ok := s.tiers[uint8(tierID)]
	if !ok {
		return domain.ErrInvalidTier
	}
	tier.Active = active
	s.journal(event)
	return nil
}

func (s *memoryStore) UpdateTierPrice(ctx context.Context, tierID domain.Tier, price uint64, event domain.LedgerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tier, ok := s.tiers[uint8(tierID)]
	if !ok {
		return domain.ErrInvalidTier
	}
	tier.Price = price
	s.journal(event)
	return nil
}

func (s *memoryStore) GetHolderRecord(ctx context.Context, holder domain.Address, tierID domain.Tier) (*schema.HolderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.holders[holderKey{holder: string(holder), tierID: uint8(tierID)}]
	if !ok {
		return nil, nil
	}
	clone := *record
	return &clone, nil
}

func (s *memoryStore) GetHolderRecords(ctx context.Context, holder domain.Address) ([]*schema.HolderRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*schema.HolderRecord
	for key, record := range s.holders {
		if key.holder == string(holder) {
			clone := *record
			records = append(records, &clone)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].TierID < records[j].TierID
	})
	return records, nil
}

func (s *memoryStore) ApplyTierPurchase(ctx context.Context, input ApplyTierPurchaseInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tier, ok := s.tiers[input.Holder.TierID]
	if !ok || !tier.Active || tier.CurrentSupply >= tier.MaxSupply {
		return domain.ErrSoldOut
	}

	key := holderKey{holder: input.Holder.Holder, tierID: input.Holder.TierID}
	if _, ok := s.holders[key]; ok {
		return domain.ErrAlreadyOwned
	}

	if err := s.applyTransfers([]domain.Transfer{input.Transfer}, input.Asset); err != nil {
		return err
	}

	clone := *input.Holder
	s.holders[key] = &clone
	tier.CurrentSupply++
	if s.pool != nil {
		s.pool.TotalMinted++
	}
	s.journal(input.Event)
	return nil
}

func (s *memoryStore) ListEvents(ctx context.Context, owner domain.Address, limit, offset int) ([]*schema.EventJournal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []*schema.EventJournal
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Owner == string(owner) {
			clone := *s.events[i]
			events = append(events, &clone)
		}
	}
	if offset > len(events) {
		offset = len(events)
	}
	events = events[offset:]
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
