// Package access implements the token-gated access verification flow and the
// purchasable tier registry.
//
// Verification never trusts a caller-reported balance: the owner's holding of
// the reference asset is re-read from the store on every verify, classified
// against the configured thresholds, and the result persisted on the owner's
// access record. Tier purchases move the reference asset to the treasury and
// mint exactly one holder record per (holder, tier) pair.
package access

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/dregan-protocol/staking-core/internal/adapter"
	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/logger"
	"github.com/dregan-protocol/staking-core/internal/messaging"
	"github.com/dregan-protocol/staking-core/internal/store"
	"github.com/dregan-protocol/staking-core/internal/store/schema"
	"github.com/dregan-protocol/staking-core/internal/tier"
	"github.com/dregan-protocol/staking-core/internal/validator"
)

// Flow drives access verification and the tier registry on top of the store
type Flow struct {
	store      store.Store
	clock      adapter.Clock
	publisher  messaging.Publisher
	thresholds tier.Thresholds
}

// NewFlow creates an access flow. The publisher may be nil, in which case
// committed events are journaled but not broadcast.
func NewFlow(s store.Store, clock adapter.Clock, publisher messaging.Publisher, thresholds tier.Thresholds) (*Flow, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	return &Flow{
		store:      s,
		clock:      clock,
		publisher:  publisher,
		thresholds: thresholds,
	}, nil
}

// Thresholds returns the configured balance cutoffs
func (f *Flow) Thresholds() tier.Thresholds {
	return f.thresholds
}

// AccessInfo is the read view of an owner's access record
type AccessInfo struct {
	Owner               domain.Address `json:"owner"`
	CurrentTier         domain.Tier    `json:"current_tier"`
	TierName            string         `json:"tier_name"`
	LastVerifiedBalance uint64         `json:"last_verified_balance"`
	VerifiedAt          time.Time      `json:"verified_at"`
}

// TierInfo is the read view of a purchasable tier
type TierInfo struct {
	TierID        domain.Tier `json:"tier_id"`
	Name          string      `json:"name"`
	Price         uint64      `json:"price"`
	MaxSupply     uint64      `json:"max_supply"`
	CurrentSupply uint64      `json:"current_supply"`
	MetadataURI   string      `json:"metadata_uri"`
	Active        bool        `json:"active"`
}

// HolderInfo is the read view of a committed tier purchase
type HolderInfo struct {
	Holder      domain.Address `json:"holder"`
	TierID      domain.Tier    `json:"tier_id"`
	PricePaid   uint64         `json:"price_paid"`
	PurchasedAt time.Time      `json:"purchased_at"`
}

// Initialize creates an owner's access record at TierNone with a zero
// verified balance. Classification only ever happens through Verify.
func (f *Flow) Initialize(ctx context.Context, caller domain.Address) (*domain.OperationResult, error) {
	if _, err := f.requirePool(ctx); err != nil {
		return nil, err
	}
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}

	existing, err := f.store.GetAccessRecord(ctx, caller)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrRecordExists
	}

	now := f.clock.Now().UTC()
	record := &schema.AccessRecord{
		RecordAddress: string(domain.DeriveAddress(caller, domain.PurposeAccess, "")),
		Owner:         string(caller),
		CurrentTier:   uint8(domain.TierNone),
		VerifiedAt:    now,
	}

	event := f.newEvent(domain.EventTypeAccessInitialized, caller, now)
	event.Tier = domain.TierNone

	if err := f.store.CreateAccessRecord(ctx, record, event); err != nil {
		return nil, err
	}

	f.publish(ctx, event)
	return &domain.OperationResult{Event: event}, nil
}

// Verify re-derives the caller's tier from an authoritative balance read and
// persists it. Re-verifying an unchanged balance is a harmless no-op that
// still refreshes the verification timestamp.
func (f *Flow) Verify(ctx context.Context, caller domain.Address) (*AccessInfo, error) {
	pool, err := f.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	caller, err = normalizeCaller(caller)
	if err != nil {
		return nil, err
	}

	record, err := f.ownedRecord(ctx, caller)
	if err != nil {
		return nil, err
	}

	balance, err := f.store.GetBalance(ctx, caller, pool.ReferenceAsset)
	if err != nil {
		return nil, err
	}
	derived := f.thresholds.Classify(balance)

	now := f.clock.Now().UTC()
	event := f.newEvent(domain.EventTypeTierVerified, caller, now)
	event.Amount = balance
	event.Tier = derived

	if err := f.store.SaveAccessVerification(ctx, caller, derived, balance, now, event); err != nil {
		return nil, err
	}

	if derived != domain.Tier(record.CurrentTier) {
		logger.InfoCtx(ctx, "access tier changed",
			zap.String("owner", string(caller)),
			zap.String("from", domain.Tier(record.CurrentTier).String()),
			zap.String("to", derived.String()))
	}

	f.publish(ctx, event)
	return &AccessInfo{
		Owner:               caller,
		CurrentTier:         derived,
		TierName:            derived.String(),
		LastVerifiedBalance: balance,
		VerifiedAt:          now,
	}, nil
}

// CheckTier reports whether the caller's stored tier meets a required level.
// It reads the record as-is; call Verify first for a fresh derivation.
func (f *Flow) CheckTier(ctx context.Context, caller domain.Address, required domain.Tier) (bool, error) {
	caller, err := normalizeCaller(caller)
	if err != nil {
		return false, err
	}

	record, err := f.ownedRecord(ctx, caller)
	if err != nil {
		return false, err
	}
	return domain.Tier(record.CurrentTier) >= required, nil
}

// AccessStatus returns the read view of the caller's access record
func (f *Flow) AccessStatus(ctx context.Context, caller domain.Address) (*AccessInfo, error) {
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}

	record, err := f.ownedRecord(ctx, caller)
	if err != nil {
		return nil, err
	}

	return &AccessInfo{
		Owner:               caller,
		CurrentTier:         domain.Tier(record.CurrentTier),
		TierName:            domain.Tier(record.CurrentTier).String(),
		LastVerifiedBalance: record.LastVerifiedBalance,
		VerifiedAt:          record.VerifiedAt,
	}, nil
}

// CreateTier registers a purchasable tier. Authority only.
func (f *Flow) CreateTier(ctx context.Context, caller domain.Address, tierID domain.Tier, name string, price, maxSupply uint64, metadataURI string) (*domain.OperationResult, error) {
	pool, err := f.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.Admin(caller, domain.Address(pool.Authority)); err != nil {
		return nil, err
	}
	if !domain.IsValidTier(tierID) {
		return nil, domain.ErrInvalidTier
	}
	if len(name) == 0 || len(name) > domain.MaxTierNameLength {
		return nil, domain.ErrNameTooLong
	}
	if len(metadataURI) > domain.MaxMetadataURILength {
		return nil, domain.ErrURITooLong
	}
	if price == 0 || maxSupply == 0 {
		return nil, domain.ErrInvalidAmount
	}

	existing, err := f.store.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrRecordExists
	}

	now := f.clock.Now().UTC()
	config := &schema.TierConfig{
		TierID:      uint8(tierID),
		Name:        name,
		Price:       price,
		MaxSupply:   maxSupply,
		MetadataURI: metadataURI,
		Active:      true,
	}

	event := f.newEvent(domain.EventTypeTierCreated, domain.Address(pool.Authority), now)
	event.Tier = tierID
	event.Amount = price

	if err := f.store.CreateTier(ctx, config, event); err != nil {
		return nil, err
	}

	f.publish(ctx, event)
	return &domain.OperationResult{Event: event}, nil
}

// ListTiers returns the read views of all registered tiers
func (f *Flow) ListTiers(ctx context.Context) ([]*TierInfo, error) {
	tiers, err := f.store.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]*TierInfo, 0, len(tiers))
	for _, config := range tiers {
		infos = append(infos, tierInfo(config))
	}
	return infos, nil
}

// PurchaseTier sells one unit of a tier to the caller: the price moves to the
// treasury and a holder record is minted. One purchase per (holder, tier).
func (f *Flow) PurchaseTier(ctx context.Context, caller domain.Address, tierID domain.Tier) (*domain.OperationResult, error) {
	pool, err := f.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if pool.Paused {
		return nil, domain.ErrPoolPaused
	}
	caller, err = normalizeCaller(caller)
	if err != nil {
		return nil, err
	}
	if !domain.IsValidTier(tierID) {
		return nil, domain.ErrInvalidTier
	}

	config, err := f.store.GetTier(ctx, tierID)
	if err != nil {
		return nil, err
	}
	if config == nil {
		return nil, domain.ErrInvalidTier
	}
	if !config.Active {
		return nil, domain.ErrTierNotActive
	}
	if config.CurrentSupply >= config.MaxSupply {
		return nil, domain.ErrSoldOut
	}

	existing, err := f.store.GetHolderRecord(ctx, caller, tierID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrAlreadyOwned
	}

	// Authoritative balance read; the store re-checks inside the commit
	balance, err := f.store.GetBalance(ctx, caller, pool.ReferenceAsset)
	if err != nil {
		return nil, err
	}
	if balance < config.Price {
		return nil, domain.ErrInsufficientFunds
	}

	now := f.clock.Now().UTC()
	holder := &schema.HolderRecord{
		RecordAddress: string(domain.DeriveAddress(caller, domain.PurposeHolder, tierID.String())),
		Holder:        string(caller),
		TierID:        uint8(tierID),
		PricePaid:     config.Price,
		PurchasedAt:   now,
	}

	transfer := domain.Transfer{
		From:   caller,
		To:     domain.Address(pool.TreasuryAddress),
		Amount: config.Price,
	}

	event := f.newEvent(domain.EventTypeTierPurchased, caller, now)
	event.Tier = tierID
	event.Amount = config.Price

	if err := f.store.ApplyTierPurchase(ctx, store.ApplyTierPurchaseInput{
		Holder:   holder,
		Transfer: transfer,
		Asset:    pool.ReferenceAsset,
		Event:    event,
	}); err != nil {
		return nil, err
	}

	f.publish(ctx, event)
	return &domain.OperationResult{
		Transfers: []domain.Transfer{transfer},
		Event:     event,
	}, nil
}

// VerifyHolder checks that the caller holds a purchased tier and that the
// holder record sits at its canonical address
func (f *Flow) VerifyHolder(ctx context.Context, caller domain.Address, tierID domain.Tier) (*HolderInfo, error) {
	caller, err := normalizeCaller(caller)
	if err != nil {
		return nil, err
	}
	if !domain.IsValidTier(tierID) {
		return nil, domain.ErrInvalidTier
	}

	record, err := f.store.GetHolderRecord(ctx, caller, tierID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrRecordNotFound
	}

	rec := validator.Record{
		Address:     domain.Address(record.RecordAddress),
		Owner:       domain.Address(record.Holder),
		Salt:        tierID.String(),
		Initialized: true,
	}
	if err := validator.OwnedRecord(rec, caller, domain.PurposeHolder); err != nil {
		return nil, err
	}

	return &HolderInfo{
		Holder:      domain.Address(record.Holder),
		TierID:      domain.Tier(record.TierID),
		PricePaid:   record.PricePaid,
		PurchasedAt: record.PurchasedAt,
	}, nil
}

// AccessLevel returns the highest tier among the caller's purchased holdings,
// TierNone when nothing is held
func (f *Flow) AccessLevel(ctx context.Context, caller domain.Address) (domain.Tier, error) {
	caller, err := normalizeCaller(caller)
	if err != nil {
		return domain.TierNone, err
	}

	records, err := f.store.GetHolderRecords(ctx, caller)
	if err != nil {
		return domain.TierNone, err
	}

	highest := domain.TierNone
	for _, record := range records {
		if domain.Tier(record.TierID) > highest {
			highest = domain.Tier(record.TierID)
		}
	}
	return highest, nil
}

// SetTierActive flips a tier's purchase gate. Authority only.
func (f *Flow) SetTierActive(ctx context.Context, caller domain.Address, tierID domain.Tier, active bool) (*domain.OperationResult, error) {
	pool, err := f.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.Admin(caller, domain.Address(pool.Authority)); err != nil {
		return nil, err
	}

	now := f.clock.Now().UTC()
	event := f.newEvent(domain.EventTypeTierUpdated, domain.Address(pool.Authority), now)
	event.Tier = tierID

	if err := f.store.SetTierActive(ctx, tierID, active, event); err != nil {
		return nil, err
	}

	f.publish(ctx, event)
	return &domain.OperationResult{Event: event}, nil
}

// UpdateTierPrice changes a tier's price for future purchases. Authority
// only. Existing holder records keep the price they paid.
func (f *Flow) UpdateTierPrice(ctx context.Context, caller domain.Address, tierID domain.Tier, price uint64) (*domain.OperationResult, error) {
	pool, err := f.requirePool(ctx)
	if err != nil {
		return nil, err
	}
	if err := validator.Admin(caller, domain.Address(pool.Authority)); err != nil {
		return nil, err
	}
	if price == 0 {
		return nil, domain.ErrInvalidAmount
	}

	now := f.clock.Now().UTC()
	event := f.newEvent(domain.EventTypeTierUpdated, domain.Address(pool.Authority), now)
	event.Tier = tierID
	event.Amount = price

	if err := f.store.UpdateTierPrice(ctx, tierID, price, event); err != nil {
		return nil, err
	}

	f.publish(ctx, event)
	return &domain.OperationResult{Event: event}, nil
}

// requirePool reads the pool record, failing when the deployment has not been
// initialized
func (f *Flow) requirePool(ctx context.Context) (*schema.Pool, error) {
	pool, err := f.store.GetPool(ctx)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, domain.ErrNotInitialized
	}
	return pool, nil
}

// ownedRecord reads the caller's access record and checks its canonical
// address
func (f *Flow) ownedRecord(ctx context.Context, caller domain.Address) (*schema.AccessRecord, error) {
	record, err := f.store.GetAccessRecord(ctx, caller)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, domain.ErrNotInitialized
	}

	rec := validator.Record{
		Address:     domain.Address(record.RecordAddress),
		Owner:       domain.Address(record.Owner),
		Salt:        "",
		Initialized: true,
	}
	if err := validator.OwnedRecord(rec, caller, domain.PurposeAccess); err != nil {
		return nil, err
	}
	return record, nil
}

func tierInfo(config *schema.TierConfig) *TierInfo {
	return &TierInfo{
		TierID:        domain.Tier(config.TierID),
		Name:          config.Name,
		Price:         config.Price,
		MaxSupply:     config.MaxSupply,
		CurrentSupply: config.CurrentSupply,
		MetadataURI:   config.MetadataURI,
		Active:        config.Active,
	}
}

func normalizeCaller(caller domain.Address) (domain.Address, error) {
	if !domain.IsValidAddress(caller) {
		return "", domain.ErrIdentityMismatch
	}
	return domain.NormalizeAddress(caller), nil
}

// newEvent builds the common event envelope
func (f *Flow) newEvent(eventType domain.EventType, owner domain.Address, now time.Time) domain.LedgerEvent {
	return domain.LedgerEvent{
		EventID:   ulid.Make().String(),
		EventType: eventType,
		Owner:     owner,
		Timestamp: now,
	}
}

// publish broadcasts a committed event, logging instead of failing when the
// broker is unreachable
func (f *Flow) publish(ctx context.Context, event domain.LedgerEvent) {
	if f.publisher == nil {
		return
	}
	if err := f.publisher.PublishEvent(ctx, &event); err != nil {
		logger.WarnCtx(ctx, "failed to publish event",
			zap.String("event_id", event.EventID),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
	}
}
