package domain

import "time"

// EventType identifies the kind of ledger event
type EventType string

const (
	EventTypeStaked            EventType = "staked"
	EventTypeClaimed           EventType = "claimed"
	EventTypeUnstaked          EventType = "unstaked"
	EventTypeEmergencyUnstaked EventType = "emergency_unstaked"
	EventTypePoolInitialized   EventType = "pool_initialized"
	EventTypePoolPaused        EventType = "pool_paused"
	EventTypeRatesUpdated      EventType = "rates_updated"
	EventTypeRewardsFunded     EventType = "rewards_funded"
	EventTypeAccessInitialized EventType = "access_initialized"
	EventTypeTierVerified      EventType = "tier_verified"
	EventTypeTierCreated       EventType = "tier_created"
	EventTypeTierPurchased     EventType = "tier_purchased"
	EventTypeTierUpdated       EventType = "tier_updated"
)

// LedgerEvent is the normalized event descriptor emitted after every committed
// mutation. The core persists it alongside the mutation and hands it to the
// publisher; it does not format or transmit anything beyond that.
type LedgerEvent struct {
	EventID   string    `json:"event_id"` // ULID, time-sortable
	EventType EventType `json:"event_type"`
	Owner     Address   `json:"owner"`
	Amount    uint64    `json:"amount,omitempty"`
	Reward    uint64    `json:"reward,omitempty"`
	Forfeited uint64    `json:"forfeited,omitempty"`
	LockClass LockClass `json:"lock_class,omitempty"`
	Tier      Tier      `json:"tier,omitempty"`
	Position  Address   `json:"position,omitempty"`
	UnlocksAt *int64    `json:"unlocks_at,omitempty"` // unix seconds
	Timestamp time.Time `json:"timestamp"`
}

// OperationResult is the success descriptor every mutating operation returns:
// the committed transfers plus the event recorded for external indexing.
type OperationResult struct {
	Transfers []Transfer  `json:"transfers,omitempty"`
	Event     LedgerEvent `json:"event"`
}
