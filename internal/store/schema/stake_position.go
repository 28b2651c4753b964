package schema

import (
	"time"
)

// CloseReason records why a position was closed
type CloseReason string

const (
	CloseReasonUnstaked  CloseReason = "unstaked"
	CloseReasonEmergency CloseReason = "emergency"
)

// StakePosition represents the stake_positions table - one row per locked
// position. Rows are never deleted; a closed position is retained as an
// audit record and accepts no further mutation.
type StakePosition struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// RecordAddress is the canonical address derived from (owner, stake, openedAt)
	RecordAddress string `gorm:"column:record_address;not null;uniqueIndex;type:text"`
	// Owner is the identity the position belongs to
	Owner string `gorm:"column:owner;not null;type:text;index:idx_stake_positions_owner"`
	// Principal is the locked amount in asset base units
	Principal uint64 `gorm:"column:principal;not null;type:numeric(20,0)"`
	// LockDays identifies the lock class the position was opened under
	LockDays uint8 `gorm:"column:lock_days;not null"`
	// RateBps snapshots the basis-point rate at stake time so later admin
	// rate changes are not retroactive
	RateBps uint16 `gorm:"column:rate_bps;not null"`
	// OpenedAt is when the position was opened
	OpenedAt time.Time `gorm:"column:opened_at;not null;type:timestamptz"`
	// UnlocksAt is OpenedAt plus the lock class duration
	UnlocksAt time.Time `gorm:"column:unlocks_at;not null;type:timestamptz"`
	// RewardAmount is the full-term reward frozen at stake time (fixed policy)
	RewardAmount uint64 `gorm:"column:reward_amount;not null;default:0;type:numeric(20,0)"`
	// ClaimedReward accumulates reward already paid out (continuous policy)
	ClaimedReward uint64 `gorm:"column:claimed_reward;not null;default:0;type:numeric(20,0)"`
	// Closed marks the position terminal
	Closed bool `gorm:"column:closed;not null;default:false"`
	// CloseReason records how the position was closed, empty while open
	CloseReason CloseReason `gorm:"column:close_reason;type:text"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the StakePosition model
func (StakePosition) TableName() string {
	return "stake_positions"
}

// Salt returns the derivation salt the record address was computed with
func (p *StakePosition) Salt() string {
	return p.OpenedAt.UTC().Format(time.RFC3339Nano)
}
