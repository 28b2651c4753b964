package schema

import (
	"time"
)

// AccessRecord represents the access_records table - one row per owner,
// holding the tier last derived from the owner's authoritative balance.
type AccessRecord struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// RecordAddress is the canonical address derived from (owner, access)
	RecordAddress string `gorm:"column:record_address;not null;uniqueIndex;type:text"`
	// Owner is the identity the record belongs to
	Owner string `gorm:"column:owner;not null;uniqueIndex;type:text"`
	// CurrentTier is the tier derived at the last verification
	CurrentTier uint8 `gorm:"column:current_tier;not null;default:0"`
	// LastVerifiedBalance is the authoritative balance read at verification.
	// Never sourced from the caller.
	LastVerifiedBalance uint64 `gorm:"column:last_verified_balance;not null;default:0;type:numeric(20,0)"`
	// VerifiedAt is when the tier was last re-derived
	VerifiedAt time.Time `gorm:"column:verified_at;not null;type:timestamptz;index:idx_access_records_verified_at"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the AccessRecord model
func (AccessRecord) TableName() string {
	return "access_records"
}
