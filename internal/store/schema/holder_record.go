package schema

import (
	"time"
)

// HolderRecord represents the holder_records table - proof of a tier
// purchase. Created exactly once per (holder, tier) pair; a second purchase
// for the same pair must fail.
type HolderRecord struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// RecordAddress is the canonical address derived from (holder, holder-purpose, tierID)
	RecordAddress string `gorm:"column:record_address;not null;uniqueIndex;type:text"`
	// Holder is the identity that purchased the tier
	Holder string `gorm:"column:holder;not null;type:text;uniqueIndex:idx_holder_records_holder_tier,priority:1"`
	// TierID is the purchased tier
	TierID uint8 `gorm:"column:tier_id;not null;uniqueIndex:idx_holder_records_holder_tier,priority:2"`
	// PricePaid is the price at purchase time
	PricePaid uint64 `gorm:"column:price_paid;not null;type:numeric(20,0)"`
	// PurchasedAt is when the purchase was committed
	PurchasedAt time.Time `gorm:"column:purchased_at;not null;type:timestamptz"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the HolderRecord model
func (HolderRecord) TableName() string {
	return "holder_records"
}
