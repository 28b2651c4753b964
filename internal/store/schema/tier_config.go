package schema

import (
	"time"
)

// TierConfig represents the tier_configs table - one row per purchasable tier
type TierConfig struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// TierID is the tier number (1=bronze, 2=silver, 3=gold)
	TierID uint8 `gorm:"column:tier_id;not null;uniqueIndex"`
	// Name is the tier display name, max 32 chars
	Name string `gorm:"column:name;not null;type:varchar(32)"`
	// Price is the purchase price in reference asset base units
	Price uint64 `gorm:"column:price;not null;type:numeric(20,0)"`
	// MaxSupply caps how many holders the tier can have
	MaxSupply uint64 `gorm:"column:max_supply;not null"`
	// CurrentSupply counts holders so far
	CurrentSupply uint64 `gorm:"column:current_supply;not null;default:0"`
	// MetadataURI points at the tier's external metadata, max 200 chars
	MetadataURI string `gorm:"column:metadata_uri;not null;type:varchar(200)"`
	// Active gates purchases
	Active bool `gorm:"column:active;not null;default:true"`
	// CreatedAt is the timestamp when this row was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this row was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TierConfig model
func (TierConfig) TableName() string {
	return "tier_configs"
}
