package schema

import (
	"time"
)

// Balance represents the balances table - the authoritative holding of the
// reference asset per account. All transfers debit and credit these rows
// inside the same transaction as the record mutation they belong to.
type Balance struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Account is the ledger address holding the balance
	Account string `gorm:"column:account;not null;type:text;uniqueIndex:idx_balances_account_asset,priority:1"`
	// Asset identifies the fungible asset
	Asset string `gorm:"column:asset;not null;type:text;uniqueIndex:idx_balances_account_asset,priority:2"`
	// Amount is the held quantity in base units
	Amount uint64 `gorm:"column:amount;not null;default:0;type:numeric(20,0)"`
	// CreatedAt is the timestamp when this balance was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this balance was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Balance model
func (Balance) TableName() string {
	return "balances"
}
