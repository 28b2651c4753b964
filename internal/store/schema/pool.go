package schema

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/dregan-protocol/staking-core/internal/domain"
)

// Pool represents the pools table - the per-deployment config/aggregate record.
// There is exactly one row per deployment; admin mutations are gated on the
// authority identity and the row is never deleted.
type Pool struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// RecordAddress is the canonical derived address of the pool record
	RecordAddress string `gorm:"column:record_address;not null;uniqueIndex;type:text"`
	// Authority is the single identity permitted to perform admin mutations
	Authority string `gorm:"column:authority;not null;type:text"`
	// ReferenceAsset is the fungible asset being staked and measured
	ReferenceAsset string `gorm:"column:reference_asset;not null;type:text"`
	// VaultAddress custodies staked principal
	VaultAddress string `gorm:"column:vault_address;not null;type:text"`
	// RewardVaultAddress funds reward payouts
	RewardVaultAddress string `gorm:"column:reward_vault_address;not null;type:text"`
	// TreasuryAddress receives tier purchase payments
	TreasuryAddress string `gorm:"column:treasury_address;not null;type:text"`
	// Paused blocks all non-admin operations while true
	Paused bool `gorm:"column:paused;not null;default:false"`
	// RateTable maps lock-duration class to basis-point annual rate
	RateTable datatypes.JSON `gorm:"column:rate_table;not null;type:jsonb"`
	// TotalStaked is the sum of principal over all open positions
	TotalStaked uint64 `gorm:"column:total_staked;not null;default:0;type:numeric(20,0)"`
	// TotalStakers counts currently open positions
	TotalStakers uint64 `gorm:"column:total_stakers;not null;default:0"`
	// TotalRewardsDistributed accumulates every reward ever paid out
	TotalRewardsDistributed uint64 `gorm:"column:total_rewards_distributed;not null;default:0;type:numeric(20,0)"`
	// TotalMinted counts tier purchases across all tiers
	TotalMinted uint64 `gorm:"column:total_minted;not null;default:0"`
	// CreatedAt is the timestamp when the pool was initialized
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when the pool was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Pool model
func (Pool) TableName() string {
	return "pools"
}

// Rates decodes the stored rate table
func (p *Pool) Rates() (domain.RateTable, error) {
	var raw map[string]uint16
	if err := json.Unmarshal(p.RateTable, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode rate table: %w", err)
	}

	table := make(domain.RateTable, len(raw))
	for key, rate := range raw {
		var days uint8
		if _, err := fmt.Sscanf(key, "%d", &days); err != nil {
			return nil, fmt.Errorf("failed to decode rate table key %q: %w", key, err)
		}
		table[domain.LockClass(days)] = rate
	}
	return table, nil
}

// EncodeRateTable encodes a rate table for storage
func EncodeRateTable(table domain.RateTable) (datatypes.JSON, error) {
	raw := make(map[string]uint16, len(table))
	for class, rate := range table {
		raw[fmt.Sprintf("%d", class.Days())] = rate
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rate table: %w", err)
	}
	return data, nil
}
