// Package tier maps held balances onto discrete access tiers.
package tier

import (
	"fmt"

	"github.com/dregan-protocol/staking-core/internal/domain"
)

// Thresholds holds the ascending balance cutoffs for each tier. The values
// vary by deployment generation and come from configuration; the comparison
// rule does not.
type Thresholds struct {
	Bronze uint64
	Silver uint64
	Gold   uint64
}

// DefaultThresholds returns the current deployment generation's cutoffs
func DefaultThresholds() Thresholds {
	return Thresholds{Bronze: 100, Silver: 500, Gold: 2000}
}

// Validate checks that the thresholds are non-zero and strictly ascending
func (t Thresholds) Validate() error {
	if t.Bronze == 0 {
		return fmt.Errorf("bronze threshold must be greater than 0")
	}
	if t.Silver <= t.Bronze || t.Gold <= t.Silver {
		return fmt.Errorf("thresholds must be strictly ascending: bronze=%d silver=%d gold=%d",
			t.Bronze, t.Silver, t.Gold)
	}
	return nil
}

// Classify maps a balance to a tier. Highest tier first, boundary inclusive
// on the upper side, default none. Pure and total: no failure mode.
func (t Thresholds) Classify(balance uint64) domain.Tier {
	switch {
	case balance >= t.Gold:
		return domain.TierGold
	case balance >= t.Silver:
		return domain.TierSilver
	case balance >= t.Bronze:
		return domain.TierBronze
	default:
		return domain.TierNone
	}
}
