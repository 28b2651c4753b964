// Package reward computes interest owed for locked stake positions.
//
// All intermediate arithmetic runs in 256-bit integers so realistic
// principal/rate/duration combinations can never wrap; a result that does not
// fit a uint64 fails closed with domain.ErrMathOverflow.
package reward

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/dregan-protocol/staking-core/internal/domain"
)

// FixedReward computes the full-term reward frozen into a position at stake
// time under the fixed policy:
//
//	floor(principal * rateBps * lockDays / (10000 * 365))
func FixedReward(principal uint64, rateBps uint16, class domain.LockClass) (uint64, error) {
	return mulDiv(principal, uint64(rateBps), class.Days(),
		domain.BasisPointDenominator*domain.DaysPerYear)
}

// Accrue computes the reward owed after elapsed time under the continuous
// policy:
//
//	floor(principal * rateBps * elapsedSeconds / (10000 * secondsPerYear))
//
// A negative elapsed duration (clock skew against openedAt) is clamped to
// zero rather than producing a negative reward.
func Accrue(principal uint64, rateBps uint16, elapsed time.Duration) (uint64, error) {
	if elapsed < 0 {
		elapsed = 0
	}
	return mulDiv(principal, uint64(rateBps), uint64(elapsed/time.Second),
		domain.BasisPointDenominator*domain.SecondsPerYear)
}

// Elapsed returns the accrual window for a position: time since openedAt,
// clamped below at zero and above at the lock expiry so lifetime owed never
// exceeds the full-term total.
func Elapsed(now, openedAt, unlocksAt time.Time) time.Duration {
	if now.After(unlocksAt) {
		now = unlocksAt
	}
	if now.Before(openedAt) {
		return 0
	}
	return now.Sub(openedAt)
}

// mulDiv computes floor(a*b*c/d) with 256-bit intermediates
func mulDiv(a, b, c, d uint64) (uint64, error) {
	product := uint256.NewInt(a)
	product.Mul(product, uint256.NewInt(b))
	product.Mul(product, uint256.NewInt(c))
	product.Div(product, uint256.NewInt(d))

	if !product.IsUint64() {
		return 0, domain.ErrMathOverflow
	}
	return product.Uint64(), nil
}
