package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a ledger account or record identity in 0x-hex form.
// All addresses are stored and compared in their EIP-55 checksummed form.
type Address string

// IsValidAddress checks if an address is a well-formed hex address
func IsValidAddress(address Address) bool {
	return common.IsHexAddress(string(address))
}

// NormalizeAddress normalizes an address to its checksummed form
func NormalizeAddress(address Address) Address {
	return Address(common.HexToAddress(string(address)).String())
}

// String returns the string representation of the address
func (a Address) String() string {
	return string(a)
}

// LockClass identifies one of the fixed (duration, rate) pairs a stake
// position can be opened under.
type LockClass uint8

const (
	Lock30 LockClass = 30
	Lock60 LockClass = 60
	Lock90 LockClass = 90
)

// IsValidLockClass checks if a lock class is one of the supported durations
func IsValidLockClass(class LockClass) bool {
	return class == Lock30 || class == Lock60 || class == Lock90
}

// Days returns the lock duration in days
func (c LockClass) Days() uint64 {
	return uint64(c)
}

// Duration returns the lock duration as a time.Duration
func (c LockClass) Duration() time.Duration {
	return time.Duration(c) * 24 * time.Hour
}

// LockClasses returns the fixed set of supported lock classes in ascending order
func LockClasses() []LockClass {
	return []LockClass{Lock30, Lock60, Lock90}
}

// RateTable maps a lock class to its annual rate in basis points (10000 = 100%)
type RateTable map[LockClass]uint16

// Rate returns the basis-point rate for a lock class
func (t RateTable) Rate(class LockClass) (uint16, bool) {
	rate, ok := t[class]
	return rate, ok
}

// Tier is a discrete capability level derived from a held balance
type Tier uint8

const (
	TierNone   Tier = 0
	TierBronze Tier = 1
	TierSilver Tier = 2
	TierGold   Tier = 3
)

// IsValidTier checks if a tier ID identifies a purchasable tier (1..3)
func IsValidTier(tier Tier) bool {
	return tier >= TierBronze && tier <= TierGold
}

// String returns the tier name
func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	default:
		return "none"
	}
}

// RewardPolicy selects how a position's reward accrues. Exactly one policy is
// active per deployment; the two are not interchangeable.
type RewardPolicy string

const (
	// RewardPolicyFixed freezes the full-term reward into the position at
	// stake time; elapsed time only gates when it becomes claimable.
	RewardPolicyFixed RewardPolicy = "fixed"
	// RewardPolicyContinuous recomputes the reward owed on every claim from
	// the time elapsed since the position opened.
	RewardPolicyContinuous RewardPolicy = "continuous"
)

// IsValidRewardPolicy checks if a reward policy is supported
func IsValidRewardPolicy(policy RewardPolicy) bool {
	return policy == RewardPolicyFixed || policy == RewardPolicyContinuous
}

const (
	// BasisPointDenominator is the rate denominator (10000 = 100%)
	BasisPointDenominator = 10_000
	// DaysPerYear is the accrual year length in days
	DaysPerYear = 365
	// SecondsPerYear is the accrual year length in seconds
	SecondsPerYear = DaysPerYear * 24 * 60 * 60

	// MaxTierNameLength caps tier display names
	MaxTierNameLength = 32
	// MaxMetadataURILength caps tier metadata URIs
	MaxMetadataURILength = 200
)

// Transfer is an instructed balance movement between two accounts, denominated
// in the deployment's reference asset. It either fully succeeds or fully fails
// together with the record mutation it belongs to.
type Transfer struct {
	From   Address `json:"from"`
	To     Address `json:"to"`
	Amount uint64  `json:"amount"`
}
