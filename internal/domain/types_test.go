package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidLockClass(t *testing.T) {
	tests := []struct {
		name     string
		class    LockClass
		expected bool
	}{
		{
			name:     "valid 30 day class",
			class:    Lock30,
			expected: true,
		},
		{
			name:     "valid 60 day class",
			class:    Lock60,
			expected: true,
		},
		{
			name:     "valid 90 day class",
			class:    Lock90,
			expected: true,
		},
		{
			name:     "invalid zero class",
			class:    LockClass(0),
			expected: false,
		},
		{
			name:     "invalid 45 day class",
			class:    LockClass(45),
			expected: false,
		},
		{
			name:     "invalid 180 day class",
			class:    LockClass(180),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsValidLockClass(tt.class))
		})
	}
}

func TestLockClassDuration(t *testing.T) {
	assert.Equal(t, uint64(30), Lock30.Days())
	assert.Equal(t, uint64(90), Lock90.Days())
	assert.Equal(t, Lock60.Duration(), Lock30.Duration()*2)
}

func TestIsValidTier(t *testing.T) {
	assert.False(t, IsValidTier(TierNone))
	assert.True(t, IsValidTier(TierBronze))
	assert.True(t, IsValidTier(TierSilver))
	assert.True(t, IsValidTier(TierGold))
	assert.False(t, IsValidTier(Tier(4)))
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "none", TierNone.String())
	assert.Equal(t, "bronze", TierBronze.String())
	assert.Equal(t, "silver", TierSilver.String())
	assert.Equal(t, "gold", TierGold.String())
	assert.Equal(t, "none", Tier(9).String())
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("0x396343362be2A4dA1cE0C1C210945346fb82Aa49"))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("not-an-address"))
	assert.False(t, IsValidAddress("0x1234"))
}

func TestNormalizeAddress(t *testing.T) {
	lower := Address("0x396343362be2a4da1ce0c1c210945346fb82aa49")
	upper := Address("0x396343362BE2A4DA1CE0C1C210945346FB82AA49")
	assert.Equal(t, NormalizeAddress(lower), NormalizeAddress(upper))
}

func TestRateTable(t *testing.T) {
	table := RateTable{Lock30: 1000, Lock60: 1500, Lock90: 2000}

	rate, ok := table.Rate(Lock60)
	assert.True(t, ok)
	assert.Equal(t, uint16(1500), rate)

	_, ok = table.Rate(LockClass(45))
	assert.False(t, ok)
}

func TestIsValidRewardPolicy(t *testing.T) {
	assert.True(t, IsValidRewardPolicy(RewardPolicyFixed))
	assert.True(t, IsValidRewardPolicy(RewardPolicyContinuous))
	assert.False(t, IsValidRewardPolicy(RewardPolicy("hybrid")))
}
