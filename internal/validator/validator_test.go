package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dregan-protocol/staking-core/internal/domain"
)

var (
	owner    = domain.Address("0x396343362be2A4dA1cE0C1C210945346fb82Aa49")
	stranger = domain.Address("0x742d35Cc6634C0532925a3b844Bc9e7595f0bEbb")
)

func canonicalRecord(o domain.Address, purpose domain.Purpose, salt string) Record {
	return Record{
		Address:     domain.DeriveAddress(o, purpose, salt),
		Owner:       o,
		Salt:        salt,
		Initialized: true,
	}
}

func TestOwned(t *testing.T) {
	rec := canonicalRecord(owner, domain.PurposeAccess, "")

	t.Run("owner passes", func(t *testing.T) {
		assert.NoError(t, Owned(rec, owner))
	})

	t.Run("case difference still passes", func(t *testing.T) {
		assert.NoError(t, Owned(rec, domain.Address("0x396343362BE2A4DA1CE0C1C210945346FB82AA49")))
	})

	t.Run("stranger rejected", func(t *testing.T) {
		assert.ErrorIs(t, Owned(rec, stranger), domain.ErrUnauthorized)
	})

	t.Run("uninitialized rejected first", func(t *testing.T) {
		uninit := rec
		uninit.Initialized = false
		assert.ErrorIs(t, Owned(uninit, owner), domain.ErrNotInitialized)
	})
}

func TestCanonical(t *testing.T) {
	t.Run("canonical address passes", func(t *testing.T) {
		rec := canonicalRecord(owner, domain.PurposeStake, "1700000000")
		assert.NoError(t, Canonical(rec, domain.PurposeStake))
	})

	t.Run("wrong address is a mismatch", func(t *testing.T) {
		rec := canonicalRecord(owner, domain.PurposeStake, "1700000000")
		rec.Address = domain.DeriveAddress(stranger, domain.PurposeStake, "1700000000")
		assert.ErrorIs(t, Canonical(rec, domain.PurposeStake), domain.ErrIdentityMismatch)
	})

	t.Run("wrong purpose is a mismatch", func(t *testing.T) {
		rec := canonicalRecord(owner, domain.PurposeStake, "s")
		assert.ErrorIs(t, Canonical(rec, domain.PurposeHolder), domain.ErrIdentityMismatch)
	})

	t.Run("wrong salt is a mismatch", func(t *testing.T) {
		rec := canonicalRecord(owner, domain.PurposeStake, "1700000000")
		rec.Salt = "1700000001"
		assert.ErrorIs(t, Canonical(rec, domain.PurposeStake), domain.ErrIdentityMismatch)
	})
}

func TestOwnedRecord(t *testing.T) {
	rec := canonicalRecord(owner, domain.PurposeAccess, "")

	assert.NoError(t, OwnedRecord(rec, owner, domain.PurposeAccess))
	assert.ErrorIs(t, OwnedRecord(rec, stranger, domain.PurposeAccess), domain.ErrUnauthorized)

	spoofed := rec
	spoofed.Address = domain.DeriveAddress(owner, domain.PurposeAccess, "other")
	assert.ErrorIs(t, OwnedRecord(spoofed, owner, domain.PurposeAccess), domain.ErrIdentityMismatch)
}

func TestAdmin(t *testing.T) {
	assert.NoError(t, Admin(owner, owner))
	assert.ErrorIs(t, Admin(stranger, owner), domain.ErrUnauthorized)
	assert.ErrorIs(t, Admin(owner, ""), domain.ErrNotInitialized)
}

func TestBalanceAccount(t *testing.T) {
	assert.NoError(t, BalanceAccount(owner, "DRGN", owner, "DRGN"))
	assert.ErrorIs(t, BalanceAccount(stranger, "DRGN", owner, "DRGN"), domain.ErrIdentityMismatch)
	assert.ErrorIs(t, BalanceAccount(owner, "OTHER", owner, "DRGN"), domain.ErrIdentityMismatch)
}
