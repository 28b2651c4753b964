// Package validator verifies record identity and authority before any
// balance-affecting mutation proceeds.
//
// Every owner-scoped operation runs the same sequence: the record must be
// initialized, its stored owner must equal the authenticated caller, and its
// stored address must equal the canonical address recomputed from
// (owner, purpose, salt). A mismatch on any step aborts the operation; a
// derived-address mismatch in particular is treated as a spoofing attempt
// and never silently corrected.
package validator

import (
	"github.com/dregan-protocol/staking-core/internal/domain"
)

// Record is the identity view of a stored record that validation operates on
type Record struct {
	Address     domain.Address
	Owner       domain.Address
	Salt        string
	Initialized bool
}

// Owned checks that an initialized record is owned by the caller
func Owned(rec Record, caller domain.Address) error {
	if !rec.Initialized {
		return domain.ErrNotInitialized
	}
	if domain.NormalizeAddress(rec.Owner) != domain.NormalizeAddress(caller) {
		return domain.ErrUnauthorized
	}
	return nil
}

// Canonical checks that the record sits at the address derived from its own
// owner, the purpose tag, and its salt
func Canonical(rec Record, purpose domain.Purpose) error {
	expected := domain.DeriveAddress(rec.Owner, purpose, rec.Salt)
	if domain.NormalizeAddress(rec.Address) != expected {
		return domain.ErrIdentityMismatch
	}
	return nil
}

// OwnedRecord runs the full owner-scoped sequence: initialized, owned by the
// caller, and at its canonical address
func OwnedRecord(rec Record, caller domain.Address, purpose domain.Purpose) error {
	if err := Owned(rec, caller); err != nil {
		return err
	}
	return Canonical(rec, purpose)
}

// Admin checks that the caller is the configured pool authority
func Admin(caller, authority domain.Address) error {
	if authority == "" {
		return domain.ErrNotInitialized
	}
	if domain.NormalizeAddress(caller) != domain.NormalizeAddress(authority) {
		return domain.ErrUnauthorized
	}
	return nil
}

// BalanceAccount checks that a referenced balance row belongs to the caller
// and is denominated in the configured reference asset. The balance value
// itself is always read from the store, never taken from the caller.
func BalanceAccount(account domain.Address, asset string, caller domain.Address, referenceAsset string) error {
	if domain.NormalizeAddress(account) != domain.NormalizeAddress(caller) {
		return domain.ErrIdentityMismatch
	}
	if asset != referenceAsset {
		return domain.ErrIdentityMismatch
	}
	return nil
}
