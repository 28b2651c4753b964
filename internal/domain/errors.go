package domain

import "errors"

var (
	// ErrUnauthorized is returned when the caller is not the identity an
	// operation requires
	ErrUnauthorized = errors.New("unauthorized")

	// ErrIdentityMismatch is returned when a record's stored owner or derived
	// address does not match the recomputed expectation. Treated as a
	// potential spoofing attempt and never auto-repaired.
	ErrIdentityMismatch = errors.New("record identity mismatch")

	// ErrNotInitialized is returned when an operation references a record
	// that has not been created yet
	ErrNotInitialized = errors.New("record not initialized")

	// ErrRecordNotFound is returned when a referenced record does not exist
	ErrRecordNotFound = errors.New("record not found")

	// ErrInvalidAmount is returned when an amount parameter is zero
	ErrInvalidAmount = errors.New("invalid amount: must be greater than 0")

	// ErrInvalidLockClass is returned when a stake uses an unsupported lock period
	ErrInvalidLockClass = errors.New("invalid lock class: must be 30, 60, or 90 days")

	// ErrInvalidTier is returned when a tier ID is outside 1..3
	ErrInvalidTier = errors.New("invalid tier: must be 1 (bronze), 2 (silver), or 3 (gold)")

	// ErrNameTooLong is returned when a tier name exceeds the length cap
	ErrNameTooLong = errors.New("tier name too long")

	// ErrURITooLong is returned when a metadata URI exceeds the length cap
	ErrURITooLong = errors.New("metadata URI too long")

	// ErrPoolPaused is returned when a user operation hits a paused pool
	ErrPoolPaused = errors.New("pool is paused")

	// ErrPoolExists is returned when initializing an already-initialized pool
	ErrPoolExists = errors.New("pool already initialized")

	// ErrRecordExists is returned when creating a record that already exists
	ErrRecordExists = errors.New("record already exists")

	// ErrStillLocked is returned when unstaking before the unlock timestamp
	ErrStillLocked = errors.New("tokens are still locked")

	// ErrPositionClosed is returned when mutating a closed position
	ErrPositionClosed = errors.New("position already closed")

	// ErrPositionActive is returned in the single-position deployment when
	// the owner already has an open position
	ErrPositionActive = errors.New("owner already has an active position")

	// ErrNothingToClaim is returned when a claim finds no reward due yet.
	// Expected terminal outcome, not a fault.
	ErrNothingToClaim = errors.New("nothing to claim")

	// ErrTierNotActive is returned when purchasing from a deactivated tier
	ErrTierNotActive = errors.New("tier is not active")

	// ErrSoldOut is returned when a tier has no supply left
	ErrSoldOut = errors.New("tier is sold out")

	// ErrAlreadyOwned is returned on a second purchase for the same
	// (holder, tier) pair
	ErrAlreadyOwned = errors.New("holder already owns this tier")

	// ErrInsufficientFunds is returned when a required transfer cannot be
	// covered by the source balance. No partial transfer is ever applied.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrMathOverflow is returned when reward or aggregate arithmetic would
	// overflow. Never silently wrapped.
	ErrMathOverflow = errors.New("math overflow")

	// ErrUnsupportedPolicy is returned when an operation is invoked under a
	// reward policy that does not support it
	ErrUnsupportedPolicy = errors.New("operation not supported under configured reward policy")
)
