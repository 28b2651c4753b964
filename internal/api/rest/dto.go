package rest

// initializePoolRequest is the request body for initializing the pool
type initializePoolRequest struct {
	Treasury       string            `json:"treasury" binding:"required"`
	ReferenceAsset string            `json:"reference_asset" binding:"required"`
	Rates          map[string]uint16 `json:"rates" binding:"required"`
}

// setPausedRequest is the request body for flipping the pool pause flag
type setPausedRequest struct {
	Paused *bool `json:"paused" binding:"required"`
}

// updateRatesRequest is the request body for replacing the rate table
type updateRatesRequest struct {
	Rates map[string]uint16 `json:"rates" binding:"required"`
}

// fundRewardsRequest is the request body for funding the reward vault
type fundRewardsRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

// stakeRequest is the request body for opening a stake position
type stakeRequest struct {
	Amount   uint64 `json:"amount" binding:"required"`
	LockDays uint8  `json:"lock_days" binding:"required"`
}

// checkTierRequest is the request body for an access tier check
type checkTierRequest struct {
	RequiredTier uint8 `json:"required_tier" binding:"required"`
}

// createTierRequest is the request body for registering a purchasable tier
type createTierRequest struct {
	TierID      uint8  `json:"tier_id" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Price       uint64 `json:"price" binding:"required"`
	MaxSupply   uint64 `json:"max_supply" binding:"required"`
	MetadataURI string `json:"metadata_uri"`
}

// updateTierRequest is the request body for updating a tier. At least one
// field must be set.
type updateTierRequest struct {
	Active *bool   `json:"active"`
	Price  *uint64 `json:"price"`
}
