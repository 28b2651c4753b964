package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dregan-protocol/staking-core/internal/access"
	"github.com/dregan-protocol/staking-core/internal/api/middleware"
	"github.com/dregan-protocol/staking-core/internal/domain"
	"github.com/dregan-protocol/staking-core/internal/staking"
	"github.com/dregan-protocol/staking-core/internal/store"
)

// Handler defines the HTTP handlers for the ledger API
type Handler interface {
	// GetPool returns the pool status
	GetPool(c *gin.Context)
	// InitializePool creates the pool record with the caller as authority
	InitializePool(c *gin.Context)
	// SetPoolPaused flips the pool pause flag
	SetPoolPaused(c *gin.Context)
	// UpdateRates replaces the pool rate table
	UpdateRates(c *gin.Context)
	// FundRewards moves reference asset into the reward vault
	FundRewards(c *gin.Context)

	// CreateStake opens a stake position for the caller
	CreateStake(c *gin.Context)
	// ListStakes returns all the caller's positions
	ListStakes(c *gin.Context)
	// GetStake returns one of the caller's positions
	GetStake(c *gin.Context)
	// ClaimStake pays out the accrued reward on a position
	ClaimStake(c *gin.Context)
	// UnstakePosition closes an unlocked position
	UnstakePosition(c *gin.Context)
	// EmergencyUnstakePosition closes a position early, forfeiting the reward
	EmergencyUnstakePosition(c *gin.Context)

	// InitializeAccess creates the caller's access record
	InitializeAccess(c *gin.Context)
	// VerifyAccess re-derives the caller's tier from a fresh balance read
	VerifyAccess(c *gin.Context)
	// GetAccessStatus returns the caller's stored access record
	GetAccessStatus(c *gin.Context)
	// CheckAccessTier reports whether the caller meets a required tier
	CheckAccessTier(c *gin.Context)

	// ListTiers returns all registered purchasable tiers
	ListTiers(c *gin.Context)
	// CreateTier registers a purchasable tier
	CreateTier(c *gin.Context)
	// UpdateTier changes a tier's active flag or price
	UpdateTier(c *gin.Context)
	// PurchaseTier sells one unit of a tier to the caller
	PurchaseTier(c *gin.Context)
	// GetHolder verifies and returns the caller's holder record for a tier
	GetHolder(c *gin.Context)
	// GetAccessLevel returns the highest tier among the caller's holdings
	GetAccessLevel(c *gin.Context)

	// ListEvents pages through the caller's journal entries
	ListEvents(c *gin.Context)
}

type handler struct {
	engine *staking.Engine
	flow   *access.Flow
	store  store.Store
}

// NewHandler creates a new REST API handler
func NewHandler(engine *staking.Engine, flow *access.Flow, s store.Store) Handler {
	return &handler{
		engine: engine,
		flow:   flow,
		store:  s,
	}
}

// caller extracts the authenticated caller's address, responding with 403 when
// the token subject is missing or malformed
func caller(c *gin.Context) (domain.Address, bool) {
	addr, ok := middleware.CallerFromContext(c)
	if !ok {
		respondWithForbidden(c, "authenticated subject is not a valid address")
		return "", false
	}
	return addr, true
}

// parseRates converts a request rate map keyed by lock days into a rate table
func parseRates(raw map[string]uint16) (domain.RateTable, error) {
	rates := make(domain.RateTable, len(raw))
	for key, bps := range raw {
		days, err := strconv.ParseUint(key, 10, 8)
		if err != nil {
			return nil, domain.ErrInvalidLockClass
		}
		class := domain.LockClass(days)
		if !domain.IsValidLockClass(class) {
			return nil, domain.ErrInvalidLockClass
		}
		rates[class] = bps
	}
	return rates, nil
}

func (h *handler) GetPool(c *gin.Context) {
	info, err := h.engine.PoolStatus(c.Request.Context())
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) InitializePool(c *gin.Context) {
	authority, ok := caller(c)
	if !ok {
		return
	}

	var req initializePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rates, err := parseRates(req.Rates)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	result, err := h.engine.InitializePool(c.Request.Context(), authority, domain.Address(req.Treasury), req.ReferenceAsset, rates)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) SetPoolPaused(c *gin.Context) {
	admin, ok := caller(c)
	if !ok {
		return
	}

	var req setPausedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.SetPaused(c.Request.Context(), admin, *req.Paused)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) UpdateRates(c *gin.Context) {
	admin, ok := caller(c)
	if !ok {
		return
	}

	var req updateRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	rates, err := parseRates(req.Rates)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}

	result, err := h.engine.UpdateRewardRates(c.Request.Context(), admin, rates)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) FundRewards(c *gin.Context) {
	admin, ok := caller(c)
	if !ok {
		return
	}

	var req fundRewardsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.FundRewards(c.Request.Context(), admin, req.Amount)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) CreateStake(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	var req stakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.engine.Stake(c.Request.Context(), owner, req.Amount, domain.LockClass(req.LockDays))
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) ListStakes(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	infos, err := h.engine.Positions(c.Request.Context(), owner)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": infos})
}

func (h *handler) GetStake(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	info, err := h.engine.StakeInfo(c.Request.Context(), owner, domain.Address(c.Param("address")))
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) ClaimStake(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.engine.Claim(c.Request.Context(), owner, domain.Address(c.Param("address")))
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) UnstakePosition(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.engine.Unstake(c.Request.Context(), owner, domain.Address(c.Param("address")))
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) EmergencyUnstakePosition(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.engine.EmergencyUnstake(c.Request.Context(), owner, domain.Address(c.Param("address")))
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) InitializeAccess(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	result, err := h.flow.Initialize(c.Request.Context(), owner)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) VerifyAccess(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	info, err := h.flow.Verify(c.Request.Context(), owner)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) GetAccessStatus(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	info, err := h.flow.AccessStatus(c.Request.Context(), owner)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) CheckAccessTier(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	var req checkTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	required := domain.Tier(req.RequiredTier)
	if !domain.IsValidTier(required) {
		respondWithDomainError(c, domain.ErrInvalidTier)
		return
	}

	granted, err := h.flow.CheckTier(c.Request.Context(), owner, required)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"required_tier": required,
		"granted":       granted,
	})
}

func (h *handler) ListTiers(c *gin.Context) {
	infos, err := h.flow.ListTiers(c.Request.Context())
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tiers": infos})
}

func (h *handler) CreateTier(c *gin.Context) {
	admin, ok := caller(c)
	if !ok {
		return
	}

	var req createTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}

	result, err := h.flow.CreateTier(c.Request.Context(), admin, domain.Tier(req.TierID), req.Name, req.Price, req.MaxSupply, req.MetadataURI)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) UpdateTier(c *gin.Context) {
	admin, ok := caller(c)
	if !ok {
		return
	}

	tierID, valid := tierParam(c)
	if !valid {
		return
	}

	var req updateTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithBadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.Active == nil && req.Price == nil {
		respondWithBadRequest(c, "at least one of active or price is required")
		return
	}

	ctx := c.Request.Context()
	var result *domain.OperationResult
	if req.Active != nil {
		r, err := h.flow.SetTierActive(ctx, admin, tierID, *req.Active)
		if err != nil {
			respondWithDomainError(c, err)
			return
		}
		result = r
	}
	if req.Price != nil {
		r, err := h.flow.UpdateTierPrice(ctx, admin, tierID, *req.Price)
		if err != nil {
			respondWithDomainError(c, err)
			return
		}
		result = r
	}
	c.JSON(http.StatusOK, result)
}

func (h *handler) PurchaseTier(c *gin.Context) {
	buyer, ok := caller(c)
	if !ok {
		return
	}

	tierID, valid := tierParam(c)
	if !valid {
		return
	}

	result, err := h.flow.PurchaseTier(c.Request.Context(), buyer, tierID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *handler) GetHolder(c *gin.Context) {
	holder, ok := caller(c)
	if !ok {
		return
	}

	tierID, valid := tierParam(c)
	if !valid {
		return
	}

	info, err := h.flow.VerifyHolder(c.Request.Context(), holder, tierID)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *handler) GetAccessLevel(c *gin.Context) {
	holder, ok := caller(c)
	if !ok {
		return
	}

	level, err := h.flow.AccessLevel(c.Request.Context(), holder)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_level": level,
		"tier_name":    level.String(),
	})
}

func (h *handler) ListEvents(c *gin.Context) {
	owner, ok := caller(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		respondWithBadRequest(c, "limit must be between 1 and 200")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		respondWithBadRequest(c, "offset must be non-negative")
		return
	}

	events, err := h.store.ListEvents(c.Request.Context(), owner, limit, offset)
	if err != nil {
		respondWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// tierParam parses the :id path parameter into a tier, responding with 400 on
// malformed input
func tierParam(c *gin.Context) (domain.Tier, bool) {
	raw, err := strconv.ParseUint(c.Param("id"), 10, 8)
	if err != nil || !domain.IsValidTier(domain.Tier(raw)) {
		respondWithBadRequest(c, "invalid tier id")
		return 0, false
	}
	return domain.Tier(raw), true
}
