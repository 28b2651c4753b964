// Package rest exposes the staking and access operations over HTTP. Handlers
// never carry authority themselves: the caller identity comes from the JWT
// subject and every mutation is re-validated by the staking engine and access
// flow underneath.
package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dregan-protocol/staking-core/internal/api/middleware"
)

// SetupRoutes configures all REST API routes on the given router
func SetupRoutes(router *gin.Engine, h Handler, authCfg middleware.AuthConfig) {
	// Health check endpoint (no auth)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	// Public read endpoints
	v1.GET("/pool", h.GetPool)
	v1.GET("/tiers", h.ListTiers)

	// Authenticated endpoints; the JWT subject is the caller's address
	authed := v1.Group("")
	authed.Use(middleware.Auth(authCfg))
	{
		pool := authed.Group("/pool")
		{
			pool.POST("", h.InitializePool)
			pool.POST("/pause", h.SetPoolPaused)
			pool.POST("/rates", h.UpdateRates)
			pool.POST("/rewards/fund", h.FundRewards)
		}

		stakes := authed.Group("/stakes")
		{
			stakes.POST("", h.CreateStake)
			stakes.GET("", h.ListStakes)
			stakes.GET("/:address", h.GetStake)
			stakes.POST("/:address/claim", h.ClaimStake)
			stakes.POST("/:address/unstake", h.UnstakePosition)
			stakes.POST("/:address/emergency-unstake", h.EmergencyUnstakePosition)
		}

		accessGroup := authed.Group("/access")
		{
			accessGroup.POST("/initialize", h.InitializeAccess)
			accessGroup.POST("/verify", h.VerifyAccess)
			accessGroup.GET("/status", h.GetAccessStatus)
			accessGroup.POST("/check", h.CheckAccessTier)
			accessGroup.GET("/level", h.GetAccessLevel)
		}

		tiers := authed.Group("/tiers")
		{
			tiers.POST("", h.CreateTier)
			tiers.PATCH("/:id", h.UpdateTier)
			tiers.POST("/:id/purchase", h.PurchaseTier)
			tiers.GET("/:id/holder", h.GetHolder)
		}

		authed.GET("/events", h.ListEvents)
	}
}
