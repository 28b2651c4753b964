// Package server wires the staking engine, access flow, and store into an
// HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dregan-protocol/staking-core/internal/api/middleware"
	"github.com/dregan-protocol/staking-core/internal/api/rest"
	"github.com/dregan-protocol/staking-core/internal/config"
)

// Server is the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
}

// New creates the API server with all middleware and routes configured
func New(cfg *config.APIConfig, h rest.Handler) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS())

	rest.SetupRoutes(router, h, middleware.AuthConfig{
		JWTPublicKey: cfg.Auth.JWTPublicKey,
		APIKeys:      cfg.Auth.APIKeys,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		},
	}
}

// Addr returns the address the server listens on
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start runs the HTTP server until it is shut down
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, draining in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
