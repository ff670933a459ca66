package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lattice-host/lattice-gateway/internal/metrics"
)

// Version reported by the health endpoint.
const Version = "0.3.0"

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes() {
	// --- Public endpoints (no auth) ---
	s.echo.GET("/v1/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	s.echo.POST("/v1/session", s.handleLogin)
	s.echo.DELETE("/v1/session", s.handleLogout)

	// --- Gateway endpoints (verifier runs inside each handler) ---
	s.echo.POST("/v1/query", s.handleQuery)
	s.echo.GET("/v1/rows", s.handleRowsRead)
	s.echo.POST("/v1/rows", s.handleRowsInsert)
	s.echo.PUT("/v1/rows", s.handleRowsUpdate)
	s.echo.DELETE("/v1/rows", s.handleRowsDelete)
	s.echo.GET("/v1/events/stream", s.handleEventStream)

	// --- Admin API ---
	admin := s.echo.Group("/v1/admin", s.requireAdmin)
	admin.POST("/users", s.handleCreateUser)
	admin.POST("/keys", s.handleCreateKey)
}

// handleHealth returns basic server health information, including
// whether the database is reachable.
func (s *Server) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	dbStatus := "ok"
	status := http.StatusOK
	if err := s.db.Pool.Ping(ctx); err != nil {
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, map[string]string{
		"version":  Version,
		"database": dbStatus,
	})
}
