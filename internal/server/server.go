// Package server provides the HTTP surface of the gateway, built on
// Echo v4: the raw SQL endpoint, the structured row CRUD endpoints,
// session issuance, the live event stream, and a small admin API.
package server

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lattice-host/lattice-gateway/internal/account"
	"github.com/lattice-host/lattice-gateway/internal/apikey"
	"github.com/lattice-host/lattice-gateway/internal/auth"
	"github.com/lattice-host/lattice-gateway/internal/config"
	"github.com/lattice-host/lattice-gateway/internal/database"
	"github.com/lattice-host/lattice-gateway/internal/events"
	"github.com/lattice-host/lattice-gateway/internal/query"
	"github.com/lattice-host/lattice-gateway/internal/ratelimit"
	"github.com/lattice-host/lattice-gateway/internal/registry"
	"github.com/lattice-host/lattice-gateway/internal/rows"
	"github.com/lattice-host/lattice-gateway/internal/tenant"
)

// Server wraps the Echo instance and application dependencies.
type Server struct {
	echo      *echo.Echo
	cfg       *config.Config
	db        *database.DB
	verifier  *auth.Verifier
	sessions  *auth.SessionManager
	resolver  *tenant.Resolver
	limiter   *ratelimit.Limiter
	executor  *query.Executor
	notifier  *events.Manager
	registry  *registry.Store
	inspector *rows.Inspector
	accounts  *account.Store
	keys      *apikey.Store
}

// Deps bundles the constructed application dependencies.
type Deps struct {
	DB        *database.DB
	Verifier  *auth.Verifier
	Sessions  *auth.SessionManager
	Resolver  *tenant.Resolver
	Limiter   *ratelimit.Limiter
	Executor  *query.Executor
	Notifier  *events.Manager
	Registry  *registry.Store
	Inspector *rows.Inspector
	Accounts  *account.Store
	Keys      *apikey.Store
}

// New creates a configured Echo server with all routes registered.
func New(cfg *config.Config, d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true // We log the listen address ourselves.

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		echo:      e,
		cfg:       cfg,
		db:        d.DB,
		verifier:  d.Verifier,
		sessions:  d.Sessions,
		resolver:  d.Resolver,
		limiter:   d.Limiter,
		executor:  d.Executor,
		notifier:  d.Notifier,
		registry:  d.Registry,
		inspector: d.Inspector,
		accounts:  d.Accounts,
		keys:      d.Keys,
	}

	s.registerRoutes()
	return s
}

// Start begins listening for HTTP requests. It blocks until the context
// is cancelled, then performs a graceful shutdown allowing in-flight
// requests to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", s.cfg.ListenAddr)
		if err := s.echo.Start(s.cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("Shutting down HTTP server...")
		return s.echo.Shutdown(context.Background())
	}
}

// authenticate runs the credential verifier and writes the error
// response itself when the request may not proceed. A credential store
// failure is a 500, not a 401: the credential was never evaluated.
func (s *Server) authenticate(c echo.Context) (auth.Result, bool) {
	caller, err := s.verifier.Verify(c.Request().Context(), c.Request())
	if err != nil {
		log.Printf("Error verifying credentials: %v", err)
		_ = c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Credential verification failed",
		})
		return caller, false
	}
	if caller.KeyRejected {
		// A present-but-invalid bearer key is surfaced, never
		// silently treated as absent.
		c.Response().Header().Set("X-Lattice-Key-Status", "rejected")
	}
	if !caller.Authorized {
		_ = c.JSON(http.StatusUnauthorized, map[string]string{
			"error":   "Unauthorized",
			"message": "No valid credential was presented",
		})
		return caller, false
	}
	return caller, true
}

// requireAdmin guards the admin API: only the master bypass or an
// admin user may pass.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller, ok := s.authenticate(c)
		if !ok {
			return nil
		}
		if !caller.IsAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error":   "Forbidden",
				"message": "Admin credentials are required",
			})
		}
		return next(c)
	}
}

// setRateHeaders stamps the standard rate-limit headers on the response.
func setRateHeaders(c echo.Context, res ratelimit.Result) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
	if !res.Allowed {
		h.Set("Retry-After", strconv.Itoa(int(res.RetryIn.Seconds())))
	}
}
