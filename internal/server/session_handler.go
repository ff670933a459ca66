package server

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lattice-host/lattice-gateway/internal/account"
	"github.com/lattice-host/lattice-gateway/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin verifies an email/password pair and sets the signed
// pqc_session cookie.
// POST /v1/session
func (s *Server) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingField",
			"message": "email and password are required",
		})
	}

	user, err := s.accounts.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) || errors.Is(err, account.ErrBadPassword) {
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error":   "Unauthorized",
				"message": "Invalid email or password",
			})
		}
		log.Printf("Error authenticating %q: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Login failed",
		})
	}

	token, err := s.sessions.Issue(user.Email)
	if err != nil {
		log.Printf("Error issuing session for %q: %v", user.Email, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Login failed",
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(auth.SessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"user":    user,
	})
}

// handleLogout clears the session cookie. The token itself simply
// expires; there is no server-side session state to revoke.
// DELETE /v1/session
func (s *Server) handleLogout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}
