package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lattice-host/lattice-gateway/internal/account"
	"github.com/lattice-host/lattice-gateway/internal/apikey"
)

type createUserRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	IsAdmin     bool   `json:"isAdmin"`
}

// handleCreateUser creates a gateway operator account.
// POST /v1/admin/users (admin auth required)
func (s *Server) handleCreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingField",
			"message": "email and password are required",
		})
	}

	user, err := s.accounts.Create(c.Request().Context(), account.CreateParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		IsAdmin:     req.IsAdmin,
	})
	if err != nil {
		if isDuplicateKey(err) {
			return c.JSON(http.StatusConflict, map[string]string{
				"error":   "UserExists",
				"message": "User already exists: " + req.Email,
			})
		}
		log.Printf("Error creating user %q: %v", req.Email, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to create user",
		})
	}

	log.Printf("User created: %s", user.Email)
	return c.JSON(http.StatusOK, user)
}

type createKeyRequest struct {
	ProjectID int    `json:"projectId"`
	Type      string `json:"type"`
	Label     string `json:"label"`
}

// handleCreateKey mints an API key for a project. The plaintext key
// appears once in this response and is never stored.
// POST /v1/admin/keys (admin auth required)
func (s *Server) handleCreateKey(c echo.Context) error {
	var req createKeyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "InvalidRequest",
			"message": "Invalid JSON body",
		})
	}

	if req.ProjectID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingField",
			"message": "projectId is required",
		})
	}
	if req.Type == "" {
		req.Type = apikey.TypeRestricted
	}

	key, plaintext, err := s.keys.Create(c.Request().Context(), req.ProjectID, req.Type, req.Label)
	if err != nil {
		log.Printf("Error creating key for project %d: %v", req.ProjectID, err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "InternalError",
			"message": "Failed to create API key",
		})
	}

	log.Printf("API key created for project %d (%s)", req.ProjectID, key.Type)
	return c.JSON(http.StatusOK, map[string]any{
		"key":       key,
		"plaintext": plaintext,
	})
}

// isDuplicateKey checks whether an error is a PostgreSQL unique
// constraint violation (error code 23505).
func isDuplicateKey(err error) bool {
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "unique constraint")
}
