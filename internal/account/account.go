// Package account provides the data model and operations for gateway
// operator accounts. Operators authenticate with an email/password
// pair and receive a signed pqc_session cookie; the verified email is
// the durable identity embedded in the token, so lookups here are
// always by email rather than by a provider-specific internal ID.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lattice-host/lattice-gateway/internal/database"
)

// Sentinel errors for account operations.
var (
	ErrNotFound    = errors.New("account: not found")
	ErrBadPassword = errors.New("account: invalid password")
)

// User represents a gateway operator.
type User struct {
	ID          int       `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName,omitempty"`
	IsAdmin     bool      `json:"isAdmin"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store provides user operations backed by PostgreSQL.
type Store struct {
	db *database.DB
}

// NewStore creates a user Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// GetByEmail returns the user with the given email.
// Returns ErrNotFound if no user matches.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, email, COALESCE(display_name, ''), is_admin, created_at, updated_at
		 FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("account: get %q: %w", email, err)
	}
	return &u, nil
}

// Authenticate verifies an email/password pair and returns the user on
// success. Returns ErrNotFound for an unknown email and ErrBadPassword
// for a wrong password.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var (
		u    User
		hash string
	)
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, email, COALESCE(display_name, ''), is_admin, password_hash, created_at, updated_at
		 FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsAdmin, &hash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("account: authenticate %q: %w", email, err)
	}

	if err := CheckPassword(hash, password); err != nil {
		return nil, ErrBadPassword
	}
	return &u, nil
}

// CreateParams holds the parameters for creating a new user.
type CreateParams struct {
	Email       string
	Password    string // plaintext, will be hashed
	DisplayName string
	IsAdmin     bool
}

// Create inserts a new user with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, p CreateParams) (*User, error) {
	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, fmt.Errorf("account: create: %w", err)
	}

	var u User
	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO users (email, password_hash, display_name, is_admin)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, email, COALESCE(display_name, ''), is_admin, created_at, updated_at`,
		p.Email, hash, p.DisplayName, p.IsAdmin,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("account: create %q: %w", p.Email, err)
	}
	return &u, nil
}
