// Package apikey provides the data model and operations for project
// API keys. A key is bound to exactly one project and carries a type:
// "service" keys get elevated trust, "restricted" keys do not. Only
// the SHA-256 of a key is stored; the plaintext is returned once at
// creation time and cannot be recovered afterwards.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lattice-host/lattice-gateway/internal/database"
)

// ErrNotFound is returned when no key matches a hash lookup.
var ErrNotFound = errors.New("apikey: not found")

// Key types.
const (
	TypeService    = "service"
	TypeRestricted = "restricted"
)

// Key represents a stored API key (hash only, never plaintext).
type Key struct {
	ID         int        `json:"id"`
	ProjectID  int        `json:"projectId"`
	Type       string     `json:"type"`
	Label      string     `json:"label,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Hash returns the deterministic one-way hash under which a plaintext
// key is stored and looked up.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Generate returns a new plaintext API key. The "lk_" prefix makes
// keys recognizable in logs and support tickets without revealing
// anything; the body is a UUID plus 16 random bytes.
func Generate() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("apikey: generate: %w", err)
	}
	return "lk_" + uuid.NewString() + hex.EncodeToString(b), nil
}

// Store provides API key operations backed by PostgreSQL.
type Store struct {
	db *database.DB
}

// NewStore creates an API key Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// GetByHash returns the key whose stored hash matches.
// Returns ErrNotFound if no key matches.
func (s *Store) GetByHash(ctx context.Context, hash string) (*Key, error) {
	var k Key
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, project_id, key_type, COALESCE(label, ''), last_used_at, created_at
		 FROM api_keys WHERE key_hash = $1`,
		hash,
	).Scan(&k.ID, &k.ProjectID, &k.Type, &k.Label, &k.LastUsedAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("apikey: get by hash: %w", err)
	}
	return &k, nil
}

// TouchLastUsed records that a key was just used. Called on a
// background goroutine after verification; failures are the caller's
// to log and swallow.
func (s *Store) TouchLastUsed(ctx context.Context, id int) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("apikey: touch last used %d: %w", id, err)
	}
	return nil
}

// Create mints a new key for a project and stores its hash. Returns
// the stored row and the plaintext key, which is shown once and never
// kept.
func (s *Store) Create(ctx context.Context, projectID int, keyType, label string) (*Key, string, error) {
	if keyType != TypeService && keyType != TypeRestricted {
		return nil, "", fmt.Errorf("apikey: create: invalid key type %q", keyType)
	}

	plaintext, err := Generate()
	if err != nil {
		return nil, "", err
	}

	var k Key
	err = s.db.Pool.QueryRow(ctx,
		`INSERT INTO api_keys (key_hash, project_id, key_type, label)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, project_id, key_type, COALESCE(label, ''), last_used_at, created_at`,
		Hash(plaintext), projectID, keyType, label,
	).Scan(&k.ID, &k.ProjectID, &k.Type, &k.Label, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("apikey: create for project %d: %w", projectID, err)
	}
	return &k, plaintext, nil
}
