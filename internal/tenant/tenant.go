// Package tenant provides the project data model and the tenant
// resolver: the stage that pins each verified request to the single
// project it may operate against.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lattice-host/lattice-gateway/internal/auth"
	"github.com/lattice-host/lattice-gateway/internal/database"
	"github.com/lattice-host/lattice-gateway/internal/sqlident"
)

// Sentinel errors for tenant resolution.
var (
	ErrNotFound      = errors.New("tenant: project not found")
	ErrMissingTenant = errors.New("tenant: project identifier required")
	ErrAccessDenied  = errors.New("tenant: access denied")
)

// Project represents a single tenant: an isolated unit of data
// ownership whose private schema is named p<id>.
type Project struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SchemaName returns the project's private schema name.
func (p *Project) SchemaName() string {
	return sqlident.SchemaName(p.ID)
}

// Store provides project and membership lookups backed by PostgreSQL.
type Store struct {
	db *database.DB
}

// NewStore creates a project Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// GetByID returns a project by its numeric ID.
// Returns ErrNotFound if no project matches.
func (s *Store) GetByID(ctx context.Context, id int) (*Project, error) {
	var p Project
	err := s.db.Pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM projects WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("tenant: get %d: %w", id, err)
	}
	return &p, nil
}

// IsMember reports whether the user belongs to the project.
func (s *Store) IsMember(ctx context.Context, projectID, userID int) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2
		 )`,
		projectID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("tenant: membership %d/%d: %w", projectID, userID, err)
	}
	return exists, nil
}

// MembershipChecker is the slice of the store the resolver needs.
type MembershipChecker interface {
	IsMember(ctx context.Context, projectID, userID int) (bool, error)
}

// Resolver determines the single tenant a verified caller may act on.
type Resolver struct {
	members MembershipChecker
}

// NewResolver creates a Resolver.
func NewResolver(members MembershipChecker) *Resolver {
	return &Resolver{members: members}
}

// Resolve applies the tenant-binding rules. A caller with an implicit
// binding (API key path) always gets that binding; everyone else must
// supply an explicit project ID. Non-numeric or non-positive explicit
// IDs are treated as absent. Session callers must be members of the
// project; the master bypass and admin users skip the membership check.
func (r *Resolver) Resolve(ctx context.Context, caller auth.Result, explicitID string) (int, error) {
	if caller.ProjectID > 0 {
		return caller.ProjectID, nil
	}

	id, err := strconv.Atoi(explicitID)
	if err != nil || id <= 0 {
		return 0, ErrMissingTenant
	}

	if caller.IsAdmin {
		return id, nil
	}

	ok, err := r.members.IsMember(ctx, id, caller.UserID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: project %d", ErrAccessDenied, id)
	}
	return id, nil
}
