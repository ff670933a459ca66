// Package registry tracks ownership of dynamically created tables.
// A table name is registered to at most one project. The raw-SQL path
// records rows best-effort after a successful CREATE TABLE; the row
// CRUD read path consults the registry when deciding whether a table's
// rows may be returned unfiltered.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lattice-host/lattice-gateway/internal/database"
)

// Store provides table-ownership operations backed by PostgreSQL.
type Store struct {
	db *database.DB
}

// NewStore creates a registry Store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Lookup returns the owning project for a table name. ok is false when
// the table is not registered (ownership unknown).
func (s *Store) Lookup(ctx context.Context, table string) (projectID int, ok bool, err error) {
	err = s.db.Pool.QueryRow(ctx,
		`SELECT project_id FROM table_registry WHERE table_name = $1`, table,
	).Scan(&projectID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("registry: lookup %q: %w", table, err)
	}
	return projectID, true, nil
}

// Record registers a table to a project. First registration wins; a
// name already registered (to any project) is left untouched.
func (s *Store) Record(ctx context.Context, table string, projectID int, createdBy string) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO table_registry (table_name, project_id, created_by)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (table_name) DO NOTHING`,
		table, projectID, createdBy)
	if err != nil {
		return fmt.Errorf("registry: record %q: %w", table, err)
	}
	return nil
}
