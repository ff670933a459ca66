package events

import (
	"context"
	"fmt"
	"time"

	"github.com/lattice-host/lattice-gateway/internal/database"
)

// Webhook is a registered mutation callback. Registrations are created
// by the dashboard, out of scope here; the gateway only reads and
// fires them.
type Webhook struct {
	ID        int       `json:"id"`
	ProjectID int       `json:"projectId"`
	TableName string    `json:"tableName"`
	Event     string    `json:"event"` // INSERT, UPDATE, DELETE, or *
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Registry provides read-only webhook lookups backed by PostgreSQL.
type Registry struct {
	db *database.DB
}

// NewRegistry creates a webhook Registry.
func NewRegistry(db *database.DB) *Registry {
	return &Registry{db: db}
}

// ListForEvent returns the active registrations matching (project,
// table, event), where a stored event of * matches any event type.
func (r *Registry) ListForEvent(ctx context.Context, projectID int, table, event string) ([]Webhook, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, project_id, table_name, event, url, secret, created_at
		 FROM webhooks
		 WHERE project_id = $1 AND table_name = $2 AND (event = $3 OR event = '*') AND active`,
		projectID, table, event)
	if err != nil {
		return nil, fmt.Errorf("events: list webhooks: %w", err)
	}
	defer rows.Close()

	hooks := []Webhook{}
	for rows.Next() {
		var h Webhook
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.TableName, &h.Event, &h.URL, &h.Secret, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan webhook: %w", err)
		}
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}
