// Package events is the mutation event notifier. After a successful
// non-SELECT statement with a bound tenant, it best-effort identifies
// the affected table, fires any registered webhooks for that
// (tenant, table, event) combination, and broadcasts the event to live
// stream subscribers. Everything in this package is fire-and-forget:
// it must never fail or delay the originating request.
package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-host/lattice-gateway/internal/metrics"
)

// Event describes one observed mutation.
type Event struct {
	ID        string           `json:"id"`
	ProjectID int              `json:"projectId"`
	Table     string           `json:"table"`
	Type      string           `json:"type"` // INSERT, UPDATE, or DELETE
	Rows      []map[string]any `json:"rows,omitempty"`
	Time      time.Time        `json:"time"`
}

// WebhookLookup is the slice of the registry the manager needs.
type WebhookLookup interface {
	ListForEvent(ctx context.Context, projectID int, table, event string) ([]Webhook, error)
}

// subscriber represents a connected live-stream consumer.
type subscriber struct {
	projectID int
	ch        chan Event
}

// Manager dispatches mutation events. Webhook deliveries flow through
// a bounded queue drained by a fixed set of workers, so a burst of
// mutations cannot produce unbounded concurrent outbound calls.
type Manager struct {
	hooks   WebhookLookup
	client  *http.Client
	queue   chan Event
	wg      sync.WaitGroup
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	closing bool
}

// NewManager creates and starts a Manager with the given queue bound
// and worker count.
func NewManager(hooks WebhookLookup, queueSize, workers int, deliveryTimeout time.Duration) *Manager {
	if queueSize <= 0 {
		queueSize = 256
	}
	if workers <= 0 {
		workers = 4
	}
	m := &Manager{
		hooks:  hooks,
		client: &http.Client{Timeout: deliveryTimeout},
		queue:  make(chan Event, queueSize),
		subs:   make(map[*subscriber]struct{}),
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// NotifyMutation inspects a successful mutation statement and, if the
// target table can be identified, enqueues an event. It never blocks:
// when the queue is full the event is dropped and logged.
func (m *Manager) NotifyMutation(sql string, projectID int, rows []map[string]any) {
	table, eventType, ok := ExtractMutation(sql)
	if !ok {
		return
	}

	ev := Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Table:     table,
		Type:      eventType,
		Rows:      rows,
		Time:      time.Now().UTC(),
	}

	// The lock covers the closing check and both sends: Shutdown sets
	// closing under the same lock before closing the queue, so a
	// racing notify can never hit a closed channel.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return
	}

	m.broadcast(ev)

	select {
	case m.queue <- ev:
	default:
		log.Printf("Warning: webhook queue full, dropping %s event for %s", eventType, table)
	}
}

// Subscribe returns a channel of events for one project's live stream.
// The returned cancel function must be called when the subscriber is
// done.
func (m *Manager) Subscribe(projectID int) (<-chan Event, func()) {
	sub := &subscriber{
		projectID: projectID,
		ch:        make(chan Event, 64),
	}

	m.mu.Lock()
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subs[sub]; ok {
			delete(m.subs, sub)
			close(sub.ch)
		}
		m.mu.Unlock()
	}

	return sub.ch, cancel
}

// broadcast fans an event out to matching subscribers. Slow consumers
// whose buffers are full get their channel closed (they should
// reconnect). Callers must hold m.mu.
func (m *Manager) broadcast(ev Event) {
	for sub := range m.subs {
		if sub.projectID != ev.ProjectID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			delete(m.subs, sub)
			close(sub.ch)
		}
	}
}

// Shutdown stops accepting events, drains in-flight deliveries, and
// closes all subscriber channels.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closing = true
	for sub := range m.subs {
		delete(m.subs, sub)
		close(sub.ch)
	}
	m.mu.Unlock()

	close(m.queue)
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for ev := range m.queue {
		m.deliver(ev)
	}
}

// deliver looks up matching registrations and posts the event to each.
// Failures are logged and otherwise ignored.
func (m *Manager) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hooks, err := m.hooks.ListForEvent(ctx, ev.ProjectID, ev.Table, ev.Type)
	if err != nil {
		log.Printf("Warning: webhook lookup failed for %s/%s: %v", ev.Table, ev.Type, err)
		return
	}

	if len(hooks) == 0 {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Printf("Warning: marshal event %s: %v", ev.ID, err)
		return
	}

	for _, h := range hooks {
		err := m.post(ctx, h, ev, body)
		metrics.RecordWebhookDelivery(err == nil)
		if err != nil {
			log.Printf("Warning: webhook delivery %s to %s failed: %v", ev.ID, h.URL, err)
		}
	}
}

func (m *Manager) post(ctx context.Context, h Webhook, ev Event, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lattice-Event", ev.Type)
	req.Header.Set("X-Lattice-Delivery", ev.ID)
	req.Header.Set("X-Lattice-Signature", sign(h.Secret, body))

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// sign computes the hex HMAC-SHA256 of the payload under the
// registration's shared secret.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
