package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway fronts API clients, not browsers on foreign
	// origins; cookie and key auth already gate the subscription.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	streamWriteWait = 10 * time.Second
	streamPingEvery = 30 * time.Second
)

// handleEventStream upgrades to a websocket and streams the caller's
// project mutation events as JSON frames. The subscription sees the
// same events the webhook dispatcher delivers.
// GET /v1/events/stream?projectId=...
func (s *Server) handleEventStream(c echo.Context) error {
	caller, ok := s.authenticate(c)
	if !ok {
		return nil
	}

	projectID, resolved := s.resolveTenant(c, caller, nil)
	if !resolved {
		return nil
	}
	if projectID == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "MissingTenant",
			"message": "projectId is required for the event stream",
		})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}
	defer conn.Close()

	events, cancel := s.notifier.Subscribe(projectID)
	defer cancel()

	// Reader goroutine: we never expect frames from the client, but
	// reading is required to notice a closed connection.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingEvery)
	defer ticker.Stop()

	for {
		select {
		case ev, open := <-events:
			if !open {
				// Evicted as a slow consumer or manager shutdown.
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("Event stream write failed for project %d: %v", projectID, err)
				return nil
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-done:
			return nil
		case <-c.Request().Context().Done():
			return nil
		}
	}
}
