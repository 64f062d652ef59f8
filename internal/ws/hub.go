package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"moment-service/internal/observability"
)

// ErrNotConnected is returned when a party has no live channel.
var ErrNotConnected = errors.New("party not connected")

// channel is one party's live connection. Writes are serialized per
// channel; gorilla connections do not allow concurrent writers.
type channel struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *channel) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub maintains the single addressable live channel per party. A party
// reconnecting replaces its previous channel; the stale connection is
// closed so the client's old session cannot linger as a fan-out target.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]*channel
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{channels: make(map[string]*channel)}
}

// Register binds a connection as the party's live channel and returns
// the connection previously bound, if any.
func (h *Hub) Register(partyID string, conn *websocket.Conn, info ConnInfo) (replaced *websocket.Conn) {
	h.mu.Lock()
	prev := h.channels[partyID]
	h.channels[partyID] = &channel{conn: conn, info: info}
	h.mu.Unlock()

	if prev != nil {
		if prev.conn != nil {
			prev.conn.Close()
		}
		return prev.conn
	}
	return nil
}

// Unregister removes the party's channel, but only when the given
// connection id still owns it. A reconnect that already replaced the
// channel must not be torn down by the old session's cleanup.
func (h *Hub) Unregister(partyID, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[partyID]
	if !ok || ch.info.ConnID != connID {
		return false
	}
	delete(h.channels, partyID)
	return true
}

// IsConnected reports whether the party has a live channel.
func (h *Hub) IsConnected(partyID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.channels[partyID]
	return ok
}

// ConnID returns the id of the party's current connection.
func (h *Hub) ConnID(partyID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.channels[partyID]
	if !ok {
		return "", false
	}
	return ch.info.ConnID, true
}

// ActiveCount returns the number of connected parties.
func (h *Hub) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels)
}

// Send emits an event on the party's live channel. Returns
// ErrNotConnected when the party has no channel; a write failure
// closes and removes the channel.
func (h *Hub) Send(partyID string, event Event) error {
	h.mu.RLock()
	ch, ok := h.channels[partyID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	payload, err := Encode(event)
	if err != nil {
		return err
	}

	if err := ch.write(payload); err != nil {
		log.Printf("websocket write error party=%s: %v", partyID, err)
		ch.conn.Close()
		h.Unregister(partyID, ch.info.ConnID)
		h.publishWSError(ch.info, err)
		return err
	}

	observability.IncWSEvent("session", event.Kind().String())
	return nil
}

func (h *Hub) publishWSError(info ConnInfo, err error) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       "ws_error",
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      err.Error(),
		},
		"identity": map[string]interface{}{
			"party_id":  info.PartyID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload:   payload,
	}, headers)
	observability.IncWSEvent("session", "ws_error")
}
