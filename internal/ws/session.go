package ws

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"moment-service/internal/auth"
	"moment-service/internal/observability"
	"moment-service/internal/repositories"
)

// PresenceNotifier receives session state transitions and heartbeats.
type PresenceNotifier interface {
	OnTransition(ctx context.Context, partyID string, isOnline bool)
	OnHeartbeat(ctx context.Context, partyID string)
}

// QueueDrainer delivers a party's pending moments after join.
type QueueDrainer interface {
	Drain(ctx context.Context, partyID string) (int, error)
}

// SessionHandler owns the lifecycle of live websocket sessions:
// authenticate, bind the party channel, ack joins, forward heartbeats,
// and clean up on disconnect.
type SessionHandler struct {
	hub         *Hub
	verifier    auth.TokenVerifier
	partyRepo   repositories.PartyRepository
	pairingRepo repositories.PairingRepository
	presence    PresenceNotifier
	drainer     QueueDrainer
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(hub *Hub, verifier auth.TokenVerifier, partyRepo repositories.PartyRepository, pairingRepo repositories.PairingRepository, presence PresenceNotifier, drainer QueueDrainer) *SessionHandler {
	return &SessionHandler{
		hub:         hub,
		verifier:    verifier,
		partyRepo:   partyRepo,
		pairingRepo: pairingRepo,
		presence:    presence,
		drainer:     drainer,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and binds it as the party's single
// live channel. A reconnect replaces the previous connection.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("moment-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token != "" {
		token = trimBearer(token)
	} else {
		token = c.Query("token")
	}

	identity, err := h.verifier.VerifyToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	partyID := identity.PartyID

	if _, err := h.partyRepo.Upsert(ctx, partyID, identity.DisplayName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve party"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		PartyID:     partyID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	if replaced := h.hub.Register(partyID, conn, info); replaced != nil {
		log.Printf("party %s reconnected, previous channel closed", partyID)
	}
	if err := h.partyRepo.SetLiveChannel(context.WithoutCancel(ctx), partyID, info.ConnID); err != nil {
		log.Printf("set live channel failed party=%s: %v", partyID, err)
	}

	observability.IncWSActive()
	observability.IncWSEvent("session", "ws_connect")
	h.publishLifecycle(ctx, info, "ws_connect", "")

	go h.readLoop(conn, info)
}

// readLoop processes the session's inbound events until the connection
// closes, then tears the session down.
func (h *SessionHandler) readLoop(conn *websocket.Conn, info ConnInfo) {
	// Session outlives the handshake request context.
	ctx := context.Background()
	partyID := info.PartyID

	var closeReason string
	defer func() {
		conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("session", "ws_disconnect")
		h.publishLifecycle(ctx, info, "ws_disconnect", closeReason)

		// Only the connection that still owns the channel may clear
		// capabilities and flip presence; a replaced connection's
		// teardown must not knock the fresh session offline.
		if !h.hub.Unregister(partyID, info.ConnID) {
			return
		}
		if err := h.partyRepo.ClearLiveChannel(ctx, partyID, info.ConnID); err != nil {
			log.Printf("clear live channel failed party=%s: %v", partyID, err)
		}
		h.presence.OnTransition(ctx, partyID, false)
		h.notifyPartner(ctx, partyID, &PartnerDisconnected{PartyID: partyID, Reason: closeReason})
	}()

	joined := false
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("session", "ws_error")
				h.publishLifecycle(ctx, info, "ws_error", closeReason)
			}
			return
		}

		event, err := Decode(raw)
		if err != nil {
			observability.IncWSEvent("session", "decode_error")
			_ = h.hub.Send(partyID, &ErrorEvent{Code: "bad_event", Message: err.Error()})
			continue
		}

		switch e := event.(type) {
		case *Join:
			if e.PartyID != "" && e.PartyID != partyID {
				_ = h.hub.Send(partyID, &ErrorEvent{Code: "party_mismatch", Message: "join party does not match session"})
				continue
			}
			_ = h.hub.Send(partyID, &Joined{PartyID: partyID})
			if !joined {
				joined = true
				h.completeJoin(ctx, partyID)
			}
		case *Heartbeat:
			if err := h.partyRepo.TouchLastSeen(ctx, partyID); err != nil {
				log.Printf("touch last seen failed party=%s: %v", partyID, err)
			}
			h.presence.OnHeartbeat(ctx, partyID)
		case *MomentReceived:
			h.notifyPartner(ctx, partyID, e)
		case *Typing:
			h.notifyPartner(ctx, partyID, &PartnerTyping{})
		default:
			_ = h.hub.Send(partyID, &ErrorEvent{Code: "unexpected_event", Message: "event not accepted from clients: " + event.Kind().String()})
		}
	}
}

// completeJoin runs once per session after the first acknowledged
// join: presence goes online, the joiner learns its partner's state,
// and the offline queue drains.
func (h *SessionHandler) completeJoin(ctx context.Context, partyID string) {
	h.presence.OnTransition(ctx, partyID, true)

	if pairing, err := h.pairingRepo.ByParty(ctx, partyID); err == nil {
		partnerID := pairing.PartnerOf(partyID)
		_ = h.hub.Send(partyID, &Presence{
			PartyID:   partnerID,
			IsOnline:  h.hub.IsConnected(partnerID),
			Timestamp: time.Now().UnixMilli(),
		})
	} else if !errors.Is(err, repositories.ErrPairingNotFound) {
		log.Printf("pairing lookup failed party=%s: %v", partyID, err)
	}

	delivered, err := h.drainer.Drain(ctx, partyID)
	if err != nil {
		log.Printf("queue drain failed party=%s: %v", partyID, err)
	} else if delivered > 0 {
		log.Printf("drained %d pending moments party=%s", delivered, partyID)
	}
}

func (h *SessionHandler) notifyPartner(ctx context.Context, partyID string, event Event) {
	pairing, err := h.pairingRepo.ByParty(ctx, partyID)
	if err != nil {
		return
	}
	partnerID := pairing.PartnerOf(partyID)
	if err := h.hub.Send(partnerID, event); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("partner notify failed partner=%s: %v", partnerID, err)
	}
}

func (h *SessionHandler) publishLifecycle(ctx context.Context, info ConnInfo, name, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"event":       name,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"party_id":  info.PartyID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
