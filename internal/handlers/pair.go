package handlers

import (
	"crypto/rand"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"moment-service/internal/middleware"
	"moment-service/internal/presence"
	"moment-service/internal/push"
	"moment-service/internal/repositories"
	"moment-service/internal/telemetry"
	"moment-service/internal/ws"
)

const inviteCodeLength = 6

// excludes ambiguous 0/O and 1/I
const inviteAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PairHandler manages invite codes and the pairing lifecycle.
type PairHandler struct {
	partyRepo   repositories.PartyRepository
	pairingRepo repositories.PairingRepository
	inviteRepo  repositories.InviteRepository
	hub         *ws.Hub
	presence    *presence.Broadcaster
	pushSender  push.Sender
	audit       *telemetry.AuditEmitter
	inviteTTL   time.Duration
}

// NewPairHandler constructs a PairHandler.
func NewPairHandler(partyRepo repositories.PartyRepository, pairingRepo repositories.PairingRepository, inviteRepo repositories.InviteRepository, hub *ws.Hub, broadcaster *presence.Broadcaster, pushSender push.Sender, audit *telemetry.AuditEmitter, inviteTTL time.Duration) *PairHandler {
	return &PairHandler{
		partyRepo:   partyRepo,
		pairingRepo: pairingRepo,
		inviteRepo:  inviteRepo,
		hub:         hub,
		presence:    broadcaster,
		pushSender:  pushSender,
		audit:       audit,
		inviteTTL:   inviteTTL,
	}
}

// CreateInvite handles POST /pairs/invite.
func (h *PairHandler) CreateInvite(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	if _, err := h.pairingRepo.ByParty(c.Request.Context(), partyID); err == nil {
		h.emitAudit(c, "ERROR", "invite refused, already paired")
		c.JSON(http.StatusConflict, gin.H{"error": "already paired"})
		return
	} else if !errors.Is(err, repositories.ErrPairingNotFound) {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pairing lookup failed"})
		return
	}

	code, err := newInviteCode()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate code"})
		return
	}

	invite, err := h.inviteRepo.Create(c.Request.Context(), code, partyID, time.Now().Add(h.inviteTTL))
	if err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create invite"})
		return
	}

	h.emitAudit(c, "INFO", "Invite code issued")
	c.JSON(http.StatusCreated, gin.H{"code": invite.Code, "expires_at": invite.ExpiresAt})
}

// JoinWithInvite handles POST /pairs/join.
func (h *PairHandler) JoinWithInvite(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issuerID, err := h.inviteRepo.Claim(c.Request.Context(), strings.ToUpper(strings.TrimSpace(req.Code)))
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrInviteInvalid):
			h.emitAudit(c, "ERROR", "invite code invalid")
			c.JSON(http.StatusNotFound, gin.H{"error": "invite code invalid or already used"})
		case errors.Is(err, repositories.ErrInviteExpired):
			h.emitAudit(c, "ERROR", "invite code expired")
			c.JSON(http.StatusGone, gin.H{"error": "invite code expired"})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not claim invite"})
		}
		return
	}

	if issuerID == partyID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot join own invite"})
		return
	}

	pairing, err := h.pairingRepo.Create(c.Request.Context(), partyID, issuerID)
	if err != nil {
		if errors.Is(err, repositories.ErrAlreadyPaired) {
			h.emitAudit(c, "ERROR", "join refused, a party is already paired")
			c.JSON(http.StatusConflict, gin.H{"error": "a party is already paired"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create pairing"})
		return
	}

	h.announcePairing(c, pairing.PartyA, pairing.PartyB)
	h.announcePairing(c, pairing.PartyB, pairing.PartyA)

	h.emitAudit(c, "INFO", "Pairing created")
	c.JSON(http.StatusCreated, gin.H{"pairing_id": pairing.ID, "partner_id": pairing.PartnerOf(partyID)})
}

// Unpair handles DELETE /pairs.
func (h *PairHandler) Unpair(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	pairing, err := h.pairingRepo.ByParty(c.Request.Context(), partyID)
	if err != nil {
		if errors.Is(err, repositories.ErrPairingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not paired"})
			return
		}
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pairing lookup failed"})
		return
	}

	if err := h.pairingRepo.Delete(c.Request.Context(), pairing.ID); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete pairing"})
		return
	}

	partnerID := pairing.PartnerOf(partyID)
	_ = h.hub.Send(partnerID, &ws.PartnerDisconnected{PartyID: partyID, Reason: "unpaired"})
	h.presence.Forget(partyID)
	h.presence.Forget(partnerID)

	h.emitAudit(c, "INFO", "Pairing deleted")
	c.Status(http.StatusNoContent)
}

// GetPartner handles GET /pairs/partner.
func (h *PairHandler) GetPartner(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	pairing, err := h.pairingRepo.ByParty(c.Request.Context(), partyID)
	if err != nil {
		if errors.Is(err, repositories.ErrPairingNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not paired"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pairing lookup failed"})
		return
	}

	partner, err := h.partyRepo.Get(c.Request.Context(), pairing.PartnerOf(partyID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "partner lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party_id":     partner.ID,
		"display_name": partner.DisplayName,
		"is_online":    h.hub.IsConnected(partner.ID),
		"last_seen_at": partner.LastSeenAt,
		"paired_at":    pairing.CreatedAt,
	})
}

// announcePairing tells one party about its new partner over whichever
// channel is available.
func (h *PairHandler) announcePairing(c *gin.Context, partyID, partnerID string) {
	if h.hub.IsConnected(partyID) {
		_ = h.hub.Send(partyID, &ws.Presence{
			PartyID:   partnerID,
			IsOnline:  h.hub.IsConnected(partnerID),
			Timestamp: time.Now().UnixMilli(),
		})
		return
	}

	party, err := h.partyRepo.Get(c.Request.Context(), partyID)
	if err != nil || party.PushToken == nil || *party.PushToken == "" || !party.NotificationsEnabled {
		return
	}
	partner, err := h.partyRepo.Get(c.Request.Context(), partnerID)
	if err != nil {
		return
	}
	_ = h.pushSender.SendPush(c.Request.Context(), *party.PushToken, push.Notification{
		Type:       "partner_connected",
		SenderName: partner.DisplayName,
		Title:      "You are paired",
		Body:       partner.DisplayName + " connected with you",
	})
}

func (h *PairHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), partyIDFromContext(c))
}

// newInviteCode returns a short uppercase code from the unambiguous
// alphabet.
func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, inviteCodeLength)
	for i, b := range buf {
		code[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(code), nil
}
