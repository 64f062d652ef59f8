package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"moment-service/internal/middleware"
	"moment-service/internal/repositories"
	"moment-service/internal/telemetry"
	"moment-service/internal/ws"
)

// PartyHandler manages party profile, push token and settings endpoints.
type PartyHandler struct {
	partyRepo repositories.PartyRepository
	hub       *ws.Hub
	audit     *telemetry.AuditEmitter
}

// NewPartyHandler constructs a PartyHandler.
func NewPartyHandler(partyRepo repositories.PartyRepository, hub *ws.Hub, audit *telemetry.AuditEmitter) *PartyHandler {
	return &PartyHandler{partyRepo: partyRepo, hub: hub, audit: audit}
}

// Me handles GET /parties/me.
func (h *PartyHandler) Me(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	party, err := h.partyRepo.Get(c.Request.Context(), partyID)
	if err != nil {
		if errors.Is(err, repositories.ErrPartyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "party not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "party lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"party_id":              party.ID,
		"display_name":          party.DisplayName,
		"notifications_enabled": party.NotificationsEnabled,
		"push_registered":       party.PushToken != nil && *party.PushToken != "",
		"is_online":             h.hub.IsConnected(party.ID),
		"last_seen_at":          party.LastSeenAt,
	})
}

// RegisterPushToken handles PUT /parties/push-token.
func (h *PartyHandler) RegisterPushToken(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.partyRepo.SetPushToken(c.Request.Context(), partyID, req.Token); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store push token"})
		return
	}

	h.emitAudit(c, "INFO", "Push token registered")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UpdateSettings handles PUT /parties/settings.
func (h *PartyHandler) UpdateSettings(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	var req struct {
		NotificationsEnabled *bool `json:"notifications_enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.partyRepo.UpdateSettings(c.Request.Context(), partyID, *req.NotificationsEnabled); err != nil {
		h.emitAudit(c, "ERROR", "internal error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update settings"})
		return
	}

	h.emitAudit(c, "INFO", "Settings updated")
	c.JSON(http.StatusOK, gin.H{"notifications_enabled": *req.NotificationsEnabled})
}

func (h *PartyHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), partyIDFromContext(c))
}
