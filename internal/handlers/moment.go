package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"moment-service/internal/middleware"
	"moment-service/internal/models"
	"moment-service/internal/moments"
	"moment-service/internal/repositories"
	"moment-service/internal/telemetry"
)

// momentPipeline is the submit surface the handler needs.
type momentPipeline interface {
	Submit(ctx context.Context, senderID string, payload []byte, clientMomentID string) (models.DeliveryReceipt, error)
}

// MomentHandler manages moment upload and retrieval endpoints.
type MomentHandler struct {
	pipeline    momentPipeline
	partyRepo   repositories.PartyRepository
	pairingRepo repositories.PairingRepository
	momentRepo  repositories.MomentRepository
	audit       *telemetry.AuditEmitter
}

// NewMomentHandler constructs a MomentHandler.
func NewMomentHandler(pipeline momentPipeline, partyRepo repositories.PartyRepository, pairingRepo repositories.PairingRepository, momentRepo repositories.MomentRepository, audit *telemetry.AuditEmitter) *MomentHandler {
	return &MomentHandler{
		pipeline:    pipeline,
		partyRepo:   partyRepo,
		pairingRepo: pairingRepo,
		momentRepo:  momentRepo,
		audit:       audit,
	}
}

// Upload handles POST /moments. The photo arrives either as a
// multipart "photo" part or as a JSON body with a base64 payload. The
// client moment id comes from the X-Client-Moment-ID header or the
// body and makes retried uploads idempotent.
func (h *MomentHandler) Upload(c *gin.Context) {
	partyID := c.GetString(middleware.PartyIDKey)

	payload, clientMomentID, err := readUpload(c)
	if err != nil {
		h.emitAudit(c, "ERROR", "invalid request payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.pipeline.Submit(c.Request.Context(), partyID, payload, clientMomentID)
	if err != nil {
		var rateErr *moments.RateLimitError
		var payloadErr *moments.InvalidPayloadError
		switch {
		case errors.Is(err, moments.ErrNotPaired):
			h.emitAudit(c, "ERROR", "send refused, not paired")
			c.JSON(http.StatusForbidden, gin.H{"error": "not paired"})
		case errors.As(err, &rateErr):
			h.emitAudit(c, "ERROR", "send refused, daily limit reached")
			c.Header("X-RateLimit-Limit", strconv.Itoa(rateErr.Limit))
			c.Header("X-RateLimit-Remaining", "0")
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "daily send limit reached"})
		case errors.As(err, &payloadErr):
			h.emitAudit(c, "ERROR", "invalid photo payload")
			c.JSON(http.StatusBadRequest, gin.H{"error": payloadErr.Reason})
		default:
			h.emitAudit(c, "ERROR", "internal error")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not deliver moment"})
		}
		return
	}

	h.emitAudit(c, "INFO", "Moment submitted")
	c.JSON(http.StatusCreated, receipt)
}

// Latest handles GET /moments/latest: the live moment of the caller's
// pairing, if any.
func (h *MomentHandler) Latest(c *gin.Context) {
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

	moment, err := h.momentRepo.LatestForPairing(c.Request.Context(), pairing.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrMomentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no moment"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "moment lookup failed"})
		return
	}

	senderName := moment.SenderID
	if sender, err := h.partyRepo.Get(c.Request.Context(), moment.SenderID); err == nil {
		senderName = sender.DisplayName
	}

	c.JSON(http.StatusOK, gin.H{
		"moment_id":   moment.ID,
		"sender_id":   moment.SenderID,
		"sender_name": senderName,
		"photo":       base64.StdEncoding.EncodeToString(moment.Payload),
		"created_at":  moment.CreatedAt,
	})
}

func (h *MomentHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), partyIDFromContext(c))
}

func readUpload(c *gin.Context) ([]byte, string, error) {
	clientMomentID := c.GetHeader("X-Client-Moment-ID")

	if file, err := c.FormFile("photo"); err == nil {
		f, err := file.Open()
		if err != nil {
			return nil, "", err
		}
		defer f.Close()
		payload, err := io.ReadAll(f)
		if err != nil {
			return nil, "", err
		}
		if clientMomentID == "" {
			clientMomentID = c.PostForm("client_moment_id")
		}
		return payload, clientMomentID, nil
	}

	var req struct {
		Photo          string `json:"photo" binding:"required"`
		ClientMomentID string `json:"client_moment_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", err
	}
	payload, err := base64.StdEncoding.DecodeString(req.Photo)
	if err != nil {
		return nil, "", errors.New("photo is not valid base64")
	}
	if clientMomentID == "" {
		clientMomentID = req.ClientMomentID
	}
	return payload, clientMomentID, nil
}
