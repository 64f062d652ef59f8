package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"moment-service/internal/middleware"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func partyIDFromContext(c *gin.Context) *string {
	if val, ok := c.Get(middleware.PartyIDKey); ok {
		if partyID, ok := val.(string); ok && partyID != "" {
			return &partyID
		}
	}

	if header := c.GetHeader("X-Party-ID"); header != "" {
		value := header
		return &value
	}

	return nil
}
