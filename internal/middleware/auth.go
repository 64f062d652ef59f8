package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"moment-service/internal/auth"
	"moment-service/internal/repositories"
)

// PartyIDKey is the gin context key holding the authenticated party id.
const PartyIDKey = "partyID"

// AuthMiddleware validates the Authorization header and upserts the
// party on first authenticated touch.
func AuthMiddleware(verifier auth.TokenVerifier, partyRepo repositories.PartyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := verifier.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		if _, err := partyRepo.Upsert(c.Request.Context(), identity.PartyID, identity.DisplayName); err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve party"})
			return
		}

		c.Set(PartyIDKey, identity.PartyID)
		c.Next()
	}
}
