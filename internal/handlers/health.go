package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"moment-service/internal/repositories"
)

// DBPinger is the slice of *sqlx.DB the health check needs.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// ConnectionCounter reports how many parties hold a live channel.
type ConnectionCounter interface {
	ActiveCount() int
}

// Health reports db reachability plus the party and active-connection
// counts.
func Health(db DBPinger, parties repositories.PartyRepository, hub ConnectionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
			return
		}
		partyCount, err := parties.Count(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":             "ok",
			"parties":            partyCount,
			"active_connections": hub.ActiveCount(),
		})
	}
}
