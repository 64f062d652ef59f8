package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

type rateRecord struct {
	count     int
	resetTime time.Time
}

// RateLimiter is a fixed-window request limiter keyed by party id when
// authenticated, falling back to client IP. This guards the HTTP
// surface; the per-day moment send policy lives in the pipeline.
type RateLimiter struct {
	mu          sync.Mutex
	records     map[string]*rateRecord
	window      time.Duration
	maxRequests int
}

// NewRateLimiter constructs a limiter and starts its cleanup loop.
func NewRateLimiter(window time.Duration, maxRequests int) *RateLimiter {
	rl := &RateLimiter{
		records:     make(map[string]*rateRecord),
		window:      window,
		maxRequests: maxRequests,
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		rl.mu.Lock()
		for key, record := range rl.records {
			if now.After(record.resetTime) {
				delete(rl.records, key)
			}
		}
		rl.mu.Unlock()
	}
}

// Middleware returns the gin handler enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if partyID := c.GetString(PartyIDKey); partyID != "" {
			key = "party:" + partyID
		}

		now := time.Now()
		rl.mu.Lock()
		record, ok := rl.records[key]
		if !ok || now.After(record.resetTime) {
			rl.records[key] = &rateRecord{count: 1, resetTime: now.Add(rl.window)}
			rl.mu.Unlock()
			c.Next()
			return
		}
		record.count++
		count := record.count
		resetTime := record.resetTime
		rl.mu.Unlock()

		if count > rl.maxRequests {
			retryAfter := int(time.Until(resetTime).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many requests",
				"retry_after": retryAfter,
			})
			return
		}
		c.Next()
	}
}
