package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// CommandRateLimiter bounds avatar commands per client token with a
// sliding window, so a misbehaving UI cannot flood the backend.
type CommandRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
}

func NewCommandRateLimiter(limit int, interval time.Duration) *CommandRateLimiter {
	return &CommandRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
	}
}

func (rl *CommandRateLimiter) Allow(token string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[token]

	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[token] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[token] = fresh

	return true
}

// Middleware rejects over-limit command requests with 429.
func (rl *CommandRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.GetString("client_token")) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many commands"})
			return
		}
		c.Next()
	}
}
