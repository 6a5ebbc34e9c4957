package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	rl := NewCommandRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("tok"))
	}
	assert.False(t, rl.Allow("tok"))
}

func TestRateLimiterIsolatesTokens(t *testing.T) {
	rl := NewCommandRateLimiter(1, time.Minute)

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewCommandRateLimiter(2, 20*time.Millisecond)

	assert.True(t, rl.Allow("tok"))
	assert.True(t, rl.Allow("tok"))
	assert.False(t, rl.Allow("tok"))

	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("tok"))
}
