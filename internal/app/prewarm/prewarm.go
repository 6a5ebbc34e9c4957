// Package prewarm speculatively fetches a credential before the user
// asks for a session, cutting perceived start latency.
package prewarm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
)

// Entry is one prewarmed credential. Single-use: the next Start
// consumes it exactly once, then it is discarded.
type Entry struct {
	Credential core.Credential
	WarmedAt   time.Time
}

// Cache holds at most one prewarmed entry per orchestrator instance
// and is never shared across instances.
type Cache struct {
	signaler core.Signaler
	ttl      time.Duration

	mu      sync.Mutex
	entry   *Entry
	warming bool
}

func NewCache(signaler core.Signaler, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{signaler: signaler, ttl: ttl}
}

// Warm fetches a credential ahead of Start. Concurrent calls collapse
// into one fetch; an existing fresh entry is kept.
func (c *Cache) Warm(ctx context.Context) {
	c.mu.Lock()
	if c.warming || (c.entry != nil && c.fresh(c.entry)) {
		c.mu.Unlock()
		return
	}
	c.warming = true
	c.mu.Unlock()

	cred, err := c.signaler.GetCredential(ctx)

	c.mu.Lock()
	c.warming = false
	if err != nil {
		// Prewarm is best-effort; Start falls back to a live fetch.
		c.mu.Unlock()
		log.Warn().Err(err).Str("module", "prewarm").Msg("credential prewarm failed")
		return
	}
	c.entry = &Entry{Credential: cred, WarmedAt: time.Now()}
	c.mu.Unlock()
	log.Info().Str("module", "prewarm").Msg("credential prewarmed")
}

// Take consumes the prewarmed credential if one is fresh. The entry is
// removed either way; a stale entry is never handed out and never
// reused for a second session.
func (c *Cache) Take() (core.Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := c.entry
	c.entry = nil
	if entry == nil {
		return core.Credential{}, false
	}
	if !c.fresh(entry) {
		log.Info().Str("module", "prewarm").Msg("prewarmed credential expired, discarding")
		return core.Credential{}, false
	}
	return entry.Credential, true
}

// Discard drops any held entry, used on teardown.
func (c *Cache) Discard() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func (c *Cache) fresh(e *Entry) bool {
	if time.Since(e.WarmedAt) > c.ttl {
		return false
	}
	return !e.Credential.Expired(time.Now())
}
