// Package retry wraps named fallible startup steps in a bounded
// exponential-backoff policy.
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
)

const DefaultAttempts = 3

// Controller runs named steps with bounded retries. Concurrent calls
// for the same step name join the single in-flight run instead of
// invoking the step again, which keeps application-level idempotency
// (retrying create-session never creates two remote sessions).
type Controller struct {
	attempts int
	// base delay unit; delay before attempt n is base << n.
	base time.Duration

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	done chan struct{}
	err  error
}

func NewController(attempts int, base time.Duration) *Controller {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if base <= 0 {
		base = time.Second
	}
	return &Controller{
		attempts: attempts,
		base:     base,
		inflight: make(map[string]*call),
	}
}

// Do runs step until it succeeds, fails permanently, runs out of
// attempts, or ctx is canceled. Each attempt is independent; the
// step must not reuse partial state from a failed attempt.
func (c *Controller) Do(ctx context.Context, name string, step func(ctx context.Context) error) error {
	c.mu.Lock()
	if cl, ok := c.inflight[name]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[name] = cl
	c.mu.Unlock()

	cl.err = c.run(ctx, name, step)

	c.mu.Lock()
	delete(c.inflight, name)
	c.mu.Unlock()
	close(cl.done)
	return cl.err
}

func (c *Controller) run(ctx context.Context, name string, step func(ctx context.Context) error) error {
	logger := log.With().Str("module", "retry").Str("step", name).Logger()

	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if attempt > 1 {
			delay := c.base << attempt // 2^n of the base unit
			logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("backing off before retry")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err = step(ctx)
		if err == nil {
			return nil
		}
		if !core.IsTransient(err) {
			logger.Error().Err(err).Int("attempt", attempt).Msg("non-retryable failure")
			return err
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("transient failure")
	}
	logger.Error().Err(err).Int("attempts", c.attempts).Msg("retries exhausted")
	return err
}
