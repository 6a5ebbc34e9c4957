package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

// fail routes an establishment or transport failure into the reaper,
// producing exactly one terminal error notification for the attempt.
func (o *Orchestrator) fail(gen uint64, err error) {
	log.Error().Err(err).Str("module", "orch").Msg("session failed")
	o.debug.Append("failure", core.DebugError, err.Error())
	o.reap(gen, core.StateError, err)
}

// reap is the only path that releases the transport, stops the track
// readers, and notifies the backend. Stop, the failure handler, and
// remote-close all route through it. Reentrant-safe: a concurrent
// invocation waits for the in-flight cleanup instead of double-freeing.
func (o *Orchestrator) reap(gen uint64, target core.ConnectionState, cause error) {
	o.mu.Lock()
	if gen != o.gen {
		// A newer attempt owns the resources now; stale reaps are no-ops.
		o.mu.Unlock()
		return
	}
	if o.cleaning {
		ch := o.reaped
		o.mu.Unlock()
		<-ch
		return
	}
	o.cleaning = true
	o.reaped = make(chan struct{})
	done := o.reaped
	// Advancing the generation here atomically invalidates every
	// in-flight async result; a credential or negotiation completing
	// after this point is discarded, never applied.
	o.gen++
	newGen := o.gen
	session := o.session
	media := o.media
	agg := o.agg
	cancel := o.cancel
	o.session = nil
	o.media = nil
	o.agg = nil
	o.cancel = nil
	o.starting = false
	o.lastErr = cause
	o.mu.Unlock()

	o.debug.Append("cleanup", core.DebugPending, "")

	if cancel != nil {
		cancel()
	}
	// Close the transport before stopping the aggregator so blocked
	// track reads unstick.
	if media != nil {
		media.Close()
	}
	if agg != nil {
		agg.Stop()
	}
	o.speech.Reset()
	o.prewarm.Discard()

	if session != nil && session.ID != "" {
		o.releaseOrphan(session.ID)
	}

	o.setState(newGen, target)
	o.debug.Append("cleanup", core.DebugSuccess, "")

	o.mu.Lock()
	o.cleaning = false
	o.mu.Unlock()
	close(done)
}

// releaseOrphan notifies the backend that a session is gone.
// Best-effort: teardown always succeeds from the caller's view, and a
// broken local transport never blocks it.
func (o *Orchestrator) releaseOrphan(sid domain.SessionID) {
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.StopWait)
	defer cancel()
	if err := o.signaler.StopSession(ctx, sid); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("stop-session failed")
		o.debug.Append("stop-session", core.DebugError, err.Error())
		return
	}
	o.debug.Append("stop-session", core.DebugSuccess, string(sid))
}
