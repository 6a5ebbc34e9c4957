package orch

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

// Start begins session establishment. Calling it while a session is
// active (or still starting) is a no-op, never a second session. If a
// teardown is in flight, Start waits for it before beginning.
func (o *Orchestrator) Start(ctx context.Context, params domain.SessionParams) error {
	for {
		o.mu.Lock()
		if o.starting || o.state.Active() {
			o.mu.Unlock()
			log.Info().Str("module", "orch").Msg("start ignored, session already active")
			return nil
		}
		if !o.cleaning {
			break
		}
		ch := o.reaped
		o.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	o.starting = true
	o.lastErr = nil
	o.gen++
	gen := o.gen
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	// Session and TrackSet come into existence together; the reaper
	// destroys them together.
	o.session = &domain.Session{
		AvatarID:  params.AvatarID,
		VoiceID:   params.VoiceID,
		Quality:   params.Quality,
		CreatedAt: time.Now(),
	}
	o.agg = o.aggFactory("", params.AudioOnly, o.sink)
	o.mu.Unlock()

	o.setState(gen, core.StateInitiating)
	o.debug.Append("start", core.DebugPending, "establishing session")
	go o.run(runCtx, gen, params)
	return nil
}

// Stop tears the session down. Idempotent and always safe, including
// while Start is still in flight; late results are discarded.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	gen := o.gen
	o.mu.Unlock()
	o.reap(gen, core.StateEnded, nil)
}

// run is one establishment attempt. Every await is followed by a
// generation check; a stale result is discarded, never applied.
func (o *Orchestrator) run(ctx context.Context, gen uint64, params domain.SessionParams) {
	cred, fromPrewarm := o.prewarm.Take()
	if fromPrewarm {
		o.debug.Append("get-credential", core.DebugSuccess, "prewarmed")
	} else {
		o.debug.Append("get-credential", core.DebugPending, "")
		err := o.retry.Do(ctx, "get-credential", func(ctx context.Context) error {
			c, err := o.signaler.GetCredential(ctx)
			if err != nil {
				return err
			}
			cred = c
			return nil
		})
		if err != nil {
			o.debug.Append("get-credential", core.DebugError, err.Error())
			o.fail(gen, err)
			return
		}
		o.debug.Append("get-credential", core.DebugSuccess, "")
	}
	if !o.validGen(gen) {
		return
	}

	o.debug.Append("create-session", core.DebugPending, "")
	var res core.CreateResult
	err := o.retry.Do(ctx, "create-session", func(ctx context.Context) error {
		r, err := o.signaler.CreateSession(ctx, cred, params)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		o.debug.Append("create-session", core.DebugError, err.Error())
		o.fail(gen, err)
		return
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		// The session was created after Stop won the race; release the
		// orphan here, the reaper never saw its id.
		o.releaseOrphan(res.SessionID)
		return
	}
	o.session.ID = res.SessionID
	o.mu.Unlock()
	o.debug.Append("create-session", core.DebugSuccess, string(res.SessionID))

	if !o.setState(gen, core.StateConnecting) {
		return
	}

	o.debug.Append("negotiate", core.DebugPending, "")
	mc, err := o.negotiate(ctx, res)
	if err != nil {
		o.debug.Append("negotiate", core.DebugError, err.Error())
		o.fail(gen, err)
		return
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		mc.Close()
		return
	}
	o.media = mc
	agg := o.agg
	o.mu.Unlock()
	o.debug.Append("negotiate", core.DebugSuccess, "")

	if o.monitor != nil {
		go o.monitor.Run(ctx)
	}

	o.eventLoop(ctx, gen, mc, agg)
}

// negotiate performs the offer/answer exchange. Each retry attempt
// discards the partially-negotiated transport and builds a fresh one;
// partial state is never resumed.
func (o *Orchestrator) negotiate(ctx context.Context, res core.CreateResult) (core.MediaConnection, error) {
	var mc core.MediaConnection
	sid := res.SessionID

	err := o.retry.Do(ctx, "negotiate", func(ctx context.Context) error {
		conn, err := o.transport(res.ICEServers, sid)
		if err != nil {
			return core.NewNegotiationError(err)
		}
		conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
			// Best-effort; a lost candidate never aborts the session.
			if err := o.signaler.SubmitCandidate(ctx, sid, ci); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("candidate submit failed")
				o.debug.Append("ice-candidate", core.DebugError, err.Error())
			}
		})
		if err := conn.Start(ctx); err != nil {
			conn.Close()
			return core.NewNegotiationError(err)
		}
		answer, err := conn.AnswerOffer(res.RemoteOffer)
		if err != nil {
			conn.Close()
			return core.NewNegotiationError(err)
		}
		if err := o.signaler.StartSession(ctx, sid, *answer); err != nil {
			conn.Close()
			return err
		}
		mc = conn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mc, nil
}

// Speak sends text for the avatar to voice; see speech.Coordinator.
func (o *Orchestrator) Speak(ctx context.Context, text string) error {
	return o.speech.Speak(ctx, text)
}

// Interrupt stops the current avatar speech.
func (o *Orchestrator) Interrupt(ctx context.Context) error {
	return o.speech.Interrupt(ctx)
}

// Gesture plays an avatar gesture, fire-and-forget.
func (o *Orchestrator) Gesture(ctx context.Context, kind string) error {
	return o.speech.Gesture(ctx, kind)
}

// SetEmotion switches the avatar emotion, fire-and-forget.
func (o *Orchestrator) SetEmotion(ctx context.Context, kind string) error {
	return o.speech.SetEmotion(ctx, kind)
}

// SetListening toggles the avatar listening pose, fire-and-forget.
func (o *Orchestrator) SetListening(ctx context.Context, listening bool) error {
	return o.speech.SetListening(ctx, listening)
}

// NotifyNetworkChange requests an immediate quality sample.
func (o *Orchestrator) NotifyNetworkChange() {
	if o.monitor != nil {
		o.monitor.Poke()
	}
}
