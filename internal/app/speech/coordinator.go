// Package speech serializes avatar speak/gesture/emotion commands and
// tracks an estimated speaking flag.
package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

const (
	DefaultPerChar = 60 * time.Millisecond
	DefaultMinimum = 1500 * time.Millisecond
)

// Coordinator issues avatar commands through the signaler. Speech
// completion is an estimate derived from text length; the remote side
// may shorten it with an explicit speech-stopped event, but there is
// no positive acknowledgement of playback completion.
type Coordinator struct {
	signaler core.Signaler
	// state reports the authoritative connection state; commands are
	// rejected unless it is connected or degraded.
	state   func() core.ConnectionState
	session func() domain.SessionID

	perChar time.Duration
	minimum time.Duration

	mu       sync.Mutex
	current  *domain.CommandRecord
	deadline time.Time
}

func NewCoordinator(signaler core.Signaler, state func() core.ConnectionState, session func() domain.SessionID, perChar, minimum time.Duration) *Coordinator {
	if perChar <= 0 {
		perChar = DefaultPerChar
	}
	if minimum <= 0 {
		minimum = DefaultMinimum
	}
	return &Coordinator{
		signaler: signaler,
		state:    state,
		session:  session,
		perChar:  perChar,
		minimum:  minimum,
	}
}

func (c *Coordinator) active() (domain.SessionID, error) {
	s := c.state()
	if s != core.StateConnected && s != core.StateDegraded {
		return "", fmt.Errorf("%w: state %s", core.ErrNotActive, s)
	}
	return c.session(), nil
}

// Speak sends a speak command. A speak still estimated in-flight is
// interrupted first, so the avatar never talks over itself.
func (c *Coordinator) Speak(ctx context.Context, text string) error {
	sid, err := c.active()
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.speakingLocked() {
		log.Info().Str("module", "speech").Str("sid", string(sid)).Msg("interrupting in-flight speak")
		if err := c.signaler.SendCommand(ctx, sid, domain.CommandInterrupt, ""); err != nil {
			// Interrupt failures are absorbed; the new speak proceeds.
			log.Warn().Err(err).Str("module", "speech").Str("sid", string(sid)).Msg("interrupt before speak failed")
		}
		c.clearLocked()
	}

	if err := c.signaler.SendCommand(ctx, sid, domain.CommandSpeak, text); err != nil {
		return err
	}

	est := time.Duration(len(text)) * c.perChar
	if est < c.minimum {
		est = c.minimum
	}
	now := time.Now()
	c.current = &domain.CommandRecord{
		Kind:        domain.CommandSpeak,
		Payload:     text,
		IssuedAt:    now,
		EstimatedMs: est,
	}
	c.deadline = now.Add(est)
	return nil
}

// Interrupt stops the current speech. Failures are ignored per the
// signaling contract; the local flag clears regardless.
func (c *Coordinator) Interrupt(ctx context.Context) error {
	sid, err := c.active()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.signaler.SendCommand(ctx, sid, domain.CommandInterrupt, ""); err != nil {
		log.Warn().Err(err).Str("module", "speech").Str("sid", string(sid)).Msg("interrupt failed")
	}
	c.clearLocked()
	return nil
}

// Gesture is fire-and-forget and never changes connection state.
func (c *Coordinator) Gesture(ctx context.Context, kind string) error {
	return c.fireAndForget(ctx, domain.CommandGesture, kind)
}

// SetEmotion is fire-and-forget and never changes connection state.
func (c *Coordinator) SetEmotion(ctx context.Context, kind string) error {
	return c.fireAndForget(ctx, domain.CommandEmotion, kind)
}

// SetListening toggles the avatar listening pose, fire-and-forget.
func (c *Coordinator) SetListening(ctx context.Context, listening bool) error {
	v := "false"
	if listening {
		v = "true"
	}
	return c.fireAndForget(ctx, domain.CommandListening, v)
}

func (c *Coordinator) fireAndForget(ctx context.Context, kind domain.CommandKind, payload string) error {
	sid, err := c.active()
	if err != nil {
		return err
	}
	go func() {
		if err := c.signaler.SendCommand(ctx, sid, kind, payload); err != nil {
			log.Warn().Err(err).Str("module", "speech").Str("sid", string(sid)).Str("kind", string(kind)).Msg("command failed")
		}
	}()
	return nil
}

// OnRemoteEvent clears the speaking flag early when the backend
// reports speech stopped.
func (c *Coordinator) OnRemoteEvent(ev core.RemoteEvent) {
	if ev.Kind != core.RemoteSpeechStopped {
		return
	}
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
	log.Info().Str("module", "speech").Msg("remote reported speech stopped")
}

// IsSpeaking reports whether a speak is still estimated in-flight.
func (c *Coordinator) IsSpeaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speakingLocked()
}

// SpeakingEstimated is always true: the flag is derived from elapsed
// time, not an acknowledgement from the far end.
func (c *Coordinator) SpeakingEstimated() bool { return true }

// Current returns a copy of the in-flight speak record, if any.
func (c *Coordinator) Current() (domain.CommandRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil || !c.speakingLocked() {
		return domain.CommandRecord{}, false
	}
	return *c.current, true
}

// Reset drops any in-flight record, used on session teardown.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.clearLocked()
	c.mu.Unlock()
}

func (c *Coordinator) speakingLocked() bool {
	return c.current != nil && time.Now().Before(c.deadline)
}

func (c *Coordinator) clearLocked() {
	c.current = nil
	c.deadline = time.Time{}
}
