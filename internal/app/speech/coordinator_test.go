package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

type sentCommand struct {
	Kind    domain.CommandKind
	Payload string
}

type fakeSignaler struct {
	mu       sync.Mutex
	commands []sentCommand
	fail     map[domain.CommandKind]error
}

func (f *fakeSignaler) GetCredential(context.Context) (core.Credential, error) {
	return core.Credential{}, nil
}
func (f *fakeSignaler) CreateSession(context.Context, core.Credential, domain.SessionParams) (core.CreateResult, error) {
	return core.CreateResult{}, nil
}
func (f *fakeSignaler) StartSession(context.Context, domain.SessionID, webrtc.SessionDescription) error {
	return nil
}
func (f *fakeSignaler) SubmitCandidate(context.Context, domain.SessionID, webrtc.ICECandidateInit) error {
	return nil
}
func (f *fakeSignaler) StopSession(context.Context, domain.SessionID) error { return nil }
func (f *fakeSignaler) Events() <-chan core.RemoteEvent                     { return nil }

func (f *fakeSignaler) SendCommand(_ context.Context, _ domain.SessionID, kind domain.CommandKind, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[kind]; ok {
		return err
	}
	f.commands = append(f.commands, sentCommand{Kind: kind, Payload: payload})
	return nil
}

func (f *fakeSignaler) sent() []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentCommand, len(f.commands))
	copy(out, f.commands)
	return out
}

func newCoordinator(sig *fakeSignaler, state core.ConnectionState) *Coordinator {
	return NewCoordinator(sig,
		func() core.ConnectionState { return state },
		func() domain.SessionID { return "sid-1" },
		10*time.Millisecond, 50*time.Millisecond)
}

func TestSpeakRejectedWhenNotActive(t *testing.T) {
	for _, state := range []core.ConnectionState{core.StateIdle, core.StateInitiating, core.StateConnecting, core.StateReconnecting, core.StateEnded, core.StateError} {
		t.Run(state.String(), func(t *testing.T) {
			c := newCoordinator(&fakeSignaler{}, state)
			err := c.Speak(context.Background(), "hello")
			require.ErrorIs(t, err, core.ErrNotActive)
		})
	}
}

func TestSpeakAllowedWhileDegraded(t *testing.T) {
	sig := &fakeSignaler{}
	c := newCoordinator(sig, core.StateDegraded)
	require.NoError(t, c.Speak(context.Background(), "hello"))
}

func TestDoubleSpeakInterruptsFirst(t *testing.T) {
	sig := &fakeSignaler{}
	c := newCoordinator(sig, core.StateConnected)

	require.NoError(t, c.Speak(context.Background(), "Hello"))
	require.NoError(t, c.Speak(context.Background(), "World"))

	got := sig.sent()
	require.Len(t, got, 3)
	assert.Equal(t, domain.CommandSpeak, got[0].Kind)
	assert.Equal(t, domain.CommandInterrupt, got[1].Kind, "exactly one interrupt precedes the second speak")
	assert.Equal(t, domain.CommandSpeak, got[2].Kind)
	assert.Equal(t, "World", got[2].Payload)
}

func TestSpeakingFlagExpires(t *testing.T) {
	sig := &fakeSignaler{}
	c := newCoordinator(sig, core.StateConnected)

	require.NoError(t, c.Speak(context.Background(), "hi"))
	assert.True(t, c.IsSpeaking())
	assert.True(t, c.SpeakingEstimated())

	// minimum is 50ms for a two-char text
	time.Sleep(80 * time.Millisecond)
	assert.False(t, c.IsSpeaking())

	// No interrupt needed for the next speak once expired.
	require.NoError(t, c.Speak(context.Background(), "again"))
	for _, cmd := range sig.sent() {
		assert.NotEqual(t, domain.CommandInterrupt, cmd.Kind)
	}
}

func TestEstimateUsesPerCharAboveMinimum(t *testing.T) {
	sig := &fakeSignaler{}
	c := newCoordinator(sig, core.StateConnected)

	long := make([]byte, 100) // 100 chars * 10ms = 1s > 50ms minimum
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, c.Speak(context.Background(), string(long)))
	rec, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, time.Second, rec.EstimatedMs)
}

func TestRemoteSpeechStoppedClearsEarly(t *testing.T) {
	sig := &fakeSignaler{}
	c := newCoordinator(sig, core.StateConnected)

	require.NoError(t, c.Speak(context.Background(), "a long enough sentence"))
	require.True(t, c.IsSpeaking())

	c.OnRemoteEvent(core.RemoteEvent{Kind: core.RemoteSpeechStopped})
	assert.False(t, c.IsSpeaking())
}

func TestInterruptClearsEvenWhenSendFails(t *testing.T) {
	sig := &fakeSignaler{fail: map[domain.CommandKind]error{
		domain.CommandInterrupt: &core.CommandError{Kind: "interrupt", Err: errors.New("backend hiccup")},
	}}
	c := newCoordinator(sig, core.StateConnected)

	require.NoError(t, c.Speak(context.Background(), "hello there"))
	require.NoError(t, c.Interrupt(context.Background()))
	assert.False(t, c.IsSpeaking())
}

func TestGestureRejectedWhenNotActive(t *testing.T) {
	c := newCoordinator(&fakeSignaler{}, core.StateConnecting)
	err := c.Gesture(context.Background(), "wave")
	require.ErrorIs(t, err, core.ErrNotActive)
}

func TestFireAndForgetCommandsDoNotBlock(t *testing.T) {
	sig := &fakeSignaler{}
	c := newCoordinator(sig, core.StateConnected)

	require.NoError(t, c.Gesture(context.Background(), "wave"))
	require.NoError(t, c.SetEmotion(context.Background(), "happy"))
	require.NoError(t, c.SetListening(context.Background(), true))

	assert.Eventually(t, func() bool {
		return len(sig.sent()) == 3
	}, time.Second, 5*time.Millisecond)
}
