package prewarm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

type credSignaler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *credSignaler) GetCredential(context.Context) (core.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return core.Credential{}, f.err
	}
	return core.Credential{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}
func (f *credSignaler) CreateSession(context.Context, core.Credential, domain.SessionParams) (core.CreateResult, error) {
	return core.CreateResult{}, nil
}
func (f *credSignaler) StartSession(context.Context, domain.SessionID, webrtc.SessionDescription) error {
	return nil
}
func (f *credSignaler) SubmitCandidate(context.Context, domain.SessionID, webrtc.ICECandidateInit) error {
	return nil
}
func (f *credSignaler) SendCommand(context.Context, domain.SessionID, domain.CommandKind, string) error {
	return nil
}
func (f *credSignaler) StopSession(context.Context, domain.SessionID) error { return nil }
func (f *credSignaler) Events() <-chan core.RemoteEvent                     { return nil }

func TestWarmThenTakeIsSingleUse(t *testing.T) {
	sig := &credSignaler{}
	c := NewCache(sig, time.Minute)

	c.Warm(context.Background())
	cred, ok := c.Take()
	require.True(t, ok)
	assert.Equal(t, "tok", cred.Token)

	_, ok = c.Take()
	assert.False(t, ok, "prewarmed credential is consumed exactly once")
}

func TestWarmFailureLeavesCacheEmpty(t *testing.T) {
	sig := &credSignaler{err: core.ErrAuth}
	c := NewCache(sig, time.Minute)

	c.Warm(context.Background())
	_, ok := c.Take()
	assert.False(t, ok)
}

func TestExpiredEntryIsDiscarded(t *testing.T) {
	sig := &credSignaler{}
	c := NewCache(sig, time.Millisecond)

	c.Warm(context.Background())
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Take()
	assert.False(t, ok, "stale entry must not be handed out")
}

func TestWarmKeepsExistingFreshEntry(t *testing.T) {
	sig := &credSignaler{}
	c := NewCache(sig, time.Minute)

	c.Warm(context.Background())
	c.Warm(context.Background())

	sig.mu.Lock()
	defer sig.mu.Unlock()
	assert.Equal(t, 1, sig.calls)
}

func TestDiscard(t *testing.T) {
	sig := &credSignaler{}
	c := NewCache(sig, time.Minute)

	c.Warm(context.Background())
	c.Discard()
	_, ok := c.Take()
	assert.False(t, ok)
}
