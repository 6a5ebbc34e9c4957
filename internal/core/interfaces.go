package core

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

// Credential is a short-lived token for session creation.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the credential is past its lifetime at now.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// CreateResult is the backend's answer to create-session.
type CreateResult struct {
	SessionID   domain.SessionID
	RemoteOffer webrtc.SessionDescription
	ICEServers  []webrtc.ICEServer
}

// Signaler is the backend-agnostic signaling contract. Every call is
// synchronous from the caller's view, fails with a typed error, and is
// idempotent at the application level.
type Signaler interface {
	// GetCredential obtains a short-lived credential; ErrAuth if the
	// caller is not authenticated.
	GetCredential(ctx context.Context) (Credential, error)
	// CreateSession creates a remote session and returns the offer to answer.
	CreateSession(ctx context.Context, cred Credential, params domain.SessionParams) (CreateResult, error)
	// StartSession submits the local answer.
	StartSession(ctx context.Context, sid domain.SessionID, answer webrtc.SessionDescription) error
	// SubmitCandidate is fire-and-forget; a lost candidate never aborts
	// the session.
	SubmitCandidate(ctx context.Context, sid domain.SessionID, cand webrtc.ICECandidateInit) error
	// SendCommand submits an avatar command (speak, gesture, emotion,
	// listening, interrupt).
	SendCommand(ctx context.Context, sid domain.SessionID, kind domain.CommandKind, payload string) error
	// StopSession is best-effort and must be attempted even when the
	// local transport is already broken.
	StopSession(ctx context.Context, sid domain.SessionID) error
	// Events exposes server-pushed notifications.
	Events() <-chan RemoteEvent
}

// MediaConnection abstracts one negotiated transport.
// Owned by the orchestrator; the reaper must Close() it.
type MediaConnection interface {
	// Start binds internal callbacks and the connection lifetime to ctx.
	Start(ctx context.Context) error
	// AnswerOffer applies the remote offer and returns the local answer.
	AnswerOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(cand webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// Events delivers the closed transport signal set plus track arrivals.
	Events() <-chan TransportEvent
	// Close stops all underlying media resources. Idempotent.
	Close()
}

// TransportFactory builds a MediaConnection for a session attempt.
type TransportFactory func(servers []webrtc.ICEServer, sid domain.SessionID) (MediaConnection, error)

// StreamAggregator merges arriving tracks into one presentable stream.
type StreamAggregator interface {
	AddTrack(ctx context.Context, track *webrtc.TrackRemote)
	// Ready is closed once a first frame/sample has been read.
	Ready() <-chan struct{}
	SetVideoEnabled(enabled bool)
	// Stop halts all track readers; must complete before the session
	// counts as cleaned.
	Stop()
}

// AggregatorFactory builds the aggregator for one session attempt.
type AggregatorFactory func(sid domain.SessionID, audioOnly bool, sink RenderSink) StreamAggregator

// RenderSink is the single attachment point for the composite media
// stream. The consumer owns rendering only, never track lifecycle.
type RenderSink interface {
	// AttachTrack hands one arriving track to the renderer.
	AttachTrack(track *webrtc.TrackRemote)
	// OnFrame receives decoded-payload notifications; informational.
	OnFrame(kind webrtc.RTPCodecType, payload []byte)
	// Detach tells the renderer the stream is gone.
	Detach()
}
