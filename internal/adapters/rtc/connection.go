package rtc

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

// Connection owns exactly one PeerConnection and translates its raw
// callbacks into the closed core.TransportEvent set. Track arrival is
// forwarded without judgment; it is not connection readiness.
type Connection struct {
	pc     *webrtc.PeerConnection
	sid    domain.SessionID
	onICE  func(webrtc.ICECandidateInit)
	events chan core.TransportEvent
	cancel context.CancelFunc

	closeOnce sync.Once
}

func DefaultWebRTCConfig(servers []webrtc.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		servers = []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		}
	}
	return webrtc.Configuration{ICEServers: servers}
}

func NewConnection(cfg webrtc.Configuration, sid domain.SessionID) (*Connection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{
		pc:     pc,
		sid:    sid,
		events: make(chan core.TransportEvent, 16),
	}, nil
}

// NewMediaConnection is the core.TransportFactory for production use.
func NewMediaConnection(servers []webrtc.ICEServer, sid domain.SessionID) (core.MediaConnection, error) {
	return NewConnection(DefaultWebRTCConfig(servers), sid)
}

func (c *Connection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		switch s {
		case webrtc.PeerConnectionStateConnected:
			c.emit(ctx, core.TransportEvent{Kind: core.TransportConnected})
		case webrtc.PeerConnectionStateDisconnected:
			c.emit(ctx, core.TransportEvent{Kind: core.TransportDisconnected})
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			c.emit(ctx, core.TransportEvent{Kind: core.TransportFailed})
		}
	})

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "rtc").
			Str("sid", string(c.sid)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.emit(ctx, core.TransportEvent{Kind: core.TrackArrived, Track: track})
	})

	return nil
}

func (c *Connection) emit(ctx context.Context, ev core.TransportEvent) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

// AnswerOffer applies the remote offer and returns the local answer
// once candidate gathering completes.
func (c *Connection) AnswerOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.onICE = fn
}

func (c *Connection) Events() <-chan core.TransportEvent {
	return c.events
}

// Close stops the underlying PeerConnection. Safe to call repeatedly;
// the reaper may race a failure path here.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.pc != nil {
			if err := c.pc.Close(); err != nil {
				log.Error().Err(err).Str("module", "rtc").Str("sid", string(c.sid)).Msg("close error")
			} else {
				log.Info().Str("module", "rtc").Str("sid", string(c.sid)).Msg("closed")
			}
		}
	})
}
