// Package media merges asynchronously-arriving remote tracks into one
// presentable stream and detects first-frame readiness.
package media

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

// rtpReader is the read side of a remote track. *webrtc.TrackRemote
// satisfies it.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Aggregator collects incoming tracks keyed by kind. Readiness is the
// first successfully read payload from the composite stream, not mere
// track arrival: a track can be present but silent or black.
type Aggregator struct {
	sid       domain.SessionID
	audioOnly bool
	sink      core.RenderSink

	mu           sync.Mutex
	readers      map[webrtc.RTPCodecType]context.CancelFunc
	firstFrameAt time.Time
	stopped      bool

	videoEnabled atomic.Bool

	readyOnce sync.Once
	ready     chan struct{}
	wg        sync.WaitGroup
}

func NewAggregator(sid domain.SessionID, audioOnly bool, sink core.RenderSink) *Aggregator {
	a := &Aggregator{
		sid:       sid,
		audioOnly: audioOnly,
		sink:      sink,
		readers:   make(map[webrtc.RTPCodecType]context.CancelFunc),
		ready:     make(chan struct{}),
	}
	a.videoEnabled.Store(true)
	return a
}

// Ready is closed after the first frame (or first audio sample in
// audio-only mode) has been read from the composite stream.
func (a *Aggregator) Ready() <-chan struct{} { return a.ready }

// FirstFrameAt returns when readiness was declared, zero if never.
func (a *Aggregator) FirstFrameAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.firstFrameAt
}

// SetVideoEnabled pauses or resumes video forwarding. Degraded mode
// drops video and keeps audio; the track stays subscribed so recovery
// is instant.
func (a *Aggregator) SetVideoEnabled(enabled bool) {
	a.videoEnabled.Store(enabled)
	log.Info().Str("module", "media").Str("sid", string(a.sid)).Bool("video", enabled).Msg("video forwarding toggled")
}

// AddTrack registers one arriving remote track and starts its read
// loop. A replacement track of the same kind supersedes the old one.
func (a *Aggregator) AddTrack(ctx context.Context, track *webrtc.TrackRemote) {
	if a.sink != nil {
		a.sink.AttachTrack(track)
	}
	a.addSource(ctx, track.Kind(), track, track.ID())
}

func (a *Aggregator) addSource(ctx context.Context, kind webrtc.RTPCodecType, src rtpReader, trackID string) {
	logger := log.With().
		Str("module", "media").
		Str("sid", string(a.sid)).
		Str("kind", kind.String()).
		Str("track_id", trackID).
		Logger()

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		logger.Warn().Msg("track arrived after teardown, ignoring")
		return
	}
	if cancelOld, ok := a.readers[kind]; ok {
		logger.Info().Msg("replacing existing track for kind")
		cancelOld()
	}
	readCtx, cancel := context.WithCancel(ctx)
	a.readers[kind] = cancel
	a.wg.Add(1)
	a.mu.Unlock()

	logger.Info().Msg("starting track read loop")
	go a.loop(readCtx, src, kind, &logger)
}

// loop reads RTP packets from one track and forwards payloads to the
// render sink.
func (a *Aggregator) loop(ctx context.Context, src rtpReader, kind webrtc.RTPCodecType, logger *zerolog.Logger) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("track read loop ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			logger.Error().Err(err).Msg("track read error, stopping loop")
			return
		}
		if len(pkt.Payload) == 0 {
			continue
		}
		if kind == webrtc.RTPCodecTypeVideo && !a.videoEnabled.Load() {
			continue
		}
		a.markFrame(kind)
		if a.sink != nil {
			a.sink.OnFrame(kind, pkt.Payload)
		}
	}
}

func (a *Aggregator) markFrame(kind webrtc.RTPCodecType) {
	readinessKind := webrtc.RTPCodecTypeVideo
	if a.audioOnly {
		readinessKind = webrtc.RTPCodecTypeAudio
	}
	if kind != readinessKind {
		return
	}
	a.readyOnce.Do(func() {
		a.mu.Lock()
		a.firstFrameAt = time.Now()
		a.mu.Unlock()
		close(a.ready)
		log.Info().Str("module", "media").Str("sid", string(a.sid)).Str("kind", kind.String()).Msg("first frame, stream ready")
	})
}

// Stop cancels every read loop, waits them out, and detaches the sink.
// Every owned track must be stopped before the aggregator counts as
// cleaned. The transport must be closed first so blocked reads unstick.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	for _, cancel := range a.readers {
		cancel()
	}
	a.readers = make(map[webrtc.RTPCodecType]context.CancelFunc)
	a.mu.Unlock()

	a.wg.Wait()
	if a.sink != nil {
		a.sink.Detach()
	}
	log.Info().Str("module", "media").Str("sid", string(a.sid)).Msg("aggregator stopped")
}
