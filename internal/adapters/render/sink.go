// Package render provides a diagnostics render sink. A real UI layer
// supplies its own core.RenderSink; this one only counts what flows
// through the composite stream.
package render

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Stats is a snapshot of the composite stream for the debug surface.
type Stats struct {
	Attached    bool      `json:"attached"`
	AudioTracks int       `json:"audio_tracks"`
	VideoTracks int       `json:"video_tracks"`
	AudioFrames uint64    `json:"audio_frames"`
	VideoFrames uint64    `json:"video_frames"`
	LastFrameAt time.Time `json:"last_frame_at"`
}

// StatsSink implements core.RenderSink by accounting frames instead of
// rendering them.
type StatsSink struct {
	mu    sync.Mutex
	stats Stats
}

func NewStatsSink() *StatsSink { return &StatsSink{} }

func (s *StatsSink) AttachTrack(track *webrtc.TrackRemote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Attached = true
	switch track.Kind() {
	case webrtc.RTPCodecTypeAudio:
		s.stats.AudioTracks++
	case webrtc.RTPCodecTypeVideo:
		s.stats.VideoTracks++
	}
	log.Info().Str("module", "render").Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("track attached")
}

func (s *StatsSink) OnFrame(kind webrtc.RTPCodecType, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		s.stats.AudioFrames++
	case webrtc.RTPCodecTypeVideo:
		s.stats.VideoFrames++
	}
	s.stats.LastFrameAt = time.Now()
}

func (s *StatsSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Attached = false
	log.Info().Str("module", "render").Msg("stream detached")
}

func (s *StatsSink) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
