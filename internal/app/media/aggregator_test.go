package media

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu      sync.Mutex
	packets []*rtp.Packet
	block   chan struct{}
}

func newFakeReader(payloads ...[]byte) *fakeReader {
	f := &fakeReader{block: make(chan struct{})}
	for _, p := range payloads {
		f.packets = append(f.packets, &rtp.Packet{Payload: p})
	}
	return f
}

func (f *fakeReader) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	f.mu.Lock()
	if len(f.packets) > 0 {
		pkt := f.packets[0]
		f.packets = f.packets[1:]
		f.mu.Unlock()
		return pkt, nil, nil
	}
	f.mu.Unlock()
	<-f.block
	return nil, nil, io.EOF
}

func (f *fakeReader) finish() { close(f.block) }

type fakeSink struct {
	mu       sync.Mutex
	frames   int
	detached bool
}

func (s *fakeSink) AttachTrack(*webrtc.TrackRemote) {}
func (s *fakeSink) OnFrame(webrtc.RTPCodecType, []byte) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}
func (s *fakeSink) Detach() {
	s.mu.Lock()
	s.detached = true
	s.mu.Unlock()
}

func waitReady(t *testing.T, a *Aggregator) {
	t.Helper()
	select {
	case <-a.Ready():
	case <-time.After(time.Second):
		t.Fatal("aggregator never became ready")
	}
}

func TestReadyOnFirstVideoFrame(t *testing.T) {
	sink := &fakeSink{}
	a := NewAggregator("sid-1", false, sink)

	video := newFakeReader([]byte{0x01})
	defer video.finish()
	a.addSource(context.Background(), webrtc.RTPCodecTypeVideo, video, "v1")

	waitReady(t, a)
	assert.False(t, a.FirstFrameAt().IsZero())
}

func TestAudioAloneDoesNotReadyVideoSession(t *testing.T) {
	a := NewAggregator("sid-2", false, nil)

	audio := newFakeReader([]byte{0x01}, []byte{0x02})
	defer audio.finish()
	a.addSource(context.Background(), webrtc.RTPCodecTypeAudio, audio, "a1")

	select {
	case <-a.Ready():
		t.Fatal("audio packets must not satisfy video readiness")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAudioOnlyModeReadyOnFirstSample(t *testing.T) {
	a := NewAggregator("sid-3", true, nil)

	audio := newFakeReader([]byte{0x01})
	defer audio.finish()
	a.addSource(context.Background(), webrtc.RTPCodecTypeAudio, audio, "a1")

	waitReady(t, a)
}

func TestEmptyPayloadIsNotAFrame(t *testing.T) {
	a := NewAggregator("sid-4", false, nil)

	video := newFakeReader([]byte{})
	defer video.finish()
	a.addSource(context.Background(), webrtc.RTPCodecTypeVideo, video, "v1")

	select {
	case <-a.Ready():
		t.Fatal("empty payload must not count as a frame")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestVideoDisabledDropsFramesKeepsAudio(t *testing.T) {
	sink := &fakeSink{}
	a := NewAggregator("sid-5", false, sink)
	a.SetVideoEnabled(false)

	video := newFakeReader([]byte{0x01}, []byte{0x02})
	defer video.finish()
	a.addSource(context.Background(), webrtc.RTPCodecTypeVideo, video, "v1")

	time.Sleep(50 * time.Millisecond)
	sink.mu.Lock()
	frames := sink.frames
	sink.mu.Unlock()
	assert.Zero(t, frames, "disabled video must not reach the sink")
}

func TestStopDetachesSinkAndIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	a := NewAggregator("sid-6", false, sink)

	video := newFakeReader([]byte{0x01})
	a.addSource(context.Background(), webrtc.RTPCodecTypeVideo, video, "v1")
	waitReady(t, a)

	video.finish()
	a.Stop()
	a.Stop()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.True(t, sink.detached)
}

func TestTrackAfterStopIsIgnored(t *testing.T) {
	a := NewAggregator("sid-7", false, nil)
	a.Stop()

	video := newFakeReader([]byte{0x01})
	defer video.finish()
	a.addSource(context.Background(), webrtc.RTPCodecTypeVideo, video, "v1")

	select {
	case <-a.Ready():
		t.Fatal("stopped aggregator must not become ready")
	case <-time.After(50 * time.Millisecond):
	}
}
