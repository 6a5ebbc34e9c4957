package core

import (
	"github.com/pion/webrtc/v4"
)

// TransportEventKind is the closed set of signals a media connection
// may emit. The orchestrator event loop is the single dispatch point;
// nothing else consumes raw transport callbacks.
type TransportEventKind int

const (
	TransportConnected TransportEventKind = iota
	TransportDisconnected
	TransportFailed
	TrackArrived
)

func (k TransportEventKind) String() string {
	switch k {
	case TransportConnected:
		return "transport-connected"
	case TransportDisconnected:
		return "transport-disconnected"
	case TransportFailed:
		return "transport-failed"
	case TrackArrived:
		return "track-arrived"
	default:
		return "unknown"
	}
}

// TransportEvent is a tagged variant; Track is set only for TrackArrived.
type TransportEvent struct {
	Kind  TransportEventKind
	Track *webrtc.TrackRemote
}

// RemoteEventKind enumerates events pushed by the backend outside the
// request/reply flow.
type RemoteEventKind string

const (
	RemoteSpeechStarted RemoteEventKind = "speech-started"
	RemoteSpeechStopped RemoteEventKind = "speech-stopped"
	RemoteSessionClosed RemoteEventKind = "session-closed"
)

// RemoteEvent is a server-pushed notification.
type RemoteEvent struct {
	Kind   RemoteEventKind
	Detail string
}
