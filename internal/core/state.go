package core

// ConnectionState is the single authoritative session lifecycle state.
// Every consumer observes this value; no component infers session
// status from its own fields.
type ConnectionState int32

const (
	StateIdle ConnectionState = iota
	StateInitiating
	StateConnecting
	StateConnected
	StateDegraded
	StateReconnecting
	StateEnded
	StateError
)

func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitiating:
		return "initiating"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Active reports whether a session is associated with this state.
// At most one Session may exist while Active is true.
func (s ConnectionState) Active() bool {
	switch s {
	case StateInitiating, StateConnecting, StateConnected, StateDegraded, StateReconnecting:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state only leaves via a fresh Start.
func (s ConnectionState) Terminal() bool {
	return s == StateEnded || s == StateError
}
