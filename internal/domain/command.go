package domain

import "time"

// CommandKind enumerates avatar commands accepted by the backend.
type CommandKind string

const (
	CommandSpeak     CommandKind = "speak"
	CommandGesture   CommandKind = "gesture"
	CommandEmotion   CommandKind = "emotion"
	CommandListening CommandKind = "listening"
	CommandInterrupt CommandKind = "interrupt"
)

// CommandRecord is one issued avatar command plus its timing estimate.
type CommandRecord struct {
	Kind        CommandKind   `json:"kind"`
	Payload     string        `json:"payload,omitempty"`
	IssuedAt    time.Time     `json:"issued_at"`
	EstimatedMs time.Duration `json:"estimated_ms,omitempty"`
}
