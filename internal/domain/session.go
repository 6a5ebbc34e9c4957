// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

const (
	MaxAvatarIDLen = 64
	MaxVoiceIDLen  = 64
)

var (
	ErrAvatarIDEmpty   = errors.New("avatar id empty")
	ErrAvatarIDTooLong = errors.New("avatar id too long")
	ErrVoiceIDTooLong  = errors.New("voice id too long")
)

type (
	SessionID string
	AvatarID  string
	VoiceID   string
)

// QualityTier is the media quality requested from the remote service.
type QualityTier string

const (
	QualityLow    QualityTier = "low"
	QualityMedium QualityTier = "medium"
	QualityHigh   QualityTier = "high"
)

// Session is the remote-service-side unit of a live avatar conversation.
// ID stays empty until the backend confirms creation.
type Session struct {
	ID        SessionID   `json:"id"`
	AvatarID  AvatarID    `json:"avatar_id"`
	VoiceID   VoiceID     `json:"voice_id,omitempty"`
	Quality   QualityTier `json:"quality"`
	CreatedAt time.Time   `json:"created_at"`
}

// SessionParams carries what a caller supplies to start a session.
type SessionParams struct {
	AvatarID AvatarID
	VoiceID  VoiceID
	Quality  QualityTier
	// AudioOnly requests a voice-only session; readiness then keys on
	// the first audio sample instead of the first video frame.
	AudioOnly bool
}

// NewSessionParams avoids raw literals in adapters and keeps construction obvious.
func NewSessionParams(avatar AvatarID, voice VoiceID, quality QualityTier) (SessionParams, error) {
	if len(avatar) == 0 {
		return SessionParams{}, ErrAvatarIDEmpty
	}
	if len(avatar) > MaxAvatarIDLen {
		return SessionParams{}, ErrAvatarIDTooLong
	}
	if len(voice) > MaxVoiceIDLen {
		return SessionParams{}, ErrVoiceIDTooLong
	}
	if quality == "" {
		quality = QualityMedium
	}
	return SessionParams{AvatarID: avatar, VoiceID: voice, Quality: quality}, nil
}
