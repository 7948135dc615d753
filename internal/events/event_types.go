package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionOpened   EventType = "session_opened"
	EventAccessRefreshed EventType = "access_refreshed"
	EventSessionRevoked  EventType = "session_revoked"
	EventLoginFailed     EventType = "login_failed"
)

// RevokeReason explains why a refresh token left the registry.
type RevokeReason string

const (
	RevokeReasonLogout  RevokeReason = "logout"
	RevokeReasonInvalid RevokeReason = "invalid"
	RevokeReasonRotated RevokeReason = "rotated"
	RevokeReasonExpired RevokeReason = "expired"
)

// Event represents a session lifecycle event emitted by the issuer. Token
// values are never carried.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// SessionOpenedPayload payload.
type SessionOpenedPayload struct {
	Via            string    `json:"via"`
	RefreshExpires time.Time `json:"refresh_expires"`
}

// AccessRefreshedPayload payload.
type AccessRefreshedPayload struct {
	Rotated bool `json:"rotated"`
}

// SessionRevokedPayload payload.
type SessionRevokedPayload struct {
	Reason RevokeReason `json:"reason"`
	Count  int          `json:"count,omitempty"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Throttled bool `json:"throttled"`
}
