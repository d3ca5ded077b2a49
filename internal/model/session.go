// Package model defines data structures for the advisory platform.
package model

import (
	"time"
)

// Session represents one conversation session for a user.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	LastActivity time.Time  `json:"last_activity"`
	MessageCount int        `json:"message_count,omitempty"`
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool {
	return s.EndedAt != nil
}

// StartSessionResponse is returned when a session is created.
type StartSessionResponse struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// SendMessageRequest is the request to send a message into a session.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessageResponse is the reply for a processed turn.
type SendMessageResponse struct {
	Reply           string        `json:"reply"`
	AgentsInvoked   []string      `json:"agents_invoked"`
	InsightsEmitted int           `json:"insights_emitted"`
	Metadata        *TurnMetadata `json:"metadata,omitempty"`
}
