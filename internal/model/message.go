package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents one conversation message. Immutable once appended.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// Metadata is set on assistant messages only and records how the
	// turn was produced.
	Metadata *TurnMetadata `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Sequence is assigned by the store on append.
	Sequence uint64 `json:"sequence,omitempty"`
}

// TurnMetadata records the routing and execution trace of one turn.
type TurnMetadata struct {
	Category        string   `json:"category"`
	AgentsInvoked   []string `json:"agents_invoked"`
	FailedAgents    []string `json:"failed_agents,omitempty"`
	DegradedContext bool     `json:"degraded_context,omitempty"`
	Degraded        bool     `json:"degraded,omitempty"`
	ContextVersion  uint64   `json:"context_version,omitempty"`
	Confidence      float64  `json:"confidence"`
	LatencyMs       int64    `json:"latency_ms"`
}

// ListMessagesResponse is the response for listing session messages.
type ListMessagesResponse struct {
	Messages     []Message `json:"messages"`
	HasMore      bool      `json:"has_more"`
	LastSequence uint64    `json:"last_sequence"`
}
