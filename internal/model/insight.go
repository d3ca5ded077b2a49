package model

import (
	"time"
)

// InsightType classifies where an insight was derived from.
type InsightType string

const (
	InsightConversation InsightType = "conversation"
	InsightAccount      InsightType = "account"
	InsightGoal         InsightType = "goal"
)

// Insight is a durable, confidence-scored fact extracted by an agent.
// Append-only; newer insights of the same type supersede older ones logically.
type Insight struct {
	ID          string      `json:"id"`
	UserID      string      `json:"user_id"`
	Type        InsightType `json:"type"`
	Content     string      `json:"content"`
	Confidence  float64     `json:"confidence"`
	SourceAgent string      `json:"source_agent"`
	ExtractedAt time.Time   `json:"extracted_at"`
}

// ListInsightsResponse is the response for listing user insights.
type ListInsightsResponse struct {
	Insights []Insight `json:"insights"`
	Total    int       `json:"total"`
}
