package model

// ExecutionMode describes how the selected agents run within a turn.
type ExecutionMode string

const (
	ModeSingle   ExecutionMode = "single"
	ModeParallel ExecutionMode = "parallel"
)

// CategoryMatch records one matched routing category.
type CategoryMatch struct {
	Category string   `json:"category"`
	Keywords []string `json:"keywords"`
	Score    float64  `json:"score"`
	Priority int      `json:"priority"`
}

// RoutingDecision is the per-message routing outcome. Ephemeral: computed per
// message and only echoed into the logged turn metadata.
type RoutingDecision struct {
	Category  string          `json:"category"`
	Agents    []string        `json:"agents"`
	Mode      ExecutionMode   `json:"mode"`
	Matched   []CategoryMatch `json:"matched,omitempty"`
	Rationale string          `json:"rationale"`
}
