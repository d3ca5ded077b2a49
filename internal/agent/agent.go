// Package agent defines the advisory agent contract and the four built-in
// specialists: financial analysis, goal extraction, risk assessment, and
// recommendation.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/pkg/metrics"
)

// Name identifies an agent. Names double as routing targets and as keys in
// the prior-results map handed to dependent agents.
type Name string

const (
	FinancialAnalysis Name = "financial_analysis"
	GoalExtraction    Name = "goal_extraction"
	RiskAssessment    Name = "risk_assessment"
	Recommendation    Name = "recommendation"
)

// ExecutionError wraps a failure inside one agent. One agent failing never
// fails the turn; the orchestrator synthesizes from whoever succeeded.
type ExecutionError struct {
	Agent Name
	Err   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("agent %s failed: %v", e.Agent, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Result is one agent's contribution to a turn.
type Result struct {
	Agent           Name            `json:"agent"`
	Findings        map[string]any  `json:"findings,omitempty"`
	Narrative       string          `json:"narrative,omitempty"`
	Confidence      float64         `json:"confidence"`
	Recommendations []string        `json:"recommendations,omitempty"`
	Insights        []model.Insight `json:"insights,omitempty"`
	Duration        time.Duration   `json:"duration"`
	Err             error           `json:"-"`
}

// Success reports whether the agent produced a usable result.
func (r *Result) Success() bool {
	return r != nil && r.Err == nil
}

// Agent is the contract every specialist implements. Run must honor ctx
// cancellation and must never mutate uc or prior.
type Agent interface {
	Name() Name

	// Dependencies lists agents whose results must be available in prior
	// before Run is called. Empty for independent agents.
	Dependencies() []Name

	Run(ctx context.Context, message string, uc *model.UserContext, prior map[Name]*Result) *Result
}

// Execute runs one agent with panic containment and timing. A panicking
// agent becomes a failed Result, indistinguishable from any other agent
// error downstream.
func Execute(ctx context.Context, a Agent, message string, uc *model.UserContext, prior map[Name]*Result) (res *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = &Result{
				Agent: a.Name(),
				Err:   &ExecutionError{Agent: a.Name(), Err: fmt.Errorf("panic: %v", r)},
			}
		}
		res.Duration = time.Since(start)
		metrics.RecordAgentRun(string(a.Name()), res.Success(), res.Duration.Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return &Result{Agent: a.Name(), Err: &ExecutionError{Agent: a.Name(), Err: err}}
	}

	res = a.Run(ctx, message, uc, prior)
	if res == nil {
		res = &Result{
			Agent: a.Name(),
			Err:   &ExecutionError{Agent: a.Name(), Err: fmt.Errorf("nil result")},
		}
	}
	return res
}

func failed(name Name, err error) *Result {
	return &Result{Agent: name, Err: &ExecutionError{Agent: name, Err: err}}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
