package orchestrator

import (
	"strings"

	"github.com/plutus-ai/plutus/internal/agent"
	"github.com/plutus-ai/plutus/internal/model"
)

// synthesisOrder fixes how agent narratives are stitched together. Ordering
// by role, never by completion time, keeps replies deterministic for a given
// result set.
var synthesisOrder = []agent.Name{
	agent.FinancialAnalysis,
	agent.RiskAssessment,
	agent.GoalExtraction,
	agent.Recommendation,
}

const degradedReply = "I couldn't complete the analysis for that request right now. Please try again in a moment."

// synthesize folds agent results into one reply. Failed agents are skipped;
// confidence is the mean over successful agents. When nothing succeeded the
// turn degrades to a generic reply.
func synthesize(decision model.RoutingDecision, results map[agent.Name]*agent.Result) (reply string, confidence float64, failedAgents []string, degraded bool) {
	var parts []string
	var succeeded int

	for _, name := range synthesisOrder {
		res, ok := results[name]
		if !ok {
			continue
		}
		if !res.Success() {
			failedAgents = append(failedAgents, string(name))
			continue
		}
		succeeded++
		confidence += res.Confidence
		if n := strings.TrimSpace(res.Narrative); n != "" {
			parts = append(parts, n)
		}
	}

	if succeeded == 0 {
		return degradedReply, 0, failedAgents, true
	}

	confidence /= float64(succeeded)
	if len(parts) == 0 {
		// Agents succeeded but had nothing user-facing to say.
		parts = append(parts, "Nothing stands out in your finances for that question.")
	}
	return strings.Join(parts, "\n\n"), confidence, failedAgents, false
}
