package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/plutus-ai/plutus/internal/llm"
	"github.com/plutus-ai/plutus/internal/model"
)

// Recommender turns the other specialists' findings into concrete next
// steps. It declares them as dependencies so the scheduler only runs it
// after they finish; when a dependency failed it falls back to the stored
// context alone at reduced confidence.
type Recommender struct {
	llm llm.Client
}

// NewRecommender creates the recommendation agent. client may be nil.
func NewRecommender(client llm.Client) *Recommender {
	return &Recommender{llm: client}
}

func (a *Recommender) Name() Name { return Recommendation }

func (a *Recommender) Dependencies() []Name {
	return []Name{FinancialAnalysis, GoalExtraction, RiskAssessment}
}

func (a *Recommender) Run(ctx context.Context, message string, uc *model.UserContext, prior map[Name]*Result) *Result {
	if uc == nil {
		return failed(Recommendation, errors.New("no user context"))
	}
	fin := uc.Financial

	surplus := fin.MonthlyIncome - fin.MonthlyExpenses
	confidence := 0.85
	usable := 0
	for _, dep := range a.Dependencies() {
		if prior[dep].Success() {
			usable++
		}
	}
	if usable == 0 {
		// Context-only fallback.
		confidence = 0.5
	} else if usable < len(a.Dependencies()) {
		confidence = 0.7
	}

	var recs []string

	// A goal stated this turn drives the primary recommendation.
	if g := extractedGoalFrom(prior); g != nil && g.TargetAmount > 0 && g.HorizonMonths > 0 {
		monthly := g.TargetAmount / float64(g.HorizonMonths)
		label := strings.ReplaceAll(g.Category, "_", " ")
		recs = append(recs, fmt.Sprintf("Set aside $%.0f per month to reach your %s goal of $%.0f in %d months.",
			monthly, label, g.TargetAmount, g.HorizonMonths))
		if surplus > 0 && monthly > surplus {
			recs = append(recs, fmt.Sprintf("That is above your current monthly surplus of $%.0f; consider a longer horizon or trimming expenses.", surplus))
		}
	} else {
		recs = append(recs, goalProgressRecs(uc.Goals, surplus)...)
	}

	// Liquidity before anything else.
	if fin.MonthlyExpenses > 0 && fin.LiquidAssets < 3*fin.MonthlyExpenses {
		recs = append(recs, fmt.Sprintf("Build your emergency reserve toward $%.0f (three months of expenses) before taking on more risk.",
			3*fin.MonthlyExpenses))
	}

	if p := riskProfileFrom(prior); p == "aggressive" && fin.TotalDebt > 0 {
		recs = append(recs, "Pay down high-interest debt before increasing market exposure.")
	}

	if len(recs) == 0 {
		recs = append(recs, "Keep your current plan; review your goals quarterly.")
	}

	fallback := "Recommended next steps: " + strings.Join(recs, " ")
	prompt := fmt.Sprintf(
		"User asked: %q\nDraft recommendations:\n- %s\nMonthly surplus: $%.0f.\nRephrase these as friendly, direct advice in at most three sentences. Do not invent new advice.",
		message, strings.Join(recs, "\n- "), surplus,
	)

	return &Result{
		Agent: Recommendation,
		Findings: map[string]any{
			"monthly_surplus":   surplus,
			"recommendations":   len(recs),
			"dependencies_used": usable,
		},
		Narrative:       narrate(ctx, a.llm, recommendSystemPrompt, prompt, fallback),
		Confidence:      confidence,
		Recommendations: recs,
	}
}

// extractedGoalFrom rebuilds the goal extraction result from its findings.
func extractedGoalFrom(prior map[Name]*Result) *ExtractedGoal {
	res := prior[GoalExtraction]
	if !res.Success() || res.Findings == nil {
		return nil
	}
	detected, _ := res.Findings["goal_detected"].(bool)
	if !detected {
		return nil
	}
	g := &ExtractedGoal{Confidence: res.Confidence}
	g.Category, _ = res.Findings["category"].(string)
	g.TargetAmount, _ = res.Findings["target_amount"].(float64)
	if months, ok := res.Findings["horizon_months"].(int); ok {
		g.HorizonMonths = months
	}
	return g
}

func riskProfileFrom(prior map[Name]*Result) string {
	res := prior[RiskAssessment]
	if !res.Success() || res.Findings == nil {
		return ""
	}
	p, _ := res.Findings["profile"].(string)
	return p
}

// goalProgressRecs advises on the stored goals when no new goal was stated.
func goalProgressRecs(goals []model.Goal, surplus float64) []string {
	var recs []string
	for _, g := range goals {
		remaining := g.TargetAmount - g.CurrentAmount
		if remaining <= 0 || g.HorizonMonths <= 0 {
			continue
		}
		monthly := remaining / float64(g.HorizonMonths)
		label := strings.ReplaceAll(g.Category, "_", " ")
		recs = append(recs, fmt.Sprintf("Contribute $%.0f per month to stay on track for your %s goal.", monthly, label))
		if len(recs) == 2 {
			break
		}
	}
	return recs
}

const recommendSystemPrompt = "You are a financial advisor. Give direct, actionable advice in at most three sentences, based only on the draft provided."
