package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plutus-ai/plutus/internal/llm"
	"github.com/plutus-ai/plutus/internal/model"
)

// RiskAssessor scores the user's risk posture on three axes, each 0-100
// where higher means more risk: market exposure, income fragility, and
// liability burden. The composite is their mean.
type RiskAssessor struct {
	llm llm.Client
}

// NewRiskAssessor creates the risk assessment agent. client may be nil.
func NewRiskAssessor(client llm.Client) *RiskAssessor {
	return &RiskAssessor{llm: client}
}

func (a *RiskAssessor) Name() Name { return RiskAssessment }

func (a *RiskAssessor) Dependencies() []Name { return nil }

func (a *RiskAssessor) Run(ctx context.Context, message string, uc *model.UserContext, prior map[Name]*Result) *Result {
	if uc == nil {
		return failed(RiskAssessment, errors.New("no user context"))
	}
	fin := uc.Financial

	exposure := marketExposure(fin)
	fragility := incomeFragility(fin)
	liability := liabilityBurden(fin)
	composite := (exposure + fragility + liability) / 3

	profile := "moderate"
	switch {
	case composite < 34:
		profile = "conservative"
	case composite >= 67:
		profile = "aggressive"
	}

	result := &Result{
		Agent: RiskAssessment,
		Findings: map[string]any{
			"market_exposure":  exposure,
			"income_fragility": fragility,
			"liability_burden": liability,
			"composite":        composite,
			"profile":          profile,
		},
		Confidence: 0.85,
	}

	if pref := statedRiskPreference(message); pref != "" {
		result.Findings["stated_preference"] = pref
		result.Insights = append(result.Insights, model.Insight{
			ID:          uuid.Must(uuid.NewV7()).String(),
			UserID:      uc.UserID,
			Type:        model.InsightConversation,
			Content:     "User describes their risk tolerance as " + pref,
			Confidence:  0.8,
			SourceAgent: string(RiskAssessment),
			ExtractedAt: time.Now().UTC(),
		})
	}

	fallback := fmt.Sprintf(
		"Your overall risk level is %s (%.0f/100): market exposure %.0f, income fragility %.0f, liability burden %.0f.",
		profile, composite, exposure, fragility, liability,
	)
	prompt := fmt.Sprintf(
		"User asked: %q\nRisk scores (0-100, higher is riskier): market exposure %.0f, income fragility %.0f, "+
			"liability burden %.0f, composite %.0f (%s).\nExplain their risk position in two sentences.",
		message, exposure, fragility, liability, composite, profile,
	)
	result.Narrative = narrate(ctx, a.llm, riskSystemPrompt, prompt, fallback)
	return result
}

// marketExposure scores how much of the user's wealth rides on markets.
func marketExposure(fin model.FinancialSnapshot) float64 {
	total := fin.LiquidAssets + fin.InvestmentTotal
	if total <= 0 {
		return 0
	}
	return 100 * clamp01(fin.InvestmentTotal/total)
}

// incomeFragility scores how little slack the monthly budget has.
func incomeFragility(fin model.FinancialSnapshot) float64 {
	if fin.MonthlyIncome <= 0 {
		return 100
	}
	rate := (fin.MonthlyIncome - fin.MonthlyExpenses) / fin.MonthlyIncome
	// A 30% savings rate or better scores zero fragility.
	return 100 * clamp01(1-rate/0.30)
}

// liabilityBurden scores debt against annual income; debt at or above one
// year of income is maximal.
func liabilityBurden(fin model.FinancialSnapshot) float64 {
	if fin.TotalDebt <= 0 {
		return 0
	}
	annual := fin.MonthlyIncome * 12
	if annual <= 0 {
		return 100
	}
	return 100 * clamp01(fin.TotalDebt/annual)
}

func statedRiskPreference(message string) string {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "conservative"), strings.Contains(lower, "low risk"),
		strings.Contains(lower, "safe"), strings.Contains(lower, "worried"),
		strings.Contains(lower, "nervous"):
		return "conservative"
	case strings.Contains(lower, "aggressive"), strings.Contains(lower, "high risk"),
		strings.Contains(lower, "risky"):
		return "aggressive"
	}
	return ""
}

const riskSystemPrompt = "You are a risk analyst. Answer in plain language, two sentences at most, using only the scores provided."
