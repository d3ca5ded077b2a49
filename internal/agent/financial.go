package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/plutus-ai/plutus/internal/llm"
	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/internal/usercontext"
)

// FinancialAnalyzer summarizes the user's current financial position: net
// worth, cash flow, runway, and debt load. It is the default specialist when
// routing finds no better match.
type FinancialAnalyzer struct {
	llm llm.Client
}

// NewFinancialAnalyzer creates the financial analysis agent. client may be
// nil; narratives then come from templates.
func NewFinancialAnalyzer(client llm.Client) *FinancialAnalyzer {
	return &FinancialAnalyzer{llm: client}
}

func (a *FinancialAnalyzer) Name() Name { return FinancialAnalysis }

func (a *FinancialAnalyzer) Dependencies() []Name { return nil }

func (a *FinancialAnalyzer) Run(ctx context.Context, message string, uc *model.UserContext, prior map[Name]*Result) *Result {
	if uc == nil {
		return failed(FinancialAnalysis, errors.New("no user context"))
	}
	fin := uc.Financial

	savingsRate := 0.0
	if fin.MonthlyIncome > 0 {
		savingsRate = (fin.MonthlyIncome - fin.MonthlyExpenses) / fin.MonthlyIncome
	}
	runway := 0.0
	if fin.MonthlyExpenses > 0 {
		runway = fin.LiquidAssets / fin.MonthlyExpenses
	}
	debtToIncome := 0.0
	if annual := fin.MonthlyIncome * 12; annual > 0 {
		debtToIncome = fin.TotalDebt / annual
	}
	grade := usercontext.WealthGrade(fin.WealthScore)

	findings := map[string]any{
		"net_worth":      fin.NetWorth,
		"savings_rate":   savingsRate,
		"runway_months":  runway,
		"debt_to_income": debtToIncome,
		"wealth_score":   fin.WealthScore,
		"wealth_grade":   grade,
		"accounts":       len(fin.Accounts),
	}

	fallback := fmt.Sprintf(
		"Your net worth is $%.0f across %d accounts (financial health grade %s). "+
			"You save %.0f%% of your income and hold %.1f months of expenses in liquid assets.",
		fin.NetWorth, len(fin.Accounts), grade, savingsRate*100, runway,
	)

	prompt := fmt.Sprintf(
		"User asked: %q\nNet worth: $%.0f. Savings rate: %.0f%%. Liquid runway: %.1f months. "+
			"Debt-to-income: %.2f. Health grade: %s.\nSummarize their financial position in two sentences.",
		message, fin.NetWorth, savingsRate*100, runway, debtToIncome, grade,
	)

	confidence := 0.9
	if len(fin.Accounts) == 0 {
		confidence = 0.5
	}

	return &Result{
		Agent:      FinancialAnalysis,
		Findings:   findings,
		Narrative:  narrate(ctx, a.llm, financialSystemPrompt, prompt, fallback),
		Confidence: confidence,
	}
}

const financialSystemPrompt = "You are a concise financial analyst. Answer in plain language, two sentences at most, using only the figures provided."
