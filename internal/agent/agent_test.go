package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plutus-ai/plutus/internal/model"
)

func testContext() *model.UserContext {
	return &model.UserContext{
		UserID:  "u1",
		Version: 3,
		Financial: model.FinancialSnapshot{
			NetWorth:        150000,
			MonthlyIncome:   6000,
			MonthlyExpenses: 4500,
			LiquidAssets:    21500,
			TotalDebt:       2300,
			InvestmentTotal: 128000,
			WealthScore:     82,
			Accounts: []model.Account{
				{ID: "a1", Type: "checking", Balance: 3000},
				{ID: "a2", Type: "savings", Balance: 18500},
				{ID: "a3", Type: "investment", Balance: 128000},
				{ID: "a4", Type: "credit", Balance: -2300},
			},
		},
		Goals: []model.Goal{
			{ID: "g1", Category: "emergency_fund", TargetAmount: 25000, CurrentAmount: 18500, HorizonMonths: 12},
		},
	}
}

func TestFinancialAnalyzerFindings(t *testing.T) {
	res := Execute(context.Background(), NewFinancialAnalyzer(nil), "how am I doing?", testContext(), nil)
	require.True(t, res.Success())

	assert.Equal(t, float64(150000), res.Findings["net_worth"])
	assert.InDelta(t, 0.25, res.Findings["savings_rate"].(float64), 0.001)
	assert.InDelta(t, 21500.0/4500.0, res.Findings["runway_months"].(float64), 0.001)
	assert.Equal(t, "B", res.Findings["wealth_grade"])
	assert.NotEmpty(t, res.Narrative)
	assert.GreaterOrEqual(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)
}

func TestFinancialAnalyzerNoContextFails(t *testing.T) {
	res := Execute(context.Background(), NewFinancialAnalyzer(nil), "hi", nil, nil)
	require.False(t, res.Success())

	var execErr *ExecutionError
	require.True(t, errors.As(res.Err, &execErr))
	assert.Equal(t, FinancialAnalysis, execErr.Agent)
}

func TestRiskAssessorAxesInRange(t *testing.T) {
	res := Execute(context.Background(), NewRiskAssessor(nil), "how risky is my portfolio?", testContext(), nil)
	require.True(t, res.Success())

	for _, axis := range []string{"market_exposure", "income_fragility", "liability_burden", "composite"} {
		v, ok := res.Findings[axis].(float64)
		require.True(t, ok, axis)
		assert.GreaterOrEqual(t, v, 0.0, axis)
		assert.LessOrEqual(t, v, 100.0, axis)
	}
	assert.Contains(t, []string{"conservative", "moderate", "aggressive"}, res.Findings["profile"])
}

func TestRiskAssessorCapturesStatedPreference(t *testing.T) {
	res := Execute(context.Background(), NewRiskAssessor(nil), "I'm worried about losing money, keep it safe", testContext(), nil)
	require.True(t, res.Success())
	assert.Equal(t, "conservative", res.Findings["stated_preference"])
	require.Len(t, res.Insights, 1)
	assert.Equal(t, model.InsightConversation, res.Insights[0].Type)
}

func TestRecommenderMonthlyContribution(t *testing.T) {
	prior := map[Name]*Result{
		FinancialAnalysis: {Agent: FinancialAnalysis, Confidence: 0.9, Findings: map[string]any{}},
		RiskAssessment:    {Agent: RiskAssessment, Confidence: 0.85, Findings: map[string]any{"profile": "moderate"}},
		GoalExtraction: {
			Agent:      GoalExtraction,
			Confidence: 1.0,
			Findings: map[string]any{
				"goal_detected":  true,
				"category":       "house_purchase",
				"target_amount":  60000.0,
				"horizon_months": 48,
			},
		},
	}

	res := Execute(context.Background(), NewRecommender(nil),
		"I want to save $60,000 for a house in 4 years", testContext(), prior)
	require.True(t, res.Success())
	require.NotEmpty(t, res.Recommendations)
	assert.Contains(t, res.Recommendations[0], "$1250 per month")
	assert.InDelta(t, 0.85, res.Confidence, 0.001)
}

func TestRecommenderContextOnlyFallback(t *testing.T) {
	failedPrior := map[Name]*Result{
		FinancialAnalysis: failed(FinancialAnalysis, errors.New("boom")),
		RiskAssessment:    failed(RiskAssessment, errors.New("boom")),
		GoalExtraction:    failed(GoalExtraction, errors.New("boom")),
	}

	res := Execute(context.Background(), NewRecommender(nil), "what should I do?", testContext(), failedPrior)
	require.True(t, res.Success())
	assert.InDelta(t, 0.5, res.Confidence, 0.001)
	require.NotEmpty(t, res.Recommendations)
	// Falls back to the stored goal: (25000-18500)/12 ≈ 542/month.
	assert.Contains(t, res.Recommendations[0], "$542 per month")
}

type panicky struct{}

func (panicky) Name() Name           { return Name("panicky") }
func (panicky) Dependencies() []Name { return nil }
func (panicky) Run(context.Context, string, *model.UserContext, map[Name]*Result) *Result {
	panic("kaboom")
}

func TestExecuteContainsPanics(t *testing.T) {
	res := Execute(context.Background(), panicky{}, "hi", testContext(), nil)
	require.False(t, res.Success())
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Execute(ctx, NewFinancialAnalyzer(nil), "hi", testContext(), nil)
	require.False(t, res.Success())
	assert.True(t, errors.Is(res.Err, context.Canceled))
}
