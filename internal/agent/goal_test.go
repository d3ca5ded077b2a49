package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plutus-ai/plutus/internal/model"
)

func TestExtractGoalFullStatement(t *testing.T) {
	g := ExtractGoal("I want to save $60,000 for a house down payment in 4 years")
	require.NotNil(t, g)
	assert.Equal(t, "house_purchase", g.Category)
	assert.Equal(t, float64(60000), g.TargetAmount)
	assert.Equal(t, 48, g.HorizonMonths)
	assert.Equal(t, 1.0, g.Confidence)
}

func TestExtractGoalAdditiveScoring(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		category   string
		confidence float64
	}{
		{"keywords only", "thinking about my emergency fund", "emergency_fund", 0.4},
		{"keywords and verb", "I plan to build an emergency fund", "emergency_fund", 0.7},
		{"keywords verb amount", "I want to save $10k for a rainy day", "emergency_fund", 0.9},
		{"everything", "I plan to put away $10k for my emergency fund in 18 months", "emergency_fund", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := ExtractGoal(tt.message)
			require.NotNil(t, g)
			assert.Equal(t, tt.category, g.Category)
			assert.InDelta(t, tt.confidence, g.Confidence, 0.001)
			assert.LessOrEqual(t, g.Confidence, 1.0)
		})
	}
}

func TestExtractGoalNoSignal(t *testing.T) {
	assert.Nil(t, ExtractGoal("what's the weather like today"))
	assert.Nil(t, ExtractGoal(""))
}

func TestExtractGoalAmountSuffixes(t *testing.T) {
	g := ExtractGoal("saving $2.5m for retirement")
	require.NotNil(t, g)
	assert.Equal(t, "retirement", g.Category)
	assert.Equal(t, 2_500_000.0, g.TargetAmount)

	g = ExtractGoal("I need 500 dollars for a trip")
	require.NotNil(t, g)
	assert.Equal(t, "vacation", g.Category)
	assert.Equal(t, 500.0, g.TargetAmount)
}

func TestExtractGoalHorizonUnits(t *testing.T) {
	g := ExtractGoal("save $1k for a vacation in 6 weeks")
	require.NotNil(t, g)
	assert.Equal(t, 1, g.HorizonMonths)

	g = ExtractGoal("save $1k for a vacation within 2 years")
	require.NotNil(t, g)
	assert.Equal(t, 24, g.HorizonMonths)
}

func TestGoalExtractorMarksUpdates(t *testing.T) {
	uc := &model.UserContext{
		UserID: "u1",
		Goals: []model.Goal{
			{ID: "g1", Category: "house_purchase", TargetAmount: 50000},
		},
	}

	res := Execute(context.Background(), NewGoalExtractor(),
		"actually I want to save $70,000 for the house in 5 years", uc, nil)
	require.True(t, res.Success())
	assert.Equal(t, true, res.Findings["is_update"])
	require.Len(t, res.Insights, 1)
	assert.Equal(t, model.InsightGoal, res.Insights[0].Type)
	assert.Equal(t, "u1", res.Insights[0].UserID)
}

func TestGoalExtractorNoGoalStillSucceeds(t *testing.T) {
	res := Execute(context.Background(), NewGoalExtractor(), "how am I doing overall?", &model.UserContext{UserID: "u1"}, nil)
	require.True(t, res.Success())
	assert.Equal(t, false, res.Findings["goal_detected"])
	assert.Empty(t, res.Insights)
}
