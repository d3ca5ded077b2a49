package orchestrator

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plutus-ai/plutus/internal/agent"
	"github.com/plutus-ai/plutus/internal/model"
)

var allAgentNames = []agent.Name{
	agent.FinancialAnalysis,
	agent.GoalExtraction,
	agent.RiskAssessment,
	agent.Recommendation,
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r, err := NewRouter(DefaultRoutingConfig(), allAgentNames, nil)
	require.NoError(t, err)
	return r
}

func TestRouteSingleCategory(t *testing.T) {
	r := newTestRouter(t)

	d := r.Route("how risky is my current exposure?")
	assert.Equal(t, "risk", d.Category)
	assert.Contains(t, d.Agents, string(agent.RiskAssessment))
	assert.Equal(t, model.ModeParallel, d.Mode)
	assert.NotEmpty(t, d.Rationale)
}

func TestRouteUnionOnMultiMatch(t *testing.T) {
	r := newTestRouter(t)

	d := r.Route("I want to save for a house but keep my portfolio safe")
	require.GreaterOrEqual(t, len(d.Matched), 2)

	// The union carries every matched category's agents, deduplicated.
	seen := make(map[string]int)
	for _, a := range d.Agents {
		seen[a]++
	}
	for a, n := range seen {
		assert.Equal(t, 1, n, "agent %s duplicated", a)
	}
	assert.Contains(t, d.Agents, string(agent.GoalExtraction))
	assert.Contains(t, d.Agents, string(agent.RiskAssessment))

	// The highest-priority match labels the turn.
	assert.Equal(t, "goal_planning", d.Category)
	assert.Equal(t, model.ModeParallel, d.Mode)
}

func TestRouteDefaultsWhenNothingMatches(t *testing.T) {
	r := newTestRouter(t)

	d := r.Route("hello there")
	assert.Equal(t, DefaultCategory, d.Category)
	assert.Equal(t, []string{string(agent.FinancialAnalysis)}, d.Agents)
	assert.Equal(t, model.ModeSingle, d.Mode)
	assert.Empty(t, d.Matched)
}

func TestRouteNeverReturnsEmptyAgentSet(t *testing.T) {
	r := newTestRouter(t)
	for _, msg := range []string{"", "???", "weather today", "save invest risk budget"} {
		d := r.Route(msg)
		assert.NotEmpty(t, d.Agents, "message %q", msg)
	}
}

func TestRouteIsCaseInsensitive(t *testing.T) {
	r := newTestRouter(t)
	d := r.Route("WHAT IS MY PORTFOLIO ALLOCATION?")
	assert.Equal(t, "portfolio", d.Category)
}

func TestRouteCustomMatcher(t *testing.T) {
	exact := func(message, keyword string) bool {
		for _, w := range strings.Fields(strings.ToLower(message)) {
			if w == keyword {
				return true
			}
		}
		return false
	}
	r, err := NewRouter(DefaultRoutingConfig(), allAgentNames, exact)
	require.NoError(t, err)

	// "risky" contains "risk" as a substring but not as a whole word.
	d := r.Route("feeling risky")
	assert.Equal(t, "risk", d.Category)
	for _, m := range d.Matched {
		assert.Contains(t, m.Keywords, "risky")
		assert.NotContains(t, m.Keywords, "risk")
	}
}

func TestNewRouterValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  *RoutingConfig
	}{
		{"nil config", nil},
		{"empty categories", &RoutingConfig{}},
		{"empty name", &RoutingConfig{Categories: []CategoryRule{
			{Keywords: []string{"x"}, Agents: []string{string(agent.FinancialAnalysis)}},
		}}},
		{"no keywords", &RoutingConfig{Categories: []CategoryRule{
			{Name: "a", Agents: []string{string(agent.FinancialAnalysis)}},
		}}},
		{"no agents", &RoutingConfig{Categories: []CategoryRule{
			{Name: "a", Keywords: []string{"x"}},
		}}},
		{"unknown agent", &RoutingConfig{Categories: []CategoryRule{
			{Name: "a", Keywords: []string{"x"}, Agents: []string{"astrology"}},
		}}},
		{"duplicate category", &RoutingConfig{Categories: []CategoryRule{
			{Name: "a", Keywords: []string{"x"}, Agents: []string{string(agent.FinancialAnalysis)}},
			{Name: "a", Keywords: []string{"y"}, Agents: []string{string(agent.FinancialAnalysis)}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter(tt.cfg, allAgentNames, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRoutingConfig))
		})
	}
}

func TestLoadRoutingConfigFromYAML(t *testing.T) {
	path := t.TempDir() + "/routing.yaml"
	content := `categories:
  - name: custom
    keywords: ["alpha"]
    agents: ["financial_analysis"]
    priority: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadRoutingConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, "custom", cfg.Categories[0].Name)

	_, err = NewRouter(cfg, allAgentNames, nil)
	require.NoError(t, err)
}
