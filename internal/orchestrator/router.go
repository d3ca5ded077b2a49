// Package orchestrator routes user messages to advisory agents, schedules
// them respecting declared dependencies, and synthesizes their results into
// one reply.
package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/plutus-ai/plutus/internal/agent"
	"github.com/plutus-ai/plutus/internal/model"
	"github.com/plutus-ai/plutus/pkg/metrics"
)

// ErrInvalidRoutingConfig is returned when the routing table fails
// validation at load time. The engine refuses to start on a bad table.
var ErrInvalidRoutingConfig = errors.New("invalid routing config")

// DefaultCategory is used when no routing rule matches.
const DefaultCategory = "general"

// CategoryRule routes messages containing any of its keywords to its agents.
// Priority orders matched categories for labeling; it never excludes agents.
type CategoryRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Agents   []string `yaml:"agents"`
	Priority int      `yaml:"priority"`
}

// RoutingConfig is the full routing table.
type RoutingConfig struct {
	Categories []CategoryRule `yaml:"categories"`
}

// Matcher decides whether a keyword matches a message. The default is
// case-insensitive substring containment.
type Matcher func(message, keyword string) bool

func substringMatcher(message, keyword string) bool {
	return strings.Contains(strings.ToLower(message), strings.ToLower(keyword))
}

// LoadRoutingConfig reads a routing table from a YAML file.
func LoadRoutingConfig(path string) (*RoutingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routing config: %w", err)
	}
	var cfg RoutingConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoutingConfig, err)
	}
	return &cfg, nil
}

// DefaultRoutingConfig is the built-in routing table, used when no file is
// configured.
func DefaultRoutingConfig() *RoutingConfig {
	return &RoutingConfig{Categories: []CategoryRule{
		{
			Name:     "goal_planning",
			Keywords: []string{"save", "goal", "afford", "down payment", "retire", "college", "pay off"},
			Agents:   []string{string(agent.GoalExtraction), string(agent.FinancialAnalysis), string(agent.Recommendation)},
			Priority: 1,
		},
		{
			Name:     "risk",
			Keywords: []string{"risk", "risky", "volatile", "exposure", "safe", "conservative", "aggressive"},
			Agents:   []string{string(agent.RiskAssessment), string(agent.FinancialAnalysis)},
			Priority: 2,
		},
		{
			Name:     "portfolio",
			Keywords: []string{"portfolio", "invest", "stocks", "bonds", "allocation", "market"},
			Agents:   []string{string(agent.FinancialAnalysis), string(agent.RiskAssessment), string(agent.Recommendation)},
			Priority: 3,
		},
		{
			Name:     "spending",
			Keywords: []string{"spend", "budget", "expenses", "cash flow", "income"},
			Agents:   []string{string(agent.FinancialAnalysis), string(agent.Recommendation)},
			Priority: 4,
		},
		{
			Name:     "comprehensive",
			Keywords: []string{"finances", "financial plan", "what should i do", "advice", "overall"},
			Agents: []string{
				string(agent.FinancialAnalysis),
				string(agent.GoalExtraction),
				string(agent.RiskAssessment),
				string(agent.Recommendation),
			},
			Priority: 5,
		},
	}}
}

// Router resolves a message to the set of agents that should handle it.
type Router struct {
	rules []CategoryRule
	match Matcher
	known map[string]bool
}

// NewRouter validates the routing table against the registered agent names
// and returns a router. A nil matcher selects substring matching.
func NewRouter(cfg *RoutingConfig, knownAgents []agent.Name, match Matcher) (*Router, error) {
	if match == nil {
		match = substringMatcher
	}
	known := make(map[string]bool, len(knownAgents))
	for _, n := range knownAgents {
		known[string(n)] = true
	}

	if cfg == nil || len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidRoutingConfig)
	}
	seen := make(map[string]bool, len(cfg.Categories))
	for _, rule := range cfg.Categories {
		switch {
		case rule.Name == "":
			return nil, fmt.Errorf("%w: category with empty name", ErrInvalidRoutingConfig)
		case seen[rule.Name]:
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidRoutingConfig, rule.Name)
		case len(rule.Keywords) == 0:
			return nil, fmt.Errorf("%w: category %q has no keywords", ErrInvalidRoutingConfig, rule.Name)
		case len(rule.Agents) == 0:
			return nil, fmt.Errorf("%w: category %q has no agents", ErrInvalidRoutingConfig, rule.Name)
		}
		seen[rule.Name] = true
		for _, a := range rule.Agents {
			if !known[a] {
				return nil, fmt.Errorf("%w: category %q references unknown agent %q", ErrInvalidRoutingConfig, rule.Name, a)
			}
		}
	}

	rules := append([]CategoryRule(nil), cfg.Categories...)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	return &Router{rules: rules, match: match, known: known}, nil
}

// Route resolves a message. When several categories match, their agent sets
// are unioned and the turn runs them in parallel; the highest-priority match
// labels the turn. No match falls back to financial analysis, so the agent
// set is never empty.
func (r *Router) Route(message string) model.RoutingDecision {
	var matched []model.CategoryMatch
	var agents []string
	inSet := make(map[string]bool)

	for _, rule := range r.rules {
		var hits []string
		for _, kw := range rule.Keywords {
			if r.match(message, kw) {
				hits = append(hits, kw)
			}
		}
		if len(hits) == 0 {
			continue
		}
		matched = append(matched, model.CategoryMatch{
			Category: rule.Name,
			Keywords: hits,
			Score:    float64(len(hits)) / float64(len(rule.Keywords)),
			Priority: rule.Priority,
		})
		for _, a := range rule.Agents {
			if !inSet[a] {
				inSet[a] = true
				agents = append(agents, a)
			}
		}
	}

	if len(matched) == 0 {
		decision := model.RoutingDecision{
			Category:  DefaultCategory,
			Agents:    []string{string(agent.FinancialAnalysis)},
			Mode:      model.ModeSingle,
			Rationale: "no category matched; defaulting to financial analysis",
		}
		metrics.RoutingMatches.WithLabelValues(DefaultCategory).Inc()
		return decision
	}

	mode := model.ModeSingle
	if len(agents) > 1 {
		mode = model.ModeParallel
	}
	decision := model.RoutingDecision{
		Category:  matched[0].Category,
		Agents:    agents,
		Mode:      mode,
		Matched:   matched,
		Rationale: describeMatches(matched),
	}
	metrics.RoutingMatches.WithLabelValues(decision.Category).Inc()
	return decision
}

func describeMatches(matched []model.CategoryMatch) string {
	parts := make([]string, len(matched))
	for i, m := range matched {
		parts[i] = fmt.Sprintf("%s (keywords: %s)", m.Category, strings.Join(m.Keywords, ", "))
	}
	return "matched " + strings.Join(parts, "; ")
}
