package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/plutus-ai/plutus/internal/model"
)

// goalKeywords maps goal categories to the phrases that signal them.
var goalKeywords = map[string][]string{
	"emergency_fund": {"emergency fund", "rainy day", "safety net", "cushion"},
	"retirement":     {"retire", "retirement", "401k", "ira", "pension"},
	"house_purchase": {"house", "home", "down payment", "mortgage", "property"},
	"vacation":       {"vacation", "trip", "travel", "holiday"},
	"debt_payoff":    {"pay off", "debt", "loan", "credit card balance", "student loan"},
	"education":      {"college", "tuition", "education", "school", "degree"},
	"investment":     {"invest", "portfolio", "stocks", "index fund", "brokerage"},
	"car_purchase":   {"car", "vehicle", "auto"},
}

// goalVerbs are intent phrases that distinguish a goal statement from a
// passing mention of the same noun.
var goalVerbs = []string{
	"save", "saving", "want to", "plan to", "planning", "goal",
	"buy", "buying", "need", "put away", "set aside",
}

var (
	amountPattern  = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)\s*([kKmM])?|([\d,]+(?:\.\d+)?)\s*([kKmM])?\s+dollars`)
	horizonPattern = regexp.MustCompile(`(?i)(?:in|within|over|next)\s+(\d+(?:\.\d+)?)\s*(year|month|week)s?`)
)

// ExtractedGoal is a goal statement parsed from one user message.
type ExtractedGoal struct {
	Category      string  `json:"category"`
	TargetAmount  float64 `json:"target_amount,omitempty"`
	HorizonMonths int     `json:"horizon_months,omitempty"`
	Confidence    float64 `json:"confidence"`
	IsUpdate      bool    `json:"is_update"`
}

// GoalExtractor detects financial goals stated in conversation, scores them,
// and emits them as durable insights. Extraction is fully deterministic; it
// never calls the completion service.
type GoalExtractor struct{}

// NewGoalExtractor creates the goal extraction agent.
func NewGoalExtractor() *GoalExtractor {
	return &GoalExtractor{}
}

func (a *GoalExtractor) Name() Name { return GoalExtraction }

func (a *GoalExtractor) Dependencies() []Name { return nil }

func (a *GoalExtractor) Run(ctx context.Context, message string, uc *model.UserContext, prior map[Name]*Result) *Result {
	goal := ExtractGoal(message)
	if goal == nil {
		return &Result{
			Agent:      GoalExtraction,
			Findings:   map[string]any{"goal_detected": false},
			Narrative:  "",
			Confidence: 0.3,
		}
	}

	if uc != nil {
		for _, g := range uc.Goals {
			if g.Category == goal.Category {
				goal.IsUpdate = true
				break
			}
		}
	}

	insight := model.Insight{
		ID:          uuid.Must(uuid.NewV7()).String(),
		Type:        model.InsightGoal,
		Content:     describeGoal(goal),
		Confidence:  goal.Confidence,
		SourceAgent: string(GoalExtraction),
		ExtractedAt: time.Now().UTC(),
	}
	if uc != nil {
		insight.UserID = uc.UserID
	}

	fallback := fmt.Sprintf("Noted a %s goal", strings.ReplaceAll(goal.Category, "_", " "))
	if goal.TargetAmount > 0 {
		fallback += fmt.Sprintf(" of $%.0f", goal.TargetAmount)
	}
	if goal.HorizonMonths > 0 {
		fallback += fmt.Sprintf(" over %d months", goal.HorizonMonths)
	}
	if goal.IsUpdate {
		fallback += " (updating an existing goal)"
	}
	fallback += "."

	return &Result{
		Agent: GoalExtraction,
		Findings: map[string]any{
			"goal_detected":  true,
			"category":       goal.Category,
			"target_amount":  goal.TargetAmount,
			"horizon_months": goal.HorizonMonths,
			"is_update":      goal.IsUpdate,
		},
		Narrative:  fallback,
		Confidence: goal.Confidence,
		Insights:   []model.Insight{insight},
	}
}

// ExtractGoal parses a message for a goal statement. Scoring is additive:
// category keywords 0.4, intent verbs 0.3, a dollar amount 0.2, a time
// horizon 0.1, capped at 1.0. Below 0.4 nothing is reported.
func ExtractGoal(message string) *ExtractedGoal {
	lower := strings.ToLower(message)

	category, hits := "", 0
	for cat, words := range goalKeywords {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		if n > hits || (n == hits && n > 0 && cat < category) {
			category, hits = cat, n
		}
	}
	if hits == 0 {
		return nil
	}

	score := 0.4
	for _, v := range goalVerbs {
		if strings.Contains(lower, v) {
			score += 0.3
			break
		}
	}

	goal := &ExtractedGoal{Category: category}
	if amount, ok := parseAmount(message); ok {
		goal.TargetAmount = amount
		score += 0.2
	}
	if months, ok := parseHorizon(message); ok {
		goal.HorizonMonths = months
		score += 0.1
	}

	goal.Confidence = clamp01(score)
	if goal.Confidence < 0.4 {
		return nil
	}
	return goal
}

func parseAmount(message string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	digits, suffix := m[1], m[2]
	if digits == "" {
		digits, suffix = m[3], m[4]
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(digits, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(suffix) {
	case "k":
		v *= 1_000
	case "m":
		v *= 1_000_000
	}
	return v, true
}

func parseHorizon(message string) (int, bool) {
	m := horizonPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "year":
		return int(n * 12), true
	case "month":
		return int(n), true
	case "week":
		months := int(n / 4)
		if months < 1 {
			months = 1
		}
		return months, true
	}
	return 0, false
}

func describeGoal(g *ExtractedGoal) string {
	var b strings.Builder
	b.WriteString("User has a ")
	b.WriteString(strings.ReplaceAll(g.Category, "_", " "))
	b.WriteString(" goal")
	if g.TargetAmount > 0 {
		fmt.Fprintf(&b, " targeting $%.0f", g.TargetAmount)
	}
	if g.HorizonMonths > 0 {
		fmt.Fprintf(&b, " within %d months", g.HorizonMonths)
	}
	return b.String()
}
