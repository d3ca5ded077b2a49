package usercontext

import (
	"github.com/plutus-ai/plutus/internal/model"
)

// WealthScore condenses a snapshot into a 0-100 health score from three
// weighted components: liquidity runway, savings rate, and debt load.
func WealthScore(s model.FinancialSnapshot) float64 {
	var score float64

	// Liquidity: months of expenses covered by liquid assets, 6+ is full marks.
	if s.MonthlyExpenses > 0 {
		months := s.LiquidAssets / s.MonthlyExpenses
		score += 40 * clamp01(months/6)
	} else if s.LiquidAssets > 0 {
		score += 40
	}

	// Savings rate: 20%+ of income saved is full marks.
	if s.MonthlyIncome > 0 {
		rate := (s.MonthlyIncome - s.MonthlyExpenses) / s.MonthlyIncome
		score += 35 * clamp01(rate/0.20)
	}

	// Debt load: debt above half of annual income erodes the remainder.
	if s.TotalDebt <= 0 {
		score += 25
	} else if annual := s.MonthlyIncome * 12; annual > 0 {
		score += 25 * clamp01(1-s.TotalDebt/(annual*0.5))
	}

	return score
}

// WealthGrade maps a score to a letter grade for display.
func WealthGrade(score float64) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
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
