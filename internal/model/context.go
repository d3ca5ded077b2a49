package model

import (
	"time"
)

// Account is one financial account from the upstream data provider.
type Account struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Type    string  `json:"type"` // checking, savings, investment, credit, loan
	Balance float64 `json:"balance"`
}

// Goal is a financial goal record.
type Goal struct {
	ID            string     `json:"id"`
	Category      string     `json:"category"`
	Description   string     `json:"description,omitempty"`
	TargetAmount  float64    `json:"target_amount"`
	CurrentAmount float64    `json:"current_amount"`
	HorizonMonths int        `json:"horizon_months,omitempty"`
	TargetDate    *time.Time `json:"target_date,omitempty"`
	Priority      string     `json:"priority,omitempty"`
}

// FinancialSnapshot is the aggregated financial state inside a context version.
type FinancialSnapshot struct {
	NetWorth        float64   `json:"net_worth"`
	MonthlyIncome   float64   `json:"monthly_income"`
	MonthlyExpenses float64   `json:"monthly_expenses"`
	LiquidAssets    float64   `json:"liquid_assets"`
	TotalDebt       float64   `json:"total_debt"`
	InvestmentTotal float64   `json:"investment_total"`
	WealthScore     float64   `json:"wealth_score"`
	Accounts        []Account `json:"accounts"`
}

// UserContext is an immutable, versioned snapshot of a user's financial and
// conversational state. Versions for a user are strictly increasing; a stored
// version is never mutated, only superseded.
type UserContext struct {
	UserID    string    `json:"user_id"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`

	Financial   FinancialSnapshot `json:"financial"`
	Goals       []Goal            `json:"goals"`
	Insights    []Insight         `json:"insights"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

// PayloadEqual reports whether two context versions carry the same content,
// ignoring version number and creation time.
func (c *UserContext) PayloadEqual(other *UserContext) bool {
	if c == nil || other == nil {
		return c == other
	}
	a, b := *c, *other
	a.Version, b.Version = 0, 0
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	return equalContexts(&a, &b)
}
