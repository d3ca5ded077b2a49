// Package finance defines the boundary to the external financial-data
// collaborator. Account aggregation and categorization happen upstream; this
// package only describes what the engine consumes.
package finance

import (
	"context"
	"errors"

	"github.com/plutus-ai/plutus/internal/model"
)

// ErrUpstreamUnavailable is returned when the financial-data collaborator
// cannot answer. Callers fall back to the latest previously-built context
// version when one exists.
var ErrUpstreamUnavailable = errors.New("upstream financial data unavailable")

// Balances summarizes a user's recurring cash flow.
type Balances struct {
	MonthlyIncome   float64 `json:"monthly_income"`
	MonthlyExpenses float64 `json:"monthly_expenses"`
}

// Portfolio summarizes a user's investment holdings.
type Portfolio struct {
	TotalValue     float64            `json:"total_value"`
	Allocations    map[string]float64 `json:"allocations"`
	LargestHolding float64            `json:"largest_holding"` // share of total, in [0,1]
}

// Provider supplies raw financial data for context building. Every method may
// fail with ErrUpstreamUnavailable.
type Provider interface {
	Accounts(ctx context.Context, userID string) ([]model.Account, error)
	Balances(ctx context.Context, userID string) (*Balances, error)
	Goals(ctx context.Context, userID string) ([]model.Goal, error)
	Portfolio(ctx context.Context, userID string) (*Portfolio, error)
}
