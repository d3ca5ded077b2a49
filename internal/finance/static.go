package finance

import (
	"context"
	"hash/fnv"

	"github.com/plutus-ai/plutus/internal/model"
)

// StaticProvider serves deterministic sample data derived from the user id.
// It stands in for the account aggregation system in local runs and tests:
// the same user always gets the same answer, so repeated context builds are
// idempotent.
type StaticProvider struct{}

// NewStaticProvider creates a provider backed by generated sample data.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// seed derives a stable small integer from the user id.
func seed(userID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(userID))
	return h.Sum64() % 7
}

// Accounts returns the user's sample accounts, in a stable order.
func (p *StaticProvider) Accounts(ctx context.Context, userID string) ([]model.Account, error) {
	s := float64(seed(userID))
	return []model.Account{
		{ID: userID + "-chk", Name: "Everyday Checking", Type: "checking", Balance: 4200 + 300*s},
		{ID: userID + "-sav", Name: "High-Yield Savings", Type: "savings", Balance: 18500 + 1200*s},
		{ID: userID + "-inv", Name: "Brokerage", Type: "investment", Balance: 52000 + 4000*s},
		{ID: userID + "-ret", Name: "Retirement 401k", Type: "investment", Balance: 76000 + 5000*s},
		{ID: userID + "-cc", Name: "Rewards Card", Type: "credit", Balance: -(2300 + 150*s)},
	}, nil
}

// Balances returns the user's sample cash-flow summary.
func (p *StaticProvider) Balances(ctx context.Context, userID string) (*Balances, error) {
	s := float64(seed(userID))
	return &Balances{
		MonthlyIncome:   6500 + 250*s,
		MonthlyExpenses: 4100 + 150*s,
	}, nil
}

// Goals returns the user's sample goal records.
func (p *StaticProvider) Goals(ctx context.Context, userID string) ([]model.Goal, error) {
	return []model.Goal{
		{
			ID:            userID + "-goal-ef",
			Category:      "emergency_fund",
			Description:   "Six months of expenses",
			TargetAmount:  25000,
			CurrentAmount: 18500,
			HorizonMonths: 12,
			Priority:      "high",
		},
	}, nil
}

// Portfolio returns the user's sample investment summary.
func (p *StaticProvider) Portfolio(ctx context.Context, userID string) (*Portfolio, error) {
	s := float64(seed(userID))
	return &Portfolio{
		TotalValue: 128000 + 9000*s,
		Allocations: map[string]float64{
			"equities": 0.70,
			"bonds":    0.20,
			"cash":     0.10,
		},
		LargestHolding: 0.22,
	}, nil
}
