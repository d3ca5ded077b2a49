package model

// equalContexts compares two normalized context payloads field by field.
// Kept explicit rather than reflect.DeepEqual so that pointer fields inside
// goals compare by value.
func equalContexts(a, b *UserContext) bool {
	if a.UserID != b.UserID {
		return false
	}
	if a.Financial.NetWorth != b.Financial.NetWorth ||
		a.Financial.MonthlyIncome != b.Financial.MonthlyIncome ||
		a.Financial.MonthlyExpenses != b.Financial.MonthlyExpenses ||
		a.Financial.LiquidAssets != b.Financial.LiquidAssets ||
		a.Financial.TotalDebt != b.Financial.TotalDebt ||
		a.Financial.InvestmentTotal != b.Financial.InvestmentTotal ||
		a.Financial.WealthScore != b.Financial.WealthScore {
		return false
	}
	if len(a.Financial.Accounts) != len(b.Financial.Accounts) {
		return false
	}
	for i := range a.Financial.Accounts {
		if a.Financial.Accounts[i] != b.Financial.Accounts[i] {
			return false
		}
	}
	if len(a.Goals) != len(b.Goals) {
		return false
	}
	for i := range a.Goals {
		ga, gb := a.Goals[i], b.Goals[i]
		if (ga.TargetDate == nil) != (gb.TargetDate == nil) {
			return false
		}
		if ga.TargetDate != nil && !ga.TargetDate.Equal(*gb.TargetDate) {
			return false
		}
		ga.TargetDate, gb.TargetDate = nil, nil
		if ga != gb {
			return false
		}
	}
	if len(a.Insights) != len(b.Insights) {
		return false
	}
	for i := range a.Insights {
		if a.Insights[i].ID != b.Insights[i].ID {
			return false
		}
	}
	if len(a.Preferences) != len(b.Preferences) {
		return false
	}
	for k, v := range a.Preferences {
		if b.Preferences[k] != v {
			return false
		}
	}
	return true
}
