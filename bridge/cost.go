package bridge

import (
	"context"

	"github.com/basket/pocketclaw/internal/cost"
)

// CostSummary aggregates spend across the session, day, and month windows.
type CostSummary struct {
	SessionCostUSD     float64
	DailyCostUSD       float64
	MonthlyCostUSD     float64
	TotalTokens        uint64
	RequestCount       uint32
	ModelBreakdownJSON string
}

// Budget states as reported by CheckBudget.
const (
	BudgetAllowed  = cost.BudgetAllowed
	BudgetWarning  = cost.BudgetWarning
	BudgetExceeded = cost.BudgetExceeded
)

// BudgetStatus is the outcome of a budget check. CurrentUSD, LimitUSD,
// and Period are only set for the warning and exceeded states. Period is
// "session", "day", or "month".
type BudgetStatus struct {
	State      string
	CurrentUSD float64
	LimitUSD   float64
	Period     string
}

// GetCostSummary returns aggregated usage for the running daemon's
// session. Requires cost tracking to be enabled in the config.
func GetCostSummary() (CostSummary, error) {
	return guardErr(func() (CostSummary, error) {
		tracker, err := rt().Tracker()
		if err != nil {
			return CostSummary{}, err
		}
		s, err := tracker.Summary(context.Background())
		if err != nil {
			return CostSummary{}, err
		}
		rc := s.RequestCount
		if rc > uint64(^uint32(0)) {
			rc = uint64(^uint32(0))
		}
		return CostSummary{
			SessionCostUSD:     s.SessionCostUSD,
			DailyCostUSD:       s.DailyCostUSD,
			MonthlyCostUSD:     s.MonthlyCostUSD,
			TotalTokens:        s.TotalTokens,
			RequestCount:       uint32(rc),
			ModelBreakdownJSON: s.ModelBreakdownJSON,
		}, nil
	})
}

// GetDailyCost returns the spend for a specific calendar day (UTC).
// Nonexistent dates are rejected, not normalized.
func GetDailyCost(year int32, month, day uint32) (float64, error) {
	return guardErr(func() (float64, error) {
		tracker, err := rt().Tracker()
		if err != nil {
			return 0, err
		}
		return tracker.CostOn(context.Background(), int(year), int(month), int(day))
	})
}

// GetMonthlyCost returns the spend for a specific calendar month (UTC).
func GetMonthlyCost(year int32, month uint32) (float64, error) {
	return guardErr(func() (float64, error) {
		tracker, err := rt().Tracker()
		if err != nil {
			return 0, err
		}
		return tracker.CostInMonth(context.Background(), int(year), int(month))
	})
}

// CheckBudget reports whether a request with the given estimated cost
// would fit the configured budgets. Windows are checked in order
// session, day, month; the first exceeded window wins.
func CheckBudget(estimatedCostUSD float64) (BudgetStatus, error) {
	return guardErr(func() (BudgetStatus, error) {
		tracker, err := rt().Tracker()
		if err != nil {
			return BudgetStatus{}, err
		}
		st, err := tracker.CheckBudget(context.Background(), estimatedCostUSD)
		if err != nil {
			return BudgetStatus{}, err
		}
		return BudgetStatus{
			State:      st.State,
			CurrentUSD: st.CurrentUSD,
			LimitUSD:   st.LimitUSD,
			Period:     boundaryPeriod(st.Period),
		}, nil
	})
}

// boundaryPeriod renames the internal window labels to the names hosts
// see: "daily" becomes "day", "monthly" becomes "month".
func boundaryPeriod(period string) string {
	switch period {
	case "daily":
		return "day"
	case "monthly":
		return "month"
	default:
		return period
	}
}
