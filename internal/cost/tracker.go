// Package cost maintains the usage ledger and enforces spend budgets.
// Every provider call records tokens and estimated USD cost in sqlite;
// budget checks run session, daily, and monthly windows in that order.
package cost

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/basket/pocketclaw/internal/persistence"
)

// Budget states.
const (
	BudgetAllowed  = "allowed"
	BudgetWarning  = "warning"
	BudgetExceeded = "exceeded"
)

// BudgetStatus is the result of a budget check. CurrentUSD, LimitUSD, and
// Period are only meaningful for warning and exceeded states.
type BudgetStatus struct {
	State      string
	CurrentUSD float64
	LimitUSD   float64
	Period     string // "session", "daily", or "monthly"
}

// Limits holds the configured spend ceilings. A zero limit disables that window.
type Limits struct {
	SessionUSD       float64
	DailyUSD         float64
	MonthlyUSD       float64
	WarningThreshold float64 // fraction of a limit that triggers a warning
}

// Summary aggregates the ledger for the bridge.
type Summary struct {
	SessionCostUSD     float64
	DailyCostUSD       float64
	MonthlyCostUSD     float64
	TotalTokens        uint64
	RequestCount       uint64
	ModelBreakdownJSON string
}

// Tracker records usage against a session and answers budget queries.
type Tracker struct {
	store     *persistence.Store
	limits    Limits
	sessionID string
}

// NewTracker creates a tracker bound to a session id. Each daemon start is
// its own session.
func NewTracker(store *persistence.Store, limits Limits, sessionID string) *Tracker {
	if limits.WarningThreshold <= 0 || limits.WarningThreshold > 1 {
		limits.WarningThreshold = 0.8
	}
	return &Tracker{store: store, limits: limits, sessionID: sessionID}
}

// SessionID returns the tracker's session id.
func (t *Tracker) SessionID() string { return t.sessionID }

// RecordUsage appends a usage record. The cost is estimated from the model
// pricing table when the provider does not report one.
func (t *Tracker) RecordUsage(ctx context.Context, provider, model string, inputTokens, outputTokens int) error {
	costUSD := EstimateCost(model, inputTokens, outputTokens)
	return persistence.RetryOnBusy(ctx, 5, func() error {
		_, err := t.store.DB().ExecContext(ctx, `
			INSERT INTO usage_records (id, created_at, session_id, provider, model, input_tokens, output_tokens, cost_usd)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(),
			time.Now().UTC().Format(time.RFC3339Nano),
			t.sessionID, provider, model, inputTokens, outputTokens, costUSD,
		)
		return err
	})
}

// Summary aggregates session, daily, and monthly spend plus per-model totals.
func (t *Tracker) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	var err error

	if out.SessionCostUSD, err = t.sessionCost(ctx); err != nil {
		return out, err
	}
	if out.DailyCostUSD, err = t.DailyCost(ctx); err != nil {
		return out, err
	}
	if out.MonthlyCostUSD, err = t.MonthlyCost(ctx); err != nil {
		return out, err
	}

	row := t.store.DB().QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens), 0), COUNT(*)
		FROM usage_records WHERE session_id = ?`, t.sessionID)
	if err := row.Scan(&out.TotalTokens, &out.RequestCount); err != nil {
		return out, fmt.Errorf("aggregate session usage: %w", err)
	}

	breakdown, err := t.modelBreakdown(ctx)
	if err != nil {
		return out, err
	}
	out.ModelBreakdownJSON = breakdown
	return out, nil
}

type modelUsage struct {
	CostUSD  float64 `json:"cost_usd"`
	Tokens   uint64  `json:"tokens"`
	Requests uint64  `json:"requests"`
}

func (t *Tracker) modelBreakdown(ctx context.Context) (string, error) {
	rows, err := t.store.DB().QueryContext(ctx, `
		SELECT model, COALESCE(SUM(cost_usd), 0), COALESCE(SUM(input_tokens + output_tokens), 0), COUNT(*)
		FROM usage_records WHERE session_id = ?
		GROUP BY model`, t.sessionID)
	if err != nil {
		return "", fmt.Errorf("model breakdown: %w", err)
	}
	defer rows.Close()

	breakdown := make(map[string]modelUsage)
	for rows.Next() {
		var model string
		var mu modelUsage
		if err := rows.Scan(&model, &mu.CostUSD, &mu.Tokens, &mu.Requests); err != nil {
			return "", err
		}
		breakdown[model] = mu
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	data, err := json.Marshal(breakdown)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *Tracker) sessionCost(ctx context.Context) (float64, error) {
	return t.sumCost(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records WHERE session_id = ?`, t.sessionID)
}

// DailyCost sums today's spend (UTC) across all sessions.
func (t *Tracker) DailyCost(ctx context.Context) (float64, error) {
	return t.sumCost(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records WHERE created_at >= date('now')`)
}

// MonthlyCost sums the current calendar month's spend (UTC) across all sessions.
func (t *Tracker) MonthlyCost(ctx context.Context) (float64, error) {
	return t.sumCost(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records WHERE strftime('%Y-%m', created_at) = strftime('%Y-%m', 'now')`)
}

// CostOn sums the spend for a specific calendar day (UTC) across all
// sessions. The date must exist; 2026-02-30 is rejected, not normalized.
func (t *Tracker) CostOn(ctx context.Context, year, month, day int) (float64, error) {
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != time.Month(month) || d.Day() != day {
		return 0, fmt.Errorf("invalid date: %d-%d-%d", year, month, day)
	}
	return t.sumCost(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records WHERE date(created_at) = ?`,
		d.Format("2006-01-02"))
}

// CostInMonth sums the spend for a specific calendar month (UTC).
func (t *Tracker) CostInMonth(ctx context.Context, year, month int) (float64, error) {
	if month < 1 || month > 12 {
		return 0, fmt.Errorf("invalid month: %d", month)
	}
	return t.sumCost(ctx,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_records WHERE strftime('%Y-%m', created_at) = ?`,
		fmt.Sprintf("%04d-%02d", year, month))
}

func (t *Tracker) sumCost(ctx context.Context, query string, args ...any) (float64, error) {
	var sum sql.NullFloat64
	if err := t.store.DB().QueryRowContext(ctx, query, args...).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum cost: %w", err)
	}
	return sum.Float64, nil
}

// CheckBudget evaluates the windows in order session, daily, monthly.
// The estimated cost of the pending request is counted against each window.
// The first window over its limit wins; otherwise the first window past the
// warning threshold.
func (t *Tracker) CheckBudget(ctx context.Context, estimatedUSD float64) (BudgetStatus, error) {
	type window struct {
		period string
		limit  float64
		spent  func(context.Context) (float64, error)
	}
	windows := []window{
		{"session", t.limits.SessionUSD, t.sessionCost},
		{"daily", t.limits.DailyUSD, t.DailyCost},
		{"monthly", t.limits.MonthlyUSD, t.MonthlyCost},
	}

	var warning *BudgetStatus
	for _, w := range windows {
		if w.limit <= 0 {
			continue
		}
		spent, err := w.spent(ctx)
		if err != nil {
			return BudgetStatus{}, err
		}
		projected := spent + estimatedUSD
		if projected > w.limit {
			return BudgetStatus{State: BudgetExceeded, CurrentUSD: spent, LimitUSD: w.limit, Period: w.period}, nil
		}
		if warning == nil && projected >= w.limit*t.limits.WarningThreshold {
			warning = &BudgetStatus{State: BudgetWarning, CurrentUSD: spent, LimitUSD: w.limit, Period: w.period}
		}
	}
	if warning != nil {
		return *warning, nil
	}
	return BudgetStatus{State: BudgetAllowed}, nil
}
