package cost

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/pocketclaw/internal/persistence"
)

func newTestTracker(t *testing.T, limits Limits) *Tracker {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "cost.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewTracker(store, limits, "session-test")
}

func TestRecordAndSummarize(t *testing.T) {
	tr := newTestTracker(t, Limits{})
	ctx := context.Background()

	if err := tr.RecordUsage(ctx, "openai", "gpt-4o", 1000, 500); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if err := tr.RecordUsage(ctx, "openai", "gpt-4o-mini", 2000, 1000); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	sum, err := tr.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.RequestCount != 2 {
		t.Errorf("request count = %d, want 2", sum.RequestCount)
	}
	if sum.TotalTokens != 4500 {
		t.Errorf("total tokens = %d, want 4500", sum.TotalTokens)
	}
	if sum.SessionCostUSD <= 0 {
		t.Errorf("session cost = %f, want > 0", sum.SessionCostUSD)
	}
	// Records were just written, so daily and monthly include them.
	if sum.DailyCostUSD < sum.SessionCostUSD {
		t.Errorf("daily %f < session %f", sum.DailyCostUSD, sum.SessionCostUSD)
	}

	var breakdown map[string]map[string]any
	if err := json.Unmarshal([]byte(sum.ModelBreakdownJSON), &breakdown); err != nil {
		t.Fatalf("breakdown not valid JSON: %v", err)
	}
	if len(breakdown) != 2 {
		t.Fatalf("breakdown models = %d, want 2: %s", len(breakdown), sum.ModelBreakdownJSON)
	}
	if breakdown["gpt-4o"]["requests"].(float64) != 1 {
		t.Errorf("gpt-4o requests: %v", breakdown["gpt-4o"])
	}
}

func TestCheckBudgetAllowedWhenNoLimits(t *testing.T) {
	tr := newTestTracker(t, Limits{})
	st, err := tr.CheckBudget(context.Background(), 100.0)
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if st.State != BudgetAllowed {
		t.Fatalf("state = %s, want allowed", st.State)
	}
}

func TestCheckBudgetExceeded(t *testing.T) {
	tr := newTestTracker(t, Limits{SessionUSD: 0.001})
	ctx := context.Background()

	// gpt-4o at 1M prompt tokens is $2.50, far over the 0.001 limit.
	if err := tr.RecordUsage(ctx, "openai", "gpt-4o", 1_000_000, 0); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	st, err := tr.CheckBudget(ctx, 0)
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if st.State != BudgetExceeded {
		t.Fatalf("state = %s, want exceeded", st.State)
	}
	if st.Period != "session" {
		t.Fatalf("period = %s, want session", st.Period)
	}
	if st.LimitUSD != 0.001 || st.CurrentUSD < 2.0 {
		t.Fatalf("unexpected amounts: %+v", st)
	}
}

func TestCheckBudgetWarning(t *testing.T) {
	tr := newTestTracker(t, Limits{SessionUSD: 3.0, WarningThreshold: 0.8})
	ctx := context.Background()

	// $2.50 spent of a $3 limit is above the 80% warning threshold.
	if err := tr.RecordUsage(ctx, "openai", "gpt-4o", 1_000_000, 0); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	st, err := tr.CheckBudget(ctx, 0)
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if st.State != BudgetWarning {
		t.Fatalf("state = %s, want warning", st.State)
	}
}

func TestCheckBudgetCountsEstimate(t *testing.T) {
	tr := newTestTracker(t, Limits{DailyUSD: 1.0})
	st, err := tr.CheckBudget(context.Background(), 5.0)
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if st.State != BudgetExceeded || st.Period != "daily" {
		t.Fatalf("estimate not counted: %+v", st)
	}
}

func TestEstimateCost(t *testing.T) {
	cost := EstimateCost("gpt-4o", 1000, 500)
	if cost < 0.007 || cost > 0.008 {
		t.Fatalf("expected ~0.0075, got %f", cost)
	}
	if EstimateCost("unknown-model-xyz", 1000, 500) != 0.0 {
		t.Fatal("unknown model should cost 0")
	}
	// Date-suffixed model names fall back to the base entry.
	if EstimateCost("claude-sonnet-4-5-20260115", 1_000_000, 0) != 3.00 {
		t.Fatal("prefix fallback not applied")
	}
}

func TestCostOnValidatesDate(t *testing.T) {
	tr := newTestTracker(t, Limits{})
	ctx := context.Background()

	if _, err := tr.CostOn(ctx, 2026, 2, 30); err == nil {
		t.Fatal("nonexistent date accepted")
	}
	if _, err := tr.CostOn(ctx, 2026, 13, 1); err == nil {
		t.Fatal("month 13 accepted")
	}

	if err := tr.RecordUsage(ctx, "openai", "gpt-4o", 1000, 500); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	now := time.Now().UTC()
	got, err := tr.CostOn(ctx, now.Year(), int(now.Month()), now.Day())
	if err != nil {
		t.Fatalf("CostOn: %v", err)
	}
	if got <= 0 {
		t.Fatalf("cost for today = %f, want > 0", got)
	}
	empty, err := tr.CostOn(ctx, 1999, 1, 1)
	if err != nil || empty != 0 {
		t.Fatalf("cost for empty day = %f, err = %v", empty, err)
	}
}

func TestCostInMonth(t *testing.T) {
	tr := newTestTracker(t, Limits{})
	ctx := context.Background()

	if _, err := tr.CostInMonth(ctx, 2026, 0); err == nil {
		t.Fatal("month 0 accepted")
	}

	if err := tr.RecordUsage(ctx, "openai", "gpt-4o", 1000, 500); err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	now := time.Now().UTC()
	got, err := tr.CostInMonth(ctx, now.Year(), int(now.Month()))
	if err != nil {
		t.Fatalf("CostInMonth: %v", err)
	}
	if got <= 0 {
		t.Fatalf("cost for this month = %f, want > 0", got)
	}
}
