package cron

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/basket/pocketclaw/internal/persistence"
)

func newTestJobs(t *testing.T) *Jobs {
	t.Helper()
	store, err := persistence.Open(filepath.Join(t.TempDir(), "cron.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewJobs(store)
}

func TestNextRunTime(t *testing.T) {
	after := time.Date(2026, 8, 24, 10, 30, 0, 0, time.UTC)
	next, err := NextRunTime("0 12 * * *", after)
	if err != nil {
		t.Fatalf("NextRunTime: %v", err)
	}
	want := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("next = %v, want %v", next, want)
	}
}

func TestNextRunTimeRejectsSixFields(t *testing.T) {
	if _, err := NextRunTime("0 0 12 * * *", time.Now()); err == nil {
		t.Fatal("6-field expression should be rejected")
	}
}

func TestAddValidatesExpression(t *testing.T) {
	j := newTestJobs(t)
	ctx := context.Background()

	if _, err := j.Add(ctx, "not a cron", "echo hi"); err == nil {
		t.Fatal("expected invalid expression error")
	}
	if _, err := j.Add(ctx, "* * * * *", "  "); err == nil {
		t.Fatal("expected empty command error")
	}

	job, err := j.Add(ctx, "*/5 * * * *", "summarize inbox")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if job.NextRun == nil || !job.NextRun.After(time.Now().Add(-time.Minute)) {
		t.Fatalf("next run not computed: %+v", job)
	}

	jobs, err := j.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Command != "summarize inbox" {
		t.Fatalf("unexpected list: %+v", jobs)
	}
}

func TestAddOnce(t *testing.T) {
	j := newTestJobs(t)
	ctx := context.Background()

	if _, err := j.AddOnce(ctx, "soon", "x"); err == nil {
		t.Fatal("expected invalid delay error")
	}
	if _, err := j.AddOnce(ctx, "-5m", "x"); err == nil {
		t.Fatal("expected negative delay error")
	}

	job, err := j.AddOnce(ctx, "5m", "remind me")
	if err != nil {
		t.Fatalf("AddOnce: %v", err)
	}
	if !job.OneShot || job.Expression != OneShotExpression {
		t.Fatalf("not marked one-shot: %+v", job)
	}
	until := time.Until(*job.NextRun)
	if until < 4*time.Minute || until > 6*time.Minute {
		t.Fatalf("next run %v not ~5m out", until)
	}
}

func TestRemoveAndPause(t *testing.T) {
	j := newTestJobs(t)
	ctx := context.Background()

	job, _ := j.Add(ctx, "* * * * *", "tick")

	ok, err := j.SetPaused(ctx, job.ID, true)
	if err != nil || !ok {
		t.Fatalf("SetPaused: ok=%v err=%v", ok, err)
	}
	got, _ := j.Get(ctx, job.ID)
	if got == nil || !got.Paused {
		t.Fatalf("job not paused: %+v", got)
	}

	ok, err = j.Remove(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("Remove: ok=%v err=%v", ok, err)
	}
	ok, _ = j.Remove(ctx, job.ID)
	if ok {
		t.Fatal("second remove should report missing")
	}
}

func TestDueSkipsPausedAndFuture(t *testing.T) {
	j := newTestJobs(t)
	ctx := context.Background()

	past, _ := j.AddOnce(ctx, "1ms", "due now")
	paused, _ := j.AddOnce(ctx, "1ms", "paused")
	j.SetPaused(ctx, paused.ID, true)
	j.AddOnce(ctx, "1h", "future")

	time.Sleep(5 * time.Millisecond)
	due, err := j.Due(ctx, time.Now())
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].ID != past.ID {
		t.Fatalf("due = %+v, want only the unpaused past job", due)
	}
}

func TestMarkRunAdvancesRecurring(t *testing.T) {
	j := newTestJobs(t)
	ctx := context.Background()

	job, _ := j.Add(ctx, "0 * * * *", "hourly")
	ranAt := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	if err := j.MarkRun(ctx, job, ranAt, "ok"); err != nil {
		t.Fatalf("MarkRun: %v", err)
	}

	got, _ := j.Get(ctx, job.ID)
	if got.LastStatus == nil || *got.LastStatus != "ok" {
		t.Fatalf("last status not recorded: %+v", got)
	}
	want := time.Date(2026, 8, 24, 11, 0, 0, 0, time.UTC)
	if got.NextRun == nil || !got.NextRun.Equal(want) {
		t.Fatalf("next run = %v, want %v", got.NextRun, want)
	}
}

func TestMarkRunDeletesOneShot(t *testing.T) {
	j := newTestJobs(t)
	ctx := context.Background()

	job, _ := j.AddOnce(ctx, "1ms", "once")
	if err := j.MarkRun(ctx, job, time.Now(), "ok"); err != nil {
		t.Fatalf("MarkRun: %v", err)
	}
	got, err := j.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("one-shot survived its run: %+v", got)
	}
}

func TestRunNow(t *testing.T) {
	j := newTestJobs(t)
	ctx := context.Background()

	job, _ := j.Add(ctx, "0 0 1 1 *", "yearly")
	ok, err := j.RunNow(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("RunNow: ok=%v err=%v", ok, err)
	}
	due, _ := j.Due(ctx, time.Now().Add(time.Second))
	if len(due) != 1 {
		t.Fatalf("job not due after RunNow: %+v", due)
	}
}
