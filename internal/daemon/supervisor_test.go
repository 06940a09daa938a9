package daemon

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/basket/pocketclaw/internal/health"
)

func backoffSequence(initialSecs, maxSecs uint64, steps int) []int {
	initial, max := normalizeBackoff(
		time.Duration(initialSecs)*time.Second,
		time.Duration(maxSecs)*time.Second,
	)
	var out []int
	backoff := initial
	for i := 0; i < steps; i++ {
		out = append(out, int(backoff/time.Second))
		backoff = nextBackoff(backoff, max)
	}
	return out
}

func TestBackoffDoublesAndSaturates(t *testing.T) {
	got := backoffSequence(1, 60, 9)
	want := []int{1, 2, 4, 8, 16, 32, 60, 60, 60}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", got, want)
		}
	}

	got = backoffSequence(2, 10, 5)
	want = []int{2, 4, 8, 10, 10}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", got, want)
		}
	}
}

func TestBackoffFloorAndCeiling(t *testing.T) {
	// Zero config means one second, and max never drops below initial.
	initial, max := normalizeBackoff(0, 0)
	if initial != time.Second || max != time.Second {
		t.Fatalf("normalized = %v, %v", initial, max)
	}
	initial, max = normalizeBackoff(30*time.Second, 5*time.Second)
	if max != 30*time.Second {
		t.Fatalf("max = %v, want clamped to initial", max)
	}
}

func TestSupervisorBackoffResetsOnCleanExit(t *testing.T) {
	reg := health.NewRegistry(nil)
	calls := 0
	blocked := make(chan struct{})
	run := func(ctx context.Context) error {
		calls++
		switch {
		case calls <= 3:
			return errors.New("boom")
		case calls == 4:
			return nil // clean exit while still running
		case calls == 5:
			return errors.New("boom again")
		default:
			close(blocked)
			<-ctx.Done()
			return nil
		}
	}

	var sleeps []time.Duration
	sup := &supervisor{
		name:    "worker",
		initial: time.Second,
		max:     4 * time.Second,
		health:  reg,
		logger:  slog.New(slog.DiscardHandler),
		run:     run,
		sleep: func(ctx context.Context, d time.Duration) bool {
			sleeps = append(sleeps, d)
			return ctx.Err() == nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.loop(ctx)
		close(done)
	}()

	select {
	case <-blocked:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor never reached the blocking run")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop on cancel")
	}

	want := []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, // errors keep doubling
		time.Second,     // clean exit resets
		2 * time.Second, // next error doubles again
	}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("sleeps = %v, want %v", sleeps, want)
		}
	}

	comp, ok := reg.Get("worker")
	if !ok {
		t.Fatal("component never registered")
	}
	if comp.RestartCount != 5 {
		t.Fatalf("restarts = %d, want 5", comp.RestartCount)
	}
}

func TestSupervisorMarksCleanExitAsFault(t *testing.T) {
	reg := health.NewRegistry(nil)
	first := true
	blocked := make(chan struct{})
	sup := &supervisor{
		name:    "worker",
		initial: time.Second,
		max:     time.Second,
		health:  reg,
		logger:  slog.New(slog.DiscardHandler),
		run: func(ctx context.Context) error {
			if first {
				first = false
				return nil
			}
			close(blocked)
			<-ctx.Done()
			return nil
		},
		sleep: func(ctx context.Context, d time.Duration) bool {
			// Inspect the health mark recorded before the sleep.
			comp, _ := reg.Get("worker")
			if comp.Status != health.StatusError || comp.LastError != "component exited unexpectedly" {
				t.Errorf("component = %+v", comp)
			}
			return true
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.loop(ctx)
		close(done)
	}()
	<-blocked
	cancel()
	<-done
}
