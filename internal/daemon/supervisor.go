package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/basket/pocketclaw/internal/health"
)

// supervisor restarts one component forever with exponential backoff.
// A component that returns an error keeps its current backoff doubling;
// a component that returns nil while the daemon is still running is a
// fault too ("component exited unexpectedly") but resets the backoff,
// since a clean return usually means a transient condition cleared.
type supervisor struct {
	name    string
	initial time.Duration
	max     time.Duration
	health  *health.Registry
	logger  *slog.Logger
	run     func(context.Context) error

	// sleep overrides the inter-restart wait in tests. nil means a real
	// context-abortable sleep.
	sleep func(context.Context, time.Duration) bool
}

// normalizeBackoff clamps the configured window: initial is at least one
// second, max is at least initial.
func normalizeBackoff(initial, max time.Duration) (time.Duration, time.Duration) {
	if initial < time.Second {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return initial, max
}

// nextBackoff doubles with saturation at max.
func nextBackoff(cur, max time.Duration) time.Duration {
	if cur > max/2 {
		return max
	}
	return cur * 2
}

func (s *supervisor) loop(ctx context.Context) {
	initial, max := normalizeBackoff(s.initial, s.max)
	backoff := initial

	for {
		if ctx.Err() != nil {
			return
		}
		s.health.MarkStarting(s.name)
		s.health.MarkOK(s.name)

		err := s.run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			s.health.MarkError(s.name, "component exited unexpectedly")
			s.logger.Warn("daemon: component exited unexpectedly", "component", s.name)
			backoff = initial
		} else {
			s.health.MarkError(s.name, err.Error())
			s.logger.Error("daemon: component failed", "component", s.name, "error", err)
		}

		s.health.BumpRestart(s.name)
		if !s.wait(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, max)
	}
}

func (s *supervisor) wait(ctx context.Context, d time.Duration) bool {
	if s.sleep != nil {
		return s.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
