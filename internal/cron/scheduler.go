package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/basket/pocketclaw/internal/events"
)

// Dispatcher executes a due job's command and returns the agent's reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, command string) (string, error)
}

// SchedulerConfig holds the dependencies for the scheduler component.
type SchedulerConfig struct {
	Jobs       *Jobs
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Events     *events.Bridge
	Interval   time.Duration // tick interval; defaults to 30 seconds if zero
}

// Scheduler periodically queries for due jobs and dispatches each one.
// It runs under the component supervisor via Run.
type Scheduler struct {
	jobs       *Jobs
	dispatcher Dispatcher
	logger     *slog.Logger
	events     *events.Bridge
	interval   time.Duration
}

// NewScheduler creates a Scheduler with the given config.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		jobs:       cfg.Jobs,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		events:     cfg.Events,
		interval:   interval,
	}
}

// Run ticks until the context is cancelled. It fires immediately on startup,
// then on each tick. Returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.jobs.Due(ctx, now)
	if err != nil {
		s.logger.Error("cron: failed to query due jobs", "error", err)
		return
	}
	for _, job := range due {
		if ctx.Err() != nil {
			return
		}
		s.fire(ctx, job, now)
	}
}

// fire dispatches the job command and records the outcome.
func (s *Scheduler) fire(ctx context.Context, job Job, now time.Time) {
	start := time.Now()
	_, err := s.dispatcher.Dispatch(ctx, job.Command)

	status := "ok"
	if err != nil {
		status = fmt.Sprintf("error: %v", err)
		if s.events != nil {
			s.events.Record(events.Error{Component: "scheduler", Message: err.Error()})
		}
	}
	if s.events != nil {
		s.events.Record(events.ToolCall{Tool: "schedule", Duration: time.Since(start), Success: err == nil})
	}

	if err := s.jobs.MarkRun(ctx, job, now, status); err != nil {
		s.logger.Error("cron: failed to record job run",
			"job_id", job.ID,
			"error", err,
		)
		return
	}

	s.logger.Info("cron: job fired",
		"job_id", job.ID,
		"one_shot", job.OneShot,
		"status", status,
	)
}
