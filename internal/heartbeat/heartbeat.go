// Package heartbeat periodically reads the workspace HEARTBEAT.md
// checklist and dispatches each unchecked task to the agent.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/basket/pocketclaw/internal/events"
	"github.com/basket/pocketclaw/internal/otel"
)

// minIntervalMinutes is the floor for the configured heartbeat interval.
const minIntervalMinutes = 5

// taskPrefix marks heartbeat-originated messages in the agent transcript.
const taskPrefix = "[Heartbeat Task] "

// Dispatcher executes a heartbeat task and returns the agent's reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (string, error)
}

// Config holds the worker's settings. Interval overrides IntervalMinutes
// when set; Events and Metrics are optional.
type Config struct {
	WorkspaceDir    string
	IntervalMinutes int
	Interval        time.Duration
	Dispatcher      Dispatcher
	Logger          *slog.Logger
	Events          *events.Bridge
	Metrics         *otel.Metrics
}

// Worker runs under the component supervisor via Run.
type Worker struct {
	workspaceDir string
	interval     time.Duration
	dispatcher   Dispatcher
	logger       *slog.Logger
	events       *events.Bridge
	metrics      *otel.Metrics
}

// NewWorker creates a heartbeat worker. Intervals below five minutes
// are raised to five.
func NewWorker(cfg Config) *Worker {
	interval := cfg.Interval
	if interval <= 0 {
		minutes := cfg.IntervalMinutes
		if minutes < minIntervalMinutes {
			minutes = minIntervalMinutes
		}
		interval = time.Duration(minutes) * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		workspaceDir: cfg.WorkspaceDir,
		interval:     interval,
		dispatcher:   cfg.Dispatcher,
		logger:       logger,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
	}
}

// Run ticks until the context is cancelled. Returns nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("heartbeat: started", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.logger.Error("heartbeat: cycle failed", "error", err)
				if w.events != nil {
					w.events.Record(events.Error{Component: "heartbeat", Message: err.Error()})
				}
			}
		}
	}
}

func (w *Worker) tick(ctx context.Context) error {
	if w.events != nil {
		w.events.Record(events.HeartbeatTick{})
	}
	if w.metrics != nil {
		w.metrics.HeartbeatTicks.Add(ctx, 1)
	}

	tasks, err := w.readTasks()
	if err != nil {
		return err
	}
	for _, task := range tasks {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := w.dispatcher.Dispatch(ctx, taskPrefix+task); err != nil {
			w.logger.Error("heartbeat: task failed", "task", task, "error", err)
			if w.events != nil {
				w.events.Record(events.Error{Component: "heartbeat", Message: err.Error()})
			}
		}
	}
	return nil
}

// readTasks loads the checklist. A missing file means no heartbeat work.
func (w *Worker) readTasks() ([]string, error) {
	path := filepath.Join(w.workspaceDir, "HEARTBEAT.md")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read HEARTBEAT.md: %w", err)
	}
	return ParseTasks(string(data)), nil
}

// ParseTasks extracts unchecked checklist entries: lines of the form
// "- [ ] task text". Checked entries and comments are ignored.
func ParseTasks(content string) []string {
	var tasks []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "- [ ]") {
			continue
		}
		task := strings.TrimSpace(strings.TrimPrefix(trimmed, "- [ ]"))
		if task != "" {
			tasks = append(tasks, task)
		}
	}
	return tasks
}
