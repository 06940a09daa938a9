package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/basket/pocketclaw/internal/bus"
	"github.com/basket/pocketclaw/internal/events"
)

// debounceWindow coalesces bursts of filesystem events into one reload.
const debounceWindow = 150 * time.Millisecond

// WatcherConfig holds the watcher's settings. Debounce overrides the
// default window when set; Bus and Events are optional.
type WatcherConfig struct {
	Dir      string
	Bus      *bus.Bus
	Events   *events.Bridge
	Logger   *slog.Logger
	Debounce time.Duration
}

// Watcher publishes on the skills topic when a manifest on disk changes.
// It watches the skills directory and its immediate child directories.
type Watcher struct {
	dir      string
	bus      *bus.Bus
	events   *events.Bridge
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher creates a skills watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = debounceWindow
	}
	return &Watcher{
		dir:      cfg.Dir,
		bus:      cfg.Bus,
		events:   cfg.Events,
		logger:   logger,
		debounce: debounce,
	}
}

// Run watches until the context is cancelled. Returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create skills dir: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch skills dir: %w", err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read skills dir: %w", err)
	}
	for _, ent := range entries {
		if ent.IsDir() {
			_ = fsw.Add(filepath.Join(w.dir, ent.Name()))
		}
	}
	w.logger.Info("skills: watcher started", "dir", w.dir)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return fmt.Errorf("fsnotify event channel closed")
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}

			// New skill directories must be watched as they appear; the
			// create also counts as a change even if the manifest write
			// races past watcher registration.
			createdDir := false
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					createdDir = true
					_ = fsw.Add(ev.Name)
				}
			}
			if filepath.Base(ev.Name) != ManifestName && !createdDir {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-fsw.Errors:
			if !ok {
				return fmt.Errorf("fsnotify error channel closed")
			}
			w.logger.Warn("skills: watcher error", "error", err)
			if w.events != nil {
				w.events.Record(events.Error{Component: "skills-watcher", Message: err.Error()})
			}
		case <-timerC:
			timerC = nil
			w.notify()
		}
	}
}

func (w *Watcher) notify() {
	w.logger.Info("skills: manifest change detected", "dir", w.dir)
	if w.bus != nil {
		w.bus.Publish(bus.TopicSkillsChanged, w.dir)
	}
	if w.events != nil {
		w.events.Record(events.ChannelMessage{Channel: "skills", Direction: "changed"})
	}
}
