// Package daemon owns the process-wide runtime: the single lifecycle
// slot, the component supervisors, and the handles sibling facades
// (cost, cron, skills, memory, tools) borrow while the daemon runs.
package daemon

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/basket/pocketclaw/internal/agent"
	"github.com/basket/pocketclaw/internal/bus"
	"github.com/basket/pocketclaw/internal/config"
	"github.com/basket/pocketclaw/internal/cost"
	"github.com/basket/pocketclaw/internal/cron"
	"github.com/basket/pocketclaw/internal/events"
	"github.com/basket/pocketclaw/internal/health"
	"github.com/basket/pocketclaw/internal/memory"
	"github.com/basket/pocketclaw/internal/otel"
	"github.com/basket/pocketclaw/internal/persistence"
	"github.com/basket/pocketclaw/internal/skills"
)

// Options configures a Runtime.
type Options struct {
	// Logger is the base logger used until Start opens the per-daemon
	// log file. Defaults to slog.Default().
	Logger *slog.Logger
	// Quiet suppresses mirroring daemon logs to stdout. Embedding hosts
	// set this; the CLI leaves it off.
	Quiet bool
}

// Runtime is the per-process daemon runtime. One Runtime serves the
// whole process; the bridge layer constructs it lazily on first use.
type Runtime struct {
	logger *slog.Logger
	quiet  bool
	bus    *bus.Bus
	health *health.Registry
	events *events.Bridge

	mu       sync.Mutex
	poisoned bool
	state    *daemonState
}

// daemonState is the contents of the lifecycle slot while a daemon runs.
type daemonState struct {
	cancel    func()
	wg        *sync.WaitGroup
	host      string
	port      uint16
	dataDir   string
	startedAt time.Time
	cfg       config.Config

	store     *persistence.Store
	tracker   *cost.Tracker
	memories  *memory.Store
	jobs      *cron.Jobs
	runner    *agent.Runner
	loader    *skills.Loader
	installer *skills.Installer

	logger    *slog.Logger
	metrics   *otel.Metrics
	logCloser io.Closer
	otelProv  *otel.Provider
}

// New creates a Runtime. The event bridge, bus, and health registry live
// for the process lifetime; daemon instances come and go inside them.
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	eventBus := bus.New()
	return &Runtime{
		logger: logger,
		quiet:  opts.Quiet,
		bus:    eventBus,
		health: health.NewRegistry(eventBus),
		events: events.NewBridge(eventBus),
	}
}

// Events returns the process-wide event bridge.
func (r *Runtime) Events() *events.Bridge { return r.events }

// Health returns the component health registry.
func (r *Runtime) Health() *health.Registry { return r.health }

// Bus returns the in-process pub/sub bus.
func (r *Runtime) Bus() *bus.Bus { return r.bus }

// critical runs f under the lifecycle lock. A panic inside f poisons the
// slot before unwinding, so later lifecycle calls fail with ErrCorrupted
// instead of operating on half-mutated state.
func (r *Runtime) critical(f func() error) error {
	r.mu.Lock()
	if r.poisoned {
		r.mu.Unlock()
		return ErrCorrupted
	}
	defer func() {
		if p := recover(); p != nil {
			r.poisoned = true
			r.mu.Unlock()
			panic(p)
		}
		r.mu.Unlock()
	}()
	return f()
}

// readState returns the running daemon's state or the appropriate error.
func (r *Runtime) readState() (*daemonState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poisoned {
		return nil, ErrCorrupted
	}
	if r.state == nil {
		return nil, ErrNotRunning
	}
	return r.state, nil
}

// Running reports whether the lifecycle slot is occupied.
func (r *Runtime) Running() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poisoned {
		return false, ErrCorrupted
	}
	return r.state != nil, nil
}

// ConfigSnapshot returns the running daemon's parsed configuration.
func (r *Runtime) ConfigSnapshot() (config.Config, error) {
	st, err := r.readState()
	if err != nil {
		return config.Config{}, err
	}
	return st.cfg, nil
}

// Tracker returns the cost tracker. Requires a running daemon with cost
// tracking enabled and initialised.
func (r *Runtime) Tracker() (*cost.Tracker, error) {
	st, err := r.readState()
	if err != nil {
		return nil, err
	}
	if st.tracker == nil {
		return nil, stateErrorf("cost tracking not enabled")
	}
	return st.tracker, nil
}

// Memories returns the long-term memory store.
func (r *Runtime) Memories() (*memory.Store, error) {
	st, err := r.readState()
	if err != nil {
		return nil, err
	}
	if st.memories == nil {
		return nil, stateErrorf("memory backend not available")
	}
	return st.memories, nil
}

// Jobs returns the cron job store.
func (r *Runtime) Jobs() (*cron.Jobs, error) {
	st, err := r.readState()
	if err != nil {
		return nil, err
	}
	if st.jobs == nil {
		return nil, stateErrorf("scheduler storage not available")
	}
	return st.jobs, nil
}

// Skills returns the skill loader and installer for the running workspace.
func (r *Runtime) Skills() (*skills.Loader, *skills.Installer, error) {
	st, err := r.readState()
	if err != nil {
		return nil, nil, err
	}
	return st.loader, st.installer, nil
}

// Runner returns the agent runner.
func (r *Runtime) Runner() (*agent.Runner, error) {
	st, err := r.readState()
	if err != nil {
		return nil, err
	}
	return st.runner, nil
}

// ComponentHealth is one supervised component's snapshot.
type ComponentHealth struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	LastError    string `json:"last_error,omitempty"`
	RestartCount uint64 `json:"restart_count"`
}

// Snapshot is the full daemon health view.
type Snapshot struct {
	DaemonRunning bool              `json:"daemon_running"`
	PID           int32             `json:"pid"`
	UptimeSeconds uint64            `json:"uptime_seconds"`
	Components    []ComponentHealth `json:"components"`
}

// Status returns the current health snapshot. Works whether or not a
// daemon is running; fails only on a poisoned lifecycle slot.
func (r *Runtime) Status() (Snapshot, error) {
	r.mu.Lock()
	if r.poisoned {
		r.mu.Unlock()
		return Snapshot{}, ErrCorrupted
	}
	running := r.state != nil
	var startedAt time.Time
	if running {
		startedAt = r.state.startedAt
	}
	r.mu.Unlock()

	snap := Snapshot{
		DaemonRunning: running,
		PID:           int32(os.Getpid()),
	}
	if running {
		snap.UptimeSeconds = uint64(time.Since(startedAt).Seconds())
	}
	for _, c := range r.health.Snapshot() {
		snap.Components = append(snap.Components, ComponentHealth{
			Name:         c.Name,
			Status:       c.Status,
			LastError:    c.LastError,
			RestartCount: c.RestartCount,
		})
	}
	return snap, nil
}
