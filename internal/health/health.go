// Package health tracks the liveness of supervised daemon components.
// Each component carries a status, the last error observed, and a restart
// counter maintained by the supervisor. Snapshots feed the bridge status
// call, the state-writer file, and the gateway /healthz endpoint.
package health

import (
	"sort"
	"sync"

	"github.com/basket/pocketclaw/internal/bus"
)

// Component statuses.
const (
	StatusStarting = "starting"
	StatusOK       = "ok"
	StatusError    = "error"
)

// Component is a point-in-time view of one supervised component.
type Component struct {
	Name         string
	Status       string
	LastError    string
	RestartCount uint64
}

// Registry is a concurrency-safe component health table.
type Registry struct {
	mu         sync.Mutex
	components map[string]*Component
	eventBus   *bus.Bus
}

// NewRegistry creates an empty registry. The bus is optional; when present,
// status transitions are published on bus.TopicHealthChanged.
func NewRegistry(eventBus *bus.Bus) *Registry {
	return &Registry{
		components: make(map[string]*Component),
		eventBus:   eventBus,
	}
}

// MarkStarting records that a component is (re)starting. The restart counter
// and last error are preserved across restarts.
func (r *Registry) MarkStarting(name string) {
	r.set(name, StatusStarting, "", false)
}

// MarkOK records a healthy component and clears its last error.
func (r *Registry) MarkOK(name string) {
	r.set(name, StatusOK, "", true)
}

// MarkError records a failed component with a description of the failure.
func (r *Registry) MarkError(name, detail string) {
	r.set(name, StatusError, detail, true)
}

// BumpRestart increments the restart counter for a component. Counters only
// grow for the lifetime of the registry.
func (r *Registry) BumpRestart(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.ensureLocked(name)
	c.RestartCount++
}

// Snapshot returns all components sorted by name.
func (r *Registry) Snapshot() []Component {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Component, 0, len(r.components))
	for _, c := range r.components {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns the component by name, false if it was never registered.
func (r *Registry) Get(name string) (Component, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.components[name]
	if !ok {
		return Component{}, false
	}
	return *c, true
}

func (r *Registry) set(name, status, detail string, clearErr bool) {
	r.mu.Lock()
	c := r.ensureLocked(name)
	changed := c.Status != status || c.LastError != detail
	c.Status = status
	if detail != "" || clearErr {
		c.LastError = detail
	}
	r.mu.Unlock()

	// Publish outside the lock; subscribers may call back into the registry.
	if changed && r.eventBus != nil {
		r.eventBus.Publish(bus.TopicHealthChanged, bus.HealthChanged{
			Component: name,
			Status:    status,
			LastError: detail,
		})
	}
}

func (r *Registry) ensureLocked(name string) *Component {
	c, ok := r.components[name]
	if !ok {
		c = &Component{Name: name, Status: StatusStarting}
		r.components[name] = c
	}
	return c
}
