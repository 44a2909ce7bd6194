package breaker

import (
	"sort"
	"sync"
)

// Registry owns the process-wide name -> breaker map. It is an explicit,
// injectable object rather than a package-level singleton so tests can
// instantiate isolated registries. Lookups are read-mostly; writes happen
// only on first creation or explicit removal.
type Registry struct {
	mu            sync.RWMutex
	breakers      map[string]*Breaker
	defaults      Config
	onStateChange StateChange
}

// NewRegistry creates a registry. Every breaker created through it inherits
// the default config (unless overridden per call) and the state-change
// callback.
func NewRegistry(defaults Config, onStateChange StateChange) *Registry {
	return &Registry{
		breakers:      make(map[string]*Breaker),
		defaults:      defaults,
		onStateChange: onStateChange,
	}
}

// GetOrCreate returns the breaker for name, creating it on first use.
// The breaker is a singleton per name within the registry.
func (r *Registry) GetOrCreate(name string) *Breaker {
	return r.GetOrCreateWith(name, r.defaults)
}

// GetOrCreateWith is GetOrCreate with an explicit config for first creation.
// An existing breaker keeps its original config.
func (r *Registry) GetOrCreateWith(name string, cfg Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = New(name, cfg, r.onStateChange)
	r.breakers[name] = b
	return b
}

// Get returns the breaker for name if it exists.
func (r *Registry) Get(name string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[name]
	return b, ok
}

// Remove destroys the breaker for name. Used on shutdown or when a
// dependency is decommissioned.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, name)
}

// Names returns all registered breaker names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResetAll resets every breaker to CLOSED with zeroed counters.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	for _, b := range breakers {
		b.Reset()
	}
}

// Snapshot returns metrics for every registered breaker keyed by name.
func (r *Registry) Snapshot() map[string]Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Metrics, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.Metrics()
	}
	return out
}
