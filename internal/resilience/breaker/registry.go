package breaker

import (
	"fmt"
	"sort"
	"time"

	"github.com/vietddude/medlingo/internal/core/domain"
)

// Registry holds one breaker per dependency. The set of dependencies is
// fixed at construction, so lookups need no lock; each breaker serializes
// its own updates.
type Registry struct {
	breakers map[domain.Dependency]*Breaker
}

// NewRegistry builds breakers for every dependency in configs.
func NewRegistry(
	configs map[domain.Dependency]Config,
	now func() time.Time,
	notify TransitionFunc,
) *Registry {
	r := &Registry{breakers: make(map[domain.Dependency]*Breaker, len(configs))}
	for dep, cfg := range configs {
		r.breakers[dep] = New(dep, cfg, now, notify)
	}
	return r
}

// Get returns the breaker for dep.
func (r *Registry) Get(dep domain.Dependency) (*Breaker, bool) {
	b, ok := r.breakers[dep]
	return b, ok
}

// Snapshot returns the breaker record for dep.
func (r *Registry) Snapshot(dep domain.Dependency) (Snapshot, bool) {
	b, ok := r.breakers[dep]
	if !ok {
		return Snapshot{}, false
	}
	return b.Snapshot(), true
}

// State returns the circuit state for dep.
func (r *Registry) State(dep domain.Dependency) (State, error) {
	b, ok := r.breakers[dep]
	if !ok {
		return StateClosed, fmt.Errorf("no circuit breaker for %s", dep)
	}
	return b.State(), nil
}

// Reset forces the circuit for dep closed.
func (r *Registry) Reset(dep domain.Dependency) error {
	b, ok := r.breakers[dep]
	if !ok {
		return fmt.Errorf("no circuit breaker for %s", dep)
	}
	b.Reset()
	return nil
}

// Snapshots returns every breaker record sorted by dependency.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Dependency < out[j].Dependency
	})
	return out
}
