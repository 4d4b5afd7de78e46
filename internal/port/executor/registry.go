package executor

import (
	"sort"
	"sync"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

// MapRegistry is a mutex-guarded in-memory Registry.
type MapRegistry struct {
	mu        sync.RWMutex
	executors map[plan.Capability]StepExecutor
}

// NewRegistry creates an empty MapRegistry.
func NewRegistry() *MapRegistry {
	return &MapRegistry{executors: make(map[plan.Capability]StepExecutor)}
}

// Register installs an executor under its capability.
func (r *MapRegistry) Register(ex StepExecutor) {
	r.mu.Lock()
	r.executors[ex.Capability()] = ex
	r.mu.Unlock()
}

// Lookup returns the executor for the capability, or false.
func (r *MapRegistry) Lookup(capability plan.Capability) (StepExecutor, bool) {
	r.mu.RLock()
	ex, ok := r.executors[capability]
	r.mu.RUnlock()
	return ex, ok
}

// Capabilities returns the registered capability types, sorted.
func (r *MapRegistry) Capabilities() []plan.Capability {
	r.mu.RLock()
	caps := make([]plan.Capability, 0, len(r.executors))
	for c := range r.executors {
		caps = append(caps, c)
	}
	r.mu.RUnlock()

	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
