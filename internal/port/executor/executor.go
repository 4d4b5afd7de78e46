// Package executor defines the step executor port and the capability registry.
package executor

import (
	"context"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

// Result is the outcome of one step invocation.
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// StepExecutor performs the work for one capability.
type StepExecutor interface {
	// Capability names the kind of steps this executor handles.
	Capability() plan.Capability

	// Execute runs the step against the given input (the step's own input
	// merged with relevant outputs of its completed dependencies).
	Execute(ctx context.Context, step *plan.Step, input map[string]any) (*Result, error)
}

// Registry resolves capabilities to executors. Registries are injected, not
// process-global, so independent orchestrators can run with disjoint sets.
type Registry interface {
	// Lookup returns the executor for a capability, or false if none is
	// registered. Absence is tolerated by the scheduler (the step is skipped).
	Lookup(capability plan.Capability) (StepExecutor, bool)

	// Register installs an executor, replacing any previous one for the
	// same capability.
	Register(ex StepExecutor)

	// Capabilities lists the registered capability types.
	Capabilities() []plan.Capability
}
