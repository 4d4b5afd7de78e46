package plan

import (
	"fmt"
	"strings"

	"github.com/Aristman/ride-core/internal/domain"
)

// CircularDependencyError reports a dependency cycle, naming the stuck steps.
type CircularDependencyError struct {
	Steps []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency among steps: %s", strings.Join(e.Steps, ", "))
}

// Unwrap classifies the cycle as a validation failure.
func (e *CircularDependencyError) Unwrap() error { return domain.ErrValidation }

// InvalidTransitionError reports a (state, event) pair absent from the
// transition table. The plan is left unchanged.
type InvalidTransitionError struct {
	From  State
	Event EventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %q not allowed in state %q", e.Event, e.From)
}

// Unwrap classifies the rejected transition as a validation failure.
func (e *InvalidTransitionError) Unwrap() error { return domain.ErrValidation }

// StepExecutionError reports a step failure after its retry budget is spent.
type StepExecutionError struct {
	StepID   string
	Attempts int
	Cause    error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempt(s): %v", e.StepID, e.Attempts, e.Cause)
}

func (e *StepExecutionError) Unwrap() error { return e.Cause }
