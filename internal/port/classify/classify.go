// Package classify defines the request classifier port (interface).
package classify

import (
	"context"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

// Classifier turns a raw request into an Analysis: task type, required
// capabilities, complexity and confidence. Failures are recovered by the
// caller with a conservative default Analysis, never propagated.
type Classifier interface {
	Analyze(ctx context.Context, request string) (*plan.Analysis, error)
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, request string) (*plan.Analysis, error)

// Analyze calls f.
func (f Func) Analyze(ctx context.Context, request string) (*plan.Analysis, error) {
	return f(ctx, request)
}
