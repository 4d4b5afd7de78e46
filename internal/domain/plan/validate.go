package plan

import (
	"fmt"

	"github.com/Aristman/ride-core/internal/domain"
)

// Validate checks the plan's structural invariants: unique step IDs, every
// dependency naming a step in the same plan, and an acyclic dependency relation.
func (p *Plan) Validate() error {
	if p.Request == "" {
		return fmt.Errorf("plan request is required: %w", domain.ErrValidation)
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps: %w", domain.ErrValidation)
	}

	for i := range p.Steps {
		if p.Steps[i].Capability == "" {
			return fmt.Errorf("step %q has no capability: %w", p.Steps[i].ID, domain.ErrValidation)
		}
	}

	g, err := BuildGraph(p.Steps)
	if err != nil {
		return err
	}
	if _, err := g.Batches(); err != nil {
		return err
	}
	return nil
}

// CompletedSet returns the IDs of steps whose status satisfies dependents.
func (p *Plan) CompletedSet() map[string]bool {
	done := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		if p.Steps[i].Status.Satisfied() {
			done[p.Steps[i].ID] = true
		}
	}
	return done
}
