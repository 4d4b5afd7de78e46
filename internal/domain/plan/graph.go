package plan

import (
	"fmt"
	"sort"

	"github.com/Aristman/ride-core/internal/domain"
)

// Graph is the dependency DAG over a plan's steps. Edges point from a step to
// the steps that depend on it.
type Graph struct {
	order      []string            // step IDs in declaration order
	deps       map[string][]string // step -> its dependencies
	dependents map[string][]string // step -> steps depending on it
}

// BuildGraph indexes the dependency relation of the given steps. Duplicate
// step IDs and references to unknown steps are rejected before any scheduling.
func BuildGraph(steps []Step) (*Graph, error) {
	g := &Graph{
		deps:       make(map[string][]string, len(steps)),
		dependents: make(map[string][]string, len(steps)),
	}

	for i := range steps {
		id := steps[i].ID
		if id == "" {
			return nil, fmt.Errorf("step %d has no id: %w", i, domain.ErrValidation)
		}
		if _, dup := g.deps[id]; dup {
			return nil, fmt.Errorf("duplicate step id %q: %w", id, domain.ErrValidation)
		}
		g.order = append(g.order, id)
		g.deps[id] = append([]string(nil), steps[i].DependsOn...)
	}

	for id, deps := range g.deps {
		for _, dep := range deps {
			if _, ok := g.deps[dep]; !ok {
				return nil, fmt.Errorf("step %q depends on unknown step %q: %w", id, dep, domain.ErrValidation)
			}
			g.dependents[dep] = append(g.dependents[dep], id)
		}
	}

	return g, nil
}

// Batches partitions the steps into parallel-safe batches using Kahn's
// algorithm: every step lands in a batch strictly after all of its
// dependencies. A cycle yields a CircularDependencyError naming the stuck steps.
func (g *Graph) Batches() ([][]string, error) {
	inDegree := make(map[string]int, len(g.order))
	for _, id := range g.order {
		inDegree[id] = len(g.deps[id])
	}

	visited := make(map[string]bool, len(g.order))
	var batches [][]string

	for len(visited) < len(g.order) {
		var batch []string
		for _, id := range g.order {
			if !visited[id] && inDegree[id] == 0 {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			var stuck []string
			for _, id := range g.order {
				if !visited[id] {
					stuck = append(stuck, id)
				}
			}
			sort.Strings(stuck)
			return nil, &CircularDependencyError{Steps: stuck}
		}
		for _, id := range batch {
			visited[id] = true
			for _, dep := range g.dependents[id] {
				inDegree[dep]--
			}
		}
		batches = append(batches, batch)
	}

	return batches, nil
}

// HasCycles reports whether the dependency relation contains a cycle.
func (g *Graph) HasCycles() bool {
	_, err := g.Batches()
	return err != nil
}

// Dependencies returns the direct dependencies of the given step.
func (g *Graph) Dependencies(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the steps directly depending on the given step.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.dependents[id]...)
}

// TransitiveDependencies returns every step the given step depends on,
// directly or through intermediate steps.
func (g *Graph) TransitiveDependencies(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		for _, dep := range g.deps[cur] {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for _, sid := range g.order {
		if seen[sid] {
			out = append(out, sid)
		}
	}
	return out
}

// CanExecute reports whether every dependency of the step is in the completed set.
func (g *Graph) CanExecute(id string, completed map[string]bool) bool {
	for _, dep := range g.deps[id] {
		if !completed[dep] {
			return false
		}
	}
	return true
}
