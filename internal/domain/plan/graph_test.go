package plan_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

func steps(ids ...string) []plan.Step {
	out := make([]plan.Step, len(ids))
	for i, id := range ids {
		out[i] = plan.Step{ID: id, Status: plan.StepStatusPending}
	}
	return out
}

func TestBatches_Linear(t *testing.T) {
	s := steps("a", "b", "c")
	s[1].DependsOn = []string{"a"}
	s[2].DependsOn = []string{"b"}

	g, err := plan.BuildGraph(s)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	batches, err := g.Batches()
	if err != nil {
		t.Fatalf("batches: %v", err)
	}

	want := [][]string{{"a"}, {"b"}, {"c"}}
	if !reflect.DeepEqual(batches, want) {
		t.Fatalf("expected %v, got %v", want, batches)
	}
}

func TestBatches_Diamond(t *testing.T) {
	s := steps("scan", "analyze", "detect", "report")
	s[1].DependsOn = []string{"scan"}
	s[2].DependsOn = []string{"scan"}
	s[3].DependsOn = []string{"analyze", "detect"}

	g, err := plan.BuildGraph(s)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	batches, err := g.Batches()
	if err != nil {
		t.Fatalf("batches: %v", err)
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d: %v", len(batches), batches)
	}
	if !reflect.DeepEqual(batches[0], []string{"scan"}) {
		t.Fatalf("expected first batch [scan], got %v", batches[0])
	}
	if !reflect.DeepEqual(batches[1], []string{"analyze", "detect"}) {
		t.Fatalf("expected second batch [analyze detect], got %v", batches[1])
	}
	if !reflect.DeepEqual(batches[2], []string{"report"}) {
		t.Fatalf("expected third batch [report], got %v", batches[2])
	}
}

func TestBatches_CycleDetected(t *testing.T) {
	s := steps("a", "b", "c")
	s[0].DependsOn = []string{"c"}
	s[1].DependsOn = []string{"a"}
	s[2].DependsOn = []string{"b"}

	g, err := plan.BuildGraph(s)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	_, err = g.Batches()
	if err == nil {
		t.Fatal("expected cycle error")
	}

	var cycleErr *plan.CircularDependencyError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CircularDependencyError, got %T: %v", err, err)
	}
	if len(cycleErr.Steps) != 3 {
		t.Fatalf("expected 3 stuck steps, got %v", cycleErr.Steps)
	}
	if !g.HasCycles() {
		t.Fatal("HasCycles should report true")
	}
}

func TestBuildGraph_UnknownDependency(t *testing.T) {
	s := steps("a")
	s[0].DependsOn = []string{"ghost"}

	if _, err := plan.BuildGraph(s); err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildGraph_DuplicateID(t *testing.T) {
	if _, err := plan.BuildGraph(steps("a", "a")); err == nil {
		t.Fatal("expected error for duplicate step ID")
	}
}

func TestBuildGraph_Empty(t *testing.T) {
	// An empty step list is a valid degenerate graph; plans without steps
	// are rejected by Validate before a graph is ever built.
	g, err := plan.BuildGraph(nil)
	if err != nil {
		t.Fatalf("empty step list rejected: %v", err)
	}
	batches, err := g.Batches()
	if err != nil {
		t.Fatalf("batches: %v", err)
	}
	if len(batches) != 0 {
		t.Fatalf("expected no batches, got %v", batches)
	}
}

func TestTransitiveDependencies(t *testing.T) {
	s := steps("a", "b", "c", "d")
	s[1].DependsOn = []string{"a"}
	s[2].DependsOn = []string{"b"}
	s[3].DependsOn = []string{"c", "a"}

	g, err := plan.BuildGraph(s)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	deps := g.TransitiveDependencies("d")
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(deps, want) {
		t.Fatalf("expected %v, got %v", want, deps)
	}
}

func TestCanExecute(t *testing.T) {
	s := steps("a", "b")
	s[1].DependsOn = []string{"a"}

	g, err := plan.BuildGraph(s)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	if g.CanExecute("b", map[string]bool{}) {
		t.Fatal("b should not be executable before a completes")
	}
	if !g.CanExecute("b", map[string]bool{"a": true}) {
		t.Fatal("b should be executable once a completes")
	}
	if !g.CanExecute("a", map[string]bool{}) {
		t.Fatal("a has no deps and should be executable")
	}
}

func TestDependents(t *testing.T) {
	s := steps("a", "b", "c")
	s[1].DependsOn = []string{"a"}
	s[2].DependsOn = []string{"a"}

	g, err := plan.BuildGraph(s)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}

	dependents := g.Dependents("a")
	if len(dependents) != 2 {
		t.Fatalf("expected 2 dependents of a, got %v", dependents)
	}
}
