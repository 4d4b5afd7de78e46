package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Aristman/ride-core/internal/adapter/memstore"
	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/service"
)

func seedPlan(t *testing.T, store *memstore.Store) *plan.Plan {
	t.Helper()
	p := validPlan()
	if err := store.Save(context.Background(), p); err != nil {
		t.Fatalf("seed plan: %v", err)
	}
	return p
}

func validPlan() *plan.Plan {
	return &plan.Plan{
		ID:      "p1",
		Request: "analyze the project",
		State:   plan.StateCreated,
		Version: 1,
		Steps: []plan.Step{
			{ID: "scan", Capability: plan.CapabilityScanner, Status: plan.StepStatusPending},
			{ID: "report", Capability: plan.CapabilityReportGenerator, Status: plan.StepStatusPending, DependsOn: []string{"scan"}},
		},
	}
}

func TestLifecycle_Transition(t *testing.T) {
	store := memstore.New()
	seedPlan(t, store)
	svc := service.NewLifecycleService(store)

	p, err := svc.Transition(context.Background(), "p1", plan.Event{Kind: plan.EventStart})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if p.State != plan.StateAnalyzing {
		t.Fatalf("expected analyzing, got %s", p.State)
	}
	if p.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", p.Version)
	}
	if len(p.History) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(p.History))
	}
	tr := p.History[0]
	if tr.From != plan.StateCreated || tr.To != plan.StateAnalyzing || tr.Event != plan.EventStart {
		t.Fatalf("unexpected transition record: %+v", tr)
	}

	stored, err := store.Load(context.Background(), "p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.State != plan.StateAnalyzing || stored.Version != 2 {
		t.Fatalf("stored plan not updated: %s v%d", stored.State, stored.Version)
	}
}

func TestLifecycle_InvalidTransitionHasNoSideEffect(t *testing.T) {
	store := memstore.New()
	seedPlan(t, store)
	svc := service.NewLifecycleService(store)

	_, err := svc.Transition(context.Background(), "p1", plan.Event{Kind: plan.EventComplete})
	var invalid *plan.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	stored, _ := store.Load(context.Background(), "p1")
	if stored.State != plan.StateCreated || stored.Version != 1 || len(stored.History) != 0 {
		t.Fatalf("rejected event must not mutate the plan: %s v%d", stored.State, stored.Version)
	}
}

func TestLifecycle_AnalysisAppliedOnStart(t *testing.T) {
	store := memstore.New()
	p := seedPlan(t, store)
	svc := service.NewLifecycleService(store)

	if _, err := svc.Transition(context.Background(), p.ID, plan.Event{Kind: plan.EventStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	analysis := &plan.Analysis{TaskType: plan.TaskAnalysis, Confidence: 0.8}
	got, err := svc.Transition(context.Background(), p.ID, plan.Event{Kind: plan.EventStart, Analysis: analysis})
	if err != nil {
		t.Fatalf("start with analysis: %v", err)
	}
	if got.State != plan.StateInProgress {
		t.Fatalf("expected in_progress, got %s", got.State)
	}
	if got.Analysis == nil || got.Analysis.TaskType != plan.TaskAnalysis {
		t.Fatal("analysis not applied")
	}
	if got.StartedAt == nil {
		t.Fatal("StartedAt must be set when execution begins")
	}
}

func TestLifecycle_CompletedAtOnFinish(t *testing.T) {
	store := memstore.New()
	p := seedPlan(t, store)
	svc := service.NewLifecycleService(store)

	ctx := context.Background()
	mustTransition(t, svc, ctx, p.ID, plan.Event{Kind: plan.EventStart})
	mustTransition(t, svc, ctx, p.ID, plan.Event{Kind: plan.EventStart})
	got := mustTransition(t, svc, ctx, p.ID, plan.Event{Kind: plan.EventComplete})

	if got.State != plan.StateCompleted {
		t.Fatalf("expected completed, got %s", got.State)
	}
	if got.CompletedAt == nil {
		t.Fatal("CompletedAt must be set on a finished plan")
	}
	if len(got.History) != 3 {
		t.Fatalf("expected full history, got %d entries", len(got.History))
	}
}

func TestLifecycle_ListenerNotified(t *testing.T) {
	store := memstore.New()
	p := seedPlan(t, store)
	svc := service.NewLifecycleService(store)

	var notified []plan.Transition
	svc.AddListener(func(_ context.Context, _ *plan.Plan, tr plan.Transition) {
		notified = append(notified, tr)
	})

	mustTransition(t, svc, context.Background(), p.ID, plan.Event{Kind: plan.EventStart})
	if len(notified) != 1 || notified[0].To != plan.StateAnalyzing {
		t.Fatalf("listener not notified correctly: %+v", notified)
	}
}

func mustTransition(t *testing.T, svc *service.LifecycleService, ctx context.Context, id string, ev plan.Event) *plan.Plan {
	t.Helper()
	p, err := svc.Transition(ctx, id, ev)
	if err != nil {
		t.Fatalf("transition %s: %v", ev.Kind, err)
	}
	return p
}
