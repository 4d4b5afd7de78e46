package service_test

import (
	"context"
	"testing"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/broadcast"
	"github.com/Aristman/ride-core/internal/port/bus"
	"github.com/Aristman/ride-core/internal/service"
)

type recordedEvent struct {
	eventType string
	payload   any
}

type fakeBroadcaster struct {
	events []recordedEvent
}

func (f *fakeBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	f.events = append(f.events, recordedEvent{eventType, payload})
}

type fakeObserver struct {
	planID  string
	title   string
	success bool
	detail  string
	calls   int
}

func (f *fakeObserver) OnStepDone(_ context.Context, planID, title string, success bool, detail string) {
	f.calls++
	f.planID = planID
	f.title = title
	f.success = success
	f.detail = detail
}

func trackedPlan() *plan.Plan {
	return &plan.Plan{
		ID:      "p1",
		Request: "scan it",
		State:   plan.StateInProgress,
		Version: 2,
		Steps: []plan.Step{
			{ID: "scan", Title: "Scan project", Capability: plan.CapabilityScanner, Status: plan.StepStatusCompleted},
			{ID: "report", Title: "Generate report", Capability: plan.CapabilityReportGenerator, Status: plan.StepStatusInProgress, DependsOn: []string{"scan"}},
		},
	}
}

func TestTracker_OnTransitionBroadcastsAndSnapshots(t *testing.T) {
	hub := &fakeBroadcaster{}
	tracker := service.NewProgressTracker(hub, nil, "core")

	p := trackedPlan()
	tr := plan.Transition{From: plan.StateAnalyzing, To: plan.StateInProgress, Event: plan.EventStart}
	tracker.OnTransition(context.Background(), p, tr)

	if len(hub.events) != 1 || hub.events[0].eventType != bus.EvtPlanStatus {
		t.Fatalf("expected one plan.status broadcast, got %+v", hub.events)
	}
	status, ok := hub.events[0].payload.(broadcast.PlanStatusEvent)
	if !ok {
		t.Fatalf("expected PlanStatusEvent payload, got %T", hub.events[0].payload)
	}
	if status.From != "analyzing" || status.To != "in_progress" || status.Version != 2 {
		t.Fatalf("unexpected status event: %+v", status)
	}
	prog, ok := tracker.Progress("p1")
	if !ok {
		t.Fatal("expected progress snapshot after transition")
	}
	if prog.TotalSteps != 2 || prog.CompletedSteps != 1 {
		t.Fatalf("unexpected progress: %+v", prog)
	}
}

func TestTracker_StepFinishedNotifiesObserver(t *testing.T) {
	hub := &fakeBroadcaster{}
	obs := &fakeObserver{}
	tracker := service.NewProgressTracker(hub, nil, "core")
	tracker.AddObserver(obs)

	p := trackedPlan()
	step := &p.Steps[0]
	step.Output = map[string]any{"summary": "scanned 12 files"}
	tracker.StepFinished(context.Background(), p, step)

	if obs.calls != 1 {
		t.Fatalf("expected one observer call, got %d", obs.calls)
	}
	if !obs.success || obs.title != "Scan project" || obs.detail != "scanned 12 files" {
		t.Fatalf("unexpected observer notification: %+v", obs)
	}
	// step.status plus plan.progress broadcasts.
	if len(hub.events) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(hub.events))
	}
	if hub.events[1].eventType != bus.EvtPlanProgress {
		t.Fatalf("expected plan.progress broadcast, got %s", hub.events[1].eventType)
	}
}

func TestTracker_FailedStepReportsError(t *testing.T) {
	obs := &fakeObserver{}
	tracker := service.NewProgressTracker(nil, nil, "core")
	tracker.AddObserver(obs)

	p := trackedPlan()
	step := &p.Steps[1]
	step.Status = plan.StepStatusFailed
	step.Error = "executor timed out"
	tracker.StepFinished(context.Background(), p, step)

	if obs.success {
		t.Fatal("failed step must not report success")
	}
	if obs.detail != "executor timed out" {
		t.Fatalf("expected error detail, got %q", obs.detail)
	}
}

func TestTracker_PublishesOnBus(t *testing.T) {
	mbus := newCaptureBus()
	tracker := service.NewProgressTracker(nil, mbus, "core")

	p := trackedPlan()
	tracker.StepFinished(context.Background(), p, &p.Steps[0])

	if len(mbus.events) != 1 {
		t.Fatalf("expected one bus event, got %d", len(mbus.events))
	}
	ev := mbus.events[0]
	if ev.Type != bus.EvtPlanProgress || ev.Sender != "core" {
		t.Fatalf("unexpected event envelope: %+v", ev)
	}
	payload, ok := ev.Payload.(*bus.ProgressPayload)
	if !ok {
		t.Fatalf("expected ProgressPayload, got %T", ev.Payload)
	}
	if payload.PlanID != "p1" || payload.TotalSteps != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestTracker_Forget(t *testing.T) {
	tracker := service.NewProgressTracker(nil, nil, "core")
	p := trackedPlan()
	tracker.OnTransition(context.Background(), p, plan.Transition{})
	tracker.Forget("p1")
	if _, ok := tracker.Progress("p1"); ok {
		t.Fatal("snapshot should be gone after Forget")
	}
}
