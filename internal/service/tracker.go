package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/broadcast"
	"github.com/Aristman/ride-core/internal/port/bus"
)

// ProgressTracker keeps per-plan progress snapshots and fans out status
// changes to websocket clients, the message bus, and registered observers.
type ProgressTracker struct {
	mu       sync.RWMutex
	progress map[string]plan.Progress

	hub       broadcast.Broadcaster
	bus       bus.Bus
	observers []broadcast.StepObserver
	sender    string
}

// NewProgressTracker creates a tracker. hub and mbus may be nil when the
// corresponding surface is not wired.
func NewProgressTracker(hub broadcast.Broadcaster, mbus bus.Bus, sender string) *ProgressTracker {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &ProgressTracker{
		progress: make(map[string]plan.Progress),
		hub:      hub,
		bus:      mbus,
		sender:   sender,
	}
}

// AddObserver registers a step observer. Not safe to call concurrently with
// step notifications; register observers during wiring.
func (t *ProgressTracker) AddObserver(obs broadcast.StepObserver) {
	t.observers = append(t.observers, obs)
}

// OnTransition is a lifecycle listener: it recomputes progress and broadcasts
// the plan state change.
func (t *ProgressTracker) OnTransition(ctx context.Context, p *plan.Plan, tr plan.Transition) {
	t.update(p)

	t.hub.BroadcastEvent(ctx, bus.EvtPlanStatus, broadcast.PlanStatusEvent{
		PlanID:  p.ID,
		From:    string(tr.From),
		To:      string(tr.To),
		Event:   string(tr.Event),
		Version: p.Version,
	})

	t.publish(ctx, bus.EvtPlanStatus, &bus.StatusPayload{
		PlanID: p.ID,
		State:  string(p.State),
		Detail: tr.Note,
	})
}

// StepStarted records that a step began executing.
func (t *ProgressTracker) StepStarted(ctx context.Context, p *plan.Plan, step *plan.Step) {
	t.update(p)

	t.hub.BroadcastEvent(ctx, bus.EvtStepStatus, broadcast.StepStatusEvent{
		PlanID: p.ID,
		StepID: step.ID,
		Title:  step.Title,
		Status: string(step.Status),
	})
}

// StepFinished records a step outcome and broadcasts updated progress.
func (t *ProgressTracker) StepFinished(ctx context.Context, p *plan.Plan, step *plan.Step) {
	prog := t.update(p)

	t.hub.BroadcastEvent(ctx, bus.EvtStepStatus, broadcast.StepStatusEvent{
		PlanID: p.ID,
		StepID: step.ID,
		Title:  step.Title,
		Status: string(step.Status),
		Error:  step.Error,
	})
	t.hub.BroadcastEvent(ctx, bus.EvtPlanProgress, broadcast.PlanProgressEvent{
		PlanID:         p.ID,
		CompletedSteps: prog.CompletedSteps,
		TotalSteps:     prog.TotalSteps,
		Fraction:       prog.Fraction(),
	})

	t.publish(ctx, bus.EvtPlanProgress, &bus.ProgressPayload{
		PlanID:         p.ID,
		StepID:         step.ID,
		CompletedSteps: prog.CompletedSteps,
		TotalSteps:     prog.TotalSteps,
		Fraction:       prog.Fraction(),
	})

	success := step.Status == plan.StepStatusCompleted
	detail := step.Error
	if detail == "" {
		if s, ok := step.Output["summary"].(string); ok {
			detail = s
		}
	}
	for _, obs := range t.observers {
		obs.OnStepDone(ctx, p.ID, step.Title, success, detail)
	}
}

// Progress returns the last computed snapshot for a plan.
func (t *ProgressTracker) Progress(planID string) (plan.Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	prog, ok := t.progress[planID]
	return prog, ok
}

// Forget drops tracking state for a plan, typically after deletion.
func (t *ProgressTracker) Forget(planID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.progress, planID)
}

func (t *ProgressTracker) update(p *plan.Plan) plan.Progress {
	prog := plan.ComputeProgress(p)
	t.mu.Lock()
	t.progress[p.ID] = prog
	t.mu.Unlock()
	return prog
}

func (t *ProgressTracker) publish(ctx context.Context, eventType string, payload bus.Payload) {
	if t.bus == nil {
		return
	}
	ev := &bus.Event{
		ID:      uuid.NewString(),
		Sender:  t.sender,
		Type:    eventType,
		Payload: payload,
		At:      time.Now().UTC(),
	}
	_, _ = t.bus.Publish(ctx, ev)
}
