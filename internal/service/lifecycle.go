package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/port/storage"
)

// TransitionListener is notified after every accepted lifecycle transition.
// Listeners are the only way other components (storage decorators, progress
// tracker, UI) learn of state changes, and must return quickly.
type TransitionListener func(ctx context.Context, p *plan.Plan, tr plan.Transition)

// LifecycleService applies state machine transitions to persisted plans.
// Transitions are copy-on-write: the stored plan is cloned, the new state and
// a history entry are applied to the clone, and the clone is persisted with a
// bumped version. A rejected transition has no side effect.
type LifecycleService struct {
	store     storage.Store
	mu        sync.Mutex // global single-writer; plan volumes are small
	listeners []TransitionListener
}

// NewLifecycleService creates a LifecycleService backed by the given store.
func NewLifecycleService(store storage.Store) *LifecycleService {
	return &LifecycleService{store: store}
}

// AddListener registers a transition listener.
func (s *LifecycleService) AddListener(fn TransitionListener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Transition applies the event to the plan, returning the new plan version.
// An event absent from the transition table returns InvalidTransitionError
// and leaves the plan untouched.
func (s *LifecycleService) Transition(ctx context.Context, planID string, ev plan.Event) (*plan.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Load(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", planID, err)
	}

	next, err := plan.Next(p.State, ev)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tr := plan.Transition{From: p.State, To: next, Event: ev.Kind, At: now}
	switch ev.Kind {
	case plan.EventError, plan.EventStepFailed:
		tr.Note = ev.Message
	case plan.EventUserInput:
		tr.Note = ev.Input
	}

	cp := p.Clone()
	cp.State = next
	cp.History = append(cp.History, tr)
	cp.UpdatedAt = now

	if next == plan.StateInProgress && cp.StartedAt == nil {
		cp.StartedAt = &now
	}
	if next.IsFinished() {
		cp.CompletedAt = &now
	}
	if ev.Kind == plan.EventStart && ev.Analysis != nil {
		cp.Analysis = ev.Analysis
	}
	if ev.Kind == plan.EventUserInput && ev.Input != "" {
		if cp.Metadata == nil {
			cp.Metadata = make(map[string]string)
		}
		cp.Metadata["user_input"] = ev.Input
	}

	if err := s.store.Update(ctx, cp); err != nil {
		return nil, fmt.Errorf("persist transition %s->%s: %w", tr.From, tr.To, err)
	}

	slog.Debug("plan transition",
		"plan_id", cp.ID,
		"from", tr.From,
		"to", tr.To,
		"event", tr.Event,
		"version", cp.Version,
	)

	for _, l := range s.listeners {
		l(ctx, cp, tr)
	}
	return cp, nil
}
