package plan_test

import (
	"errors"
	"testing"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

func TestNext_Table(t *testing.T) {
	cases := []struct {
		from plan.State
		ev   plan.Event
		want plan.State
	}{
		{plan.StateCreated, plan.Event{Kind: plan.EventStart}, plan.StateAnalyzing},
		{plan.StateAnalyzing, plan.Event{Kind: plan.EventStart}, plan.StateInProgress},
		{plan.StateAnalyzing, plan.Event{Kind: plan.EventStart, Analysis: &plan.Analysis{RequiresInput: true}}, plan.StateRequiresInput},
		{plan.StateAnalyzing, plan.Event{Kind: plan.EventError}, plan.StateFailed},
		{plan.StateAnalyzing, plan.Event{Kind: plan.EventCancel}, plan.StateCancelled},
		{plan.StateInProgress, plan.Event{Kind: plan.EventPause}, plan.StatePaused},
		{plan.StateInProgress, plan.Event{Kind: plan.EventUserInput}, plan.StateRequiresInput},
		{plan.StateInProgress, plan.Event{Kind: plan.EventComplete}, plan.StateCompleted},
		{plan.StateInProgress, plan.Event{Kind: plan.EventError}, plan.StateFailed},
		{plan.StateInProgress, plan.Event{Kind: plan.EventStepFailed}, plan.StateFailed},
		{plan.StateInProgress, plan.Event{Kind: plan.EventCancel}, plan.StateCancelled},
		{plan.StatePaused, plan.Event{Kind: plan.EventResume}, plan.StateResumed},
		{plan.StatePaused, plan.Event{Kind: plan.EventCancel}, plan.StateCancelled},
		{plan.StateResumed, plan.Event{Kind: plan.EventResume}, plan.StateInProgress},
		{plan.StateRequiresInput, plan.Event{Kind: plan.EventUserInput}, plan.StateInProgress},
		{plan.StateRequiresInput, plan.Event{Kind: plan.EventCancel}, plan.StateCancelled},
		{plan.StateFailed, plan.Event{Kind: plan.EventStart}, plan.StateAnalyzing},
		{plan.StateFailed, plan.Event{Kind: plan.EventCancel}, plan.StateCancelled},
	}

	for _, tc := range cases {
		got, err := plan.Next(tc.from, tc.ev)
		if err != nil {
			t.Fatalf("%s + %s: unexpected error %v", tc.from, tc.ev.Kind, err)
		}
		if got != tc.want {
			t.Fatalf("%s + %s: expected %s, got %s", tc.from, tc.ev.Kind, tc.want, got)
		}
	}
}

func TestNext_InvalidTransitions(t *testing.T) {
	cases := []struct {
		from plan.State
		kind plan.EventKind
	}{
		{plan.StateCreated, plan.EventComplete},
		{plan.StateCreated, plan.EventPause},
		{plan.StateCompleted, plan.EventStart},
		{plan.StateCompleted, plan.EventCancel},
		{plan.StateCancelled, plan.EventStart},
		{plan.StateCancelled, plan.EventResume},
		{plan.StatePaused, plan.EventPause},
		{plan.StateResumed, plan.EventPause},
		{plan.StateFailed, plan.EventResume},
	}

	for _, tc := range cases {
		got, err := plan.Next(tc.from, plan.Event{Kind: tc.kind})
		if err == nil {
			t.Fatalf("%s + %s: expected error", tc.from, tc.kind)
		}
		var invalid *plan.InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("%s + %s: expected InvalidTransitionError, got %T", tc.from, tc.kind, err)
		}
		if got != tc.from {
			t.Fatalf("%s + %s: state must not change on invalid transition, got %s", tc.from, tc.kind, got)
		}
	}
}

func TestStateTerminality(t *testing.T) {
	if !plan.StateCompleted.IsTerminal() || !plan.StateCancelled.IsTerminal() {
		t.Fatal("completed and cancelled are terminal")
	}
	if plan.StateFailed.IsTerminal() {
		t.Fatal("failed is not terminal, it can be restarted")
	}
	if !plan.StateFailed.IsFinished() {
		t.Fatal("failed counts as finished")
	}
	if plan.StateInProgress.IsFinished() {
		t.Fatal("in_progress is not finished")
	}
}
