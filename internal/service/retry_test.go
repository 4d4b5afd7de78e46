package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Aristman/ride-core/internal/domain/plan"
	"github.com/Aristman/ride-core/internal/service"
)

func retryStep(maxAttempts int) *plan.Step {
	return &plan.Step{
		ID:         "s1",
		Capability: plan.CapabilityScanner,
		Retry: &plan.RetryPolicy{
			MaxAttempts:  maxAttempts,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
	}
}

func TestExecuteWithRetry_SucceedsAfterFailures(t *testing.T) {
	step := retryStep(3)
	calls := 0
	out, err := service.ExecuteWithRetry(context.Background(), step, func(context.Context) (map[string]any, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("transient")
		}
		return map[string]any{"ok": true}, nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt: %v", err)
	}
	if out["ok"] != true {
		t.Fatalf("unexpected output %v", out)
	}
	if calls != 3 {
		t.Fatalf("expected 3 invocations, got %d", calls)
	}
	if len(step.Attempts) != 3 {
		t.Fatalf("expected 3 recorded attempts, got %d", len(step.Attempts))
	}
	if step.Attempts[0].Error == "" || step.Attempts[2].Error != "" {
		t.Fatalf("attempt history wrong: %+v", step.Attempts)
	}
	if step.Attempts[2].Number != 3 {
		t.Fatalf("attempts are numbered from 1, got %d", step.Attempts[2].Number)
	}
}

func TestExecuteWithRetry_Exhausted(t *testing.T) {
	step := retryStep(2)
	_, err := service.ExecuteWithRetry(context.Background(), step, func(context.Context) (map[string]any, error) {
		return nil, errors.New("still broken")
	})

	var stepErr *plan.StepExecutionError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepExecutionError, got %v", err)
	}
	if stepErr.Attempts != 2 {
		t.Fatalf("expected 2 attempts in error, got %d", stepErr.Attempts)
	}
	if len(step.Attempts) != 2 {
		t.Fatalf("expected 2 recorded attempts, got %d", len(step.Attempts))
	}
}

func TestExecuteWithRetry_NoPolicySingleAttempt(t *testing.T) {
	step := &plan.Step{ID: "s1", Capability: plan.CapabilityScanner}
	calls := 0
	_, err := service.ExecuteWithRetry(context.Background(), step, func(context.Context) (map[string]any, error) {
		calls++
		return nil, errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("no policy means one attempt, got %d", calls)
	}
}

func TestExecuteWithRetry_NonRetryableStopsEarly(t *testing.T) {
	step := retryStep(5)
	step.Retry.RetryableMatch = []string{"timeout"}

	calls := 0
	_, err := service.ExecuteWithRetry(context.Background(), step, func(context.Context) (map[string]any, error) {
		calls++
		return nil, errors.New("permission denied")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("non-retryable error must not be retried, got %d calls", calls)
	}
}

func TestExecuteWithRetry_NoExecutorPassesThrough(t *testing.T) {
	step := retryStep(3)
	calls := 0
	_, err := service.ExecuteWithRetry(context.Background(), step, func(context.Context) (map[string]any, error) {
		calls++
		return nil, service.ErrNoExecutor
	})
	if !errors.Is(err, service.ErrNoExecutor) {
		t.Fatalf("expected ErrNoExecutor, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("missing executor must not be retried, got %d calls", calls)
	}
}

func TestExecuteWithRetry_ContextCancelled(t *testing.T) {
	step := retryStep(10)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := service.ExecuteWithRetry(ctx, step, func(context.Context) (map[string]any, error) {
		calls++
		cancel()
		return nil, errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls > 2 {
		t.Fatalf("cancelled context must stop retrying, got %d calls", calls)
	}
}
