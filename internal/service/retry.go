package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

// ErrNoExecutor indicates no executor is registered for a step's capability.
// The scheduler skips such steps with a warning instead of failing the plan.
var ErrNoExecutor = errors.New("no executor registered for capability")

// InvokeFunc performs one invocation of a step, returning its output.
type InvokeFunc func(ctx context.Context) (map[string]any, error)

// policyBackOff adapts a RetryPolicy's attempt->delay function to the backoff
// engine. The sleep before retry N uses Delay(N).
type policyBackOff struct {
	policy  plan.RetryPolicy
	attempt int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.policy.Delay(b.attempt)
}

func (b *policyBackOff) Reset() { b.attempt = 0 }

// ExecuteWithRetry drives one step invocation through its retry policy.
// A step without a policy gets exactly one attempt. Every attempt is recorded
// on the step; exhaustion returns a StepExecutionError summarizing them.
// Backoff sleeps suspend only this step's goroutine and honor ctx cancellation.
func ExecuteWithRetry(ctx context.Context, step *plan.Step, invoke InvokeFunc) (map[string]any, error) {
	policy := plan.RetryPolicy{MaxAttempts: 1}
	if step.Retry != nil {
		policy = *step.Retry
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	op := func() (map[string]any, error) {
		start := time.Now()
		out, err := invoke(ctx)

		attempt := plan.Attempt{
			Number:    len(step.Attempts) + 1,
			StartedAt: start,
			Duration:  time.Since(start),
		}
		if err != nil {
			attempt.Error = err.Error()
		}
		step.Attempts = append(step.Attempts, attempt)

		if err == nil {
			return out, nil
		}
		if errors.Is(err, ErrNoExecutor) || !policy.Retryable(err.Error()) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&policyBackOff{policy: policy}),
		backoff.WithMaxTries(uint(policy.MaxAttempts)),
	)
	if err != nil {
		if errors.Is(err, ErrNoExecutor) {
			return nil, err
		}
		return nil, &plan.StepExecutionError{
			StepID:   step.ID,
			Attempts: len(step.Attempts),
			Cause:    err,
		}
	}
	return out, nil
}
