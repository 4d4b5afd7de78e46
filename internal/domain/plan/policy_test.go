package plan_test

import (
	"testing"
	"time"

	"github.com/Aristman/ride-core/internal/domain/plan"
)

func TestRetryPolicy_DelayGrowsExponentially(t *testing.T) {
	p := plan.RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second}, // capped
		{9, 1 * time.Second},
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

func TestRetryPolicy_DelayDefaults(t *testing.T) {
	var p plan.RetryPolicy
	if got := p.Delay(1); got != 500*time.Millisecond {
		t.Fatalf("expected default initial delay 500ms, got %s", got)
	}
	if got := p.Delay(2); got != 1*time.Second {
		t.Fatalf("expected default multiplier 2.0, got %s", got)
	}
	if got := p.Delay(0); got != 500*time.Millisecond {
		t.Fatalf("attempt below 1 clamps to 1, got %s", got)
	}
}

func TestRetryPolicy_Retryable(t *testing.T) {
	open := plan.RetryPolicy{}
	if !open.Retryable("anything at all") {
		t.Fatal("empty match list means every error is retryable")
	}

	p := plan.RetryPolicy{RetryableMatch: []string{"timeout", "connection refused"}}
	if !p.Retryable("dial tcp: connection refused") {
		t.Fatal("matching substring should be retryable")
	}
	if p.Retryable("permission denied") {
		t.Fatal("non-matching error should not be retryable")
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := plan.DefaultRetryPolicy()
	if p.MaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.MaxAttempts)
	}
	if p.InitialDelay != 500*time.Millisecond || p.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected delays: %s / %s", p.InitialDelay, p.MaxDelay)
	}
}
