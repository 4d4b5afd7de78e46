package resilience_test

import (
	"errors"
	"testing"
	"time"

	"github.com/Aristman/ride-core/internal/resilience"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := resilience.NewBreaker(3, time.Hour)
	boom := errors.New("boom")
	fail := func() error { return boom }

	for i := 0; i < 3; i++ {
		if err := b.Execute(fail); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected boom, got %v", i, err)
		}
	}
	if b.State() != resilience.BreakerOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	calls := 0
	err := b.Execute(func() error { calls++; return nil })
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if calls != 0 {
		t.Fatal("open circuit must not invoke the function")
	}
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := resilience.NewBreaker(2, time.Hour)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return boom })

	if b.State() != resilience.BreakerClosed {
		t.Fatalf("non-consecutive failures should not trip, got %s", b.State())
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := resilience.NewBreaker(1, 10*time.Millisecond)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	if b.State() != resilience.BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(20 * time.Millisecond)
	if b.State() != resilience.BreakerHalfOpen {
		t.Fatalf("expected half-open after cooldown, got %s", b.State())
	}

	// A successful probe closes the circuit.
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != resilience.BreakerClosed {
		t.Fatalf("expected closed after probe, got %s", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := resilience.NewBreaker(1, 50*time.Millisecond)
	boom := errors.New("boom")

	_ = b.Execute(func() error { return boom })
	time.Sleep(80 * time.Millisecond)

	if err := b.Execute(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("probe should run and fail, got %v", err)
	}
	if b.State() != resilience.BreakerOpen {
		t.Fatalf("failed probe should reopen, got %s", b.State())
	}

	if err := b.Execute(func() error { return nil }); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("circuit should reject immediately after failed probe, got %v", err)
	}
}
