package plan

import (
	"strings"
	"time"
)

// RetryPolicy controls how a failing step invocation is retried.
// An empty RetryableMatch list treats every error as retryable.
type RetryPolicy struct {
	MaxAttempts    int           `json:"max_attempts"`
	InitialDelay   time.Duration `json:"initial_delay"`
	MaxDelay       time.Duration `json:"max_delay"`
	Multiplier     float64       `json:"multiplier"`
	RetryableMatch []string      `json:"retryable_match,omitempty"`
}

// DefaultRetryPolicy returns the standard exponential backoff policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the backoff delay before the given retry. Attempt numbering
// starts at 1; the delay grows exponentially and is capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.InitialDelay
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	mult := p.Multiplier
	if mult <= 1 {
		mult = 2.0
	}
	for i := 1; i < attempt; i++ {
		d = time.Duration(float64(d) * mult)
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retryable reports whether an error message qualifies for another attempt.
func (p RetryPolicy) Retryable(msg string) bool {
	if len(p.RetryableMatch) == 0 {
		return true
	}
	for _, m := range p.RetryableMatch {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// LoopKind selects the loop semantics for a step.
type LoopKind string

const (
	LoopWhile        LoopKind = "while"
	LoopForEach      LoopKind = "for_each"
	LoopRepeat       LoopKind = "repeat"
	LoopUntilSuccess LoopKind = "until_success"
)

// Predicate evaluates a loop condition against the iteration context and the
// last iteration result (nil before the first iteration).
type Predicate func(iterCtx map[string]any, last any) bool

// LoopConfig supervises repeated invocation of a single step.
// Predicates are execution-time behavior and are not serialized.
type LoopConfig struct {
	Kind          LoopKind  `json:"kind"`
	MaxIterations int       `json:"max_iterations"`
	Collection    []any     `json:"collection,omitempty"`
	ContinueIf    Predicate `json:"-"`
	BreakIf       Predicate `json:"-"`
	IteratorVar   string    `json:"iterator_var,omitempty"`
}
