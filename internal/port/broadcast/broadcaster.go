// Package broadcast defines the port for pushing real-time orchestration
// events to any presentation layer.
package broadcast

import "context"

// Broadcaster sends typed events to all connected clients. Implementations
// must not block the caller on slow consumers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// StepObserver receives per-step completion notifications: the step's title,
// whether it succeeded, and a content summary or error string.
type StepObserver interface {
	OnStepDone(ctx context.Context, planID, title string, success bool, detail string)
}

// Nop is a Broadcaster that discards every event.
type Nop struct{}

// BroadcastEvent discards the event.
func (Nop) BroadcastEvent(context.Context, string, any) {}
