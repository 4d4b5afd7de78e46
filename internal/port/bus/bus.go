// Package bus defines the agent-to-agent (A2A) message bus port. The bus
// decouples the execution core from step executors: executors serve typed
// requests, and both sides broadcast typed events.
package bus

import (
	"context"
	"time"
)

// RequestHandler answers a typed request. The returned response's correlation
// ID is filled in by the transport.
type RequestHandler func(ctx context.Context, req *Request) (*Response, error)

// EventHandler consumes a broadcast event. Handlers must be fast; transports
// drop or buffer for slow consumers rather than blocking publishers.
type EventHandler func(ctx context.Context, ev *Event)

// Bus is the port interface for A2A messaging.
type Bus interface {
	// Publish broadcasts an event to all current subscribers and returns the
	// number of subscribers it was handed to. Transports that cannot observe
	// fan-out (e.g. a remote broker) return 0.
	Publish(ctx context.Context, ev *Event) (int, error)

	// Request sends a request to the responder serving its message type and
	// waits up to timeout for the correlated response. Expiry returns an error
	// wrapping domain.ErrTimeout.
	Request(ctx context.Context, req *Request, timeout time.Duration) (*Response, error)

	// Serve registers the responder for a request message type.
	// The returned function cancels the registration.
	Serve(msgType string, h RequestHandler) (cancel func(), err error)

	// Subscribe registers an event handler for one event type.
	Subscribe(eventType string, h EventHandler) (cancel func(), err error)

	// SubscribeAll registers an event handler for every event type.
	SubscribeAll(h EventHandler) (cancel func(), err error)

	// Close shuts the bus down; all subscriptions are cancelled.
	Close() error
}
