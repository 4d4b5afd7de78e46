// Package inproc implements the message bus port with in-process channel
// fan-out. It is the default bus driver and the one the test suites use.
package inproc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Aristman/ride-core/internal/domain"
	"github.com/Aristman/ride-core/internal/port/bus"
)

const subscriberBuffer = 64

// Bus routes requests to registered handlers and fans events out to
// subscribers over buffered channels. Publishing never blocks: a subscriber
// whose buffer is full has the event dropped.
type Bus struct {
	mu       sync.RWMutex
	closed   bool
	handlers map[string]bus.RequestHandler
	subs     map[int]*subscription
	nextSub  int

	wg sync.WaitGroup
}

type subscription struct {
	eventType string // empty matches every event type
	handler   bus.EventHandler
	ch        chan *bus.Event
	done      chan struct{}
}

var _ bus.Bus = (*Bus)(nil)

func New() *Bus {
	return &Bus{
		handlers: make(map[string]bus.RequestHandler),
		subs:     make(map[int]*subscription),
	}
}

func (b *Bus) Publish(_ context.Context, ev *bus.Event) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("bus closed")
	}

	delivered := 0
	for _, sub := range b.subs {
		if sub.eventType != "" && sub.eventType != ev.Type {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			slog.Warn("event dropped for slow subscriber", "event_type", ev.Type)
		}
	}
	return delivered, nil
}

func (b *Bus) Request(ctx context.Context, req *bus.Request, timeout time.Duration) (*bus.Response, error) {
	b.mu.RLock()
	h, ok := b.handlers[req.Type]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("bus closed")
	}
	if !ok {
		return nil, fmt.Errorf("%w: no responder for message type %q", domain.ErrNotFound, req.Type)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		resp *bus.Response
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		resp, err := h(reqCtx, req)
		ch <- outcome{resp: resp, err: err}
	}()

	select {
	case <-reqCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: request %s (%s) after %s", domain.ErrTimeout, req.ID, req.Type, timeout)
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		if out.resp != nil {
			out.resp.CorrelationID = req.ID
		}
		return out.resp, nil
	}
}

func (b *Bus) Serve(msgType string, h bus.RequestHandler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("bus closed")
	}
	if _, exists := b.handlers[msgType]; exists {
		return nil, fmt.Errorf("%w: responder for %q already registered", domain.ErrConflict, msgType)
	}
	b.handlers[msgType] = h

	return func() {
		b.mu.Lock()
		delete(b.handlers, msgType)
		b.mu.Unlock()
	}, nil
}

func (b *Bus) Subscribe(eventType string, h bus.EventHandler) (func(), error) {
	return b.subscribe(eventType, h)
}

func (b *Bus) SubscribeAll(h bus.EventHandler) (func(), error) {
	return b.subscribe("", h)
}

func (b *Bus) subscribe(eventType string, h bus.EventHandler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("bus closed")
	}
	id := b.nextSub
	b.nextSub++
	sub := &subscription{
		eventType: eventType,
		handler:   h,
		ch:        make(chan *bus.Event, subscriberBuffer),
		done:      make(chan struct{}),
	}
	b.subs[id] = sub
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-sub.done:
				return
			case ev := <-sub.ch:
				sub.handler(context.Background(), ev)
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.done)
		})
	}
	return cancel, nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int]*subscription)
	b.handlers = make(map[string]bus.RequestHandler)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
	}
	b.wg.Wait()
	return nil
}
