// Package natsbus implements the message bus port over core NATS
// request/reply and publish/subscribe.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Aristman/ride-core/internal/domain"
	"github.com/Aristman/ride-core/internal/port/bus"
)

const (
	requestPrefix = "ride.req."
	eventPrefix   = "ride.evt."
)

// Bus carries typed messages over a NATS connection. Message types map to
// subjects: requests on ride.req.<type>, events on ride.evt.<type>.
type Bus struct {
	nc  *nats.Conn
	log *slog.Logger
}

var _ bus.Bus = (*Bus)(nil)

// Connect dials the NATS server and returns a bus bound to the connection.
func Connect(url string, log *slog.Logger) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{nc: nc, log: log}, nil
}

// Publish broadcasts an event. Fan-out happens on the broker, so the
// delivered count is always 0.
func (b *Bus) Publish(_ context.Context, ev *bus.Event) (int, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("encode event: %w", err)
	}
	if err := b.nc.Publish(eventPrefix+ev.Type, data); err != nil {
		return 0, fmt.Errorf("publish event: %w", err)
	}
	return 0, nil
}

func (b *Bus) Request(ctx context.Context, req *bus.Request, timeout time.Duration) (*bus.Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	msg, err := b.nc.RequestWithContext(reqCtx, requestPrefix+req.Type, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("%w: request %s (%s) after %s", domain.ErrTimeout, req.ID, req.Type, timeout)
		}
		return nil, fmt.Errorf("nats request: %w", err)
	}

	var resp bus.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	resp.CorrelationID = req.ID
	return &resp, nil
}

func (b *Bus) Serve(msgType string, h bus.RequestHandler) (func(), error) {
	sub, err := b.nc.Subscribe(requestPrefix+msgType, func(msg *nats.Msg) {
		var req bus.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.log.Error("malformed request message", "subject", msg.Subject, "error", err)
			return
		}

		resp, err := h(context.Background(), &req)
		if err != nil {
			resp = &bus.Response{
				Success: false,
				Error:   &bus.ErrorPayload{Code: "handler_error", Message: err.Error()},
			}
		}
		resp.CorrelationID = req.ID

		data, err := json.Marshal(resp)
		if err != nil {
			b.log.Error("encode response", "subject", msg.Subject, "error", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			b.log.Error("respond", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", requestPrefix+msgType, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *Bus) Subscribe(eventType string, h bus.EventHandler) (func(), error) {
	return b.subscribeSubject(eventPrefix+eventType, h)
}

func (b *Bus) SubscribeAll(h bus.EventHandler) (func(), error) {
	return b.subscribeSubject(eventPrefix+">", h)
}

func (b *Bus) subscribeSubject(subject string, h bus.EventHandler) (func(), error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev bus.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			b.log.Error("malformed event message", "subject", msg.Subject, "error", err)
			return
		}
		h(context.Background(), &ev)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

func (b *Bus) Close() error {
	_ = b.nc.Drain()
	b.nc.Close()
	return nil
}
