// Package ws pushes orchestration events to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Message is the wire envelope for every outbound frame.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// writeTimeout bounds a single frame write. sendBuffer is the per-client
// outbound queue; a client that falls a full buffer behind is dropped.
const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 32
)

type client struct {
	sock *websocket.Conn
	out  chan []byte
	done chan struct{}
}

// Hub fans orchestration events out to every connected client. Each client
// gets its own outbound queue and writer goroutine, so one stalled
// connection cannot hold up the rest.
type Hub struct {
	mu      sync.Mutex
	clients map[uint64]*client
	nextID  uint64
	closed  bool
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint64]*client)}
}

// HandleWS upgrades the request and serves the connection until the client
// goes away or the hub shuts down.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	c := &client{
		sock: sock,
		out:  make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = sock.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	h.nextID++
	id := h.nextID
	h.clients[id] = c
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr)
	defer func() {
		h.drop(id, websocket.StatusNormalClosure, "")
		slog.Info("websocket disconnected", "remote", r.RemoteAddr)
	}()

	go c.writeLoop()

	// Inbound frames are read only to notice pings and disconnects.
	for {
		if _, _, err := sock.Read(r.Context()); err != nil {
			return
		}
	}
}

// BroadcastEvent marshals a typed event and queues it for every client.
// It never blocks: clients whose queue is full are disconnected.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	if ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("websocket event marshal failed", "type", eventType, "error", err)
		return
	}
	frame, _ := json.Marshal(Message{Type: eventType, Payload: data})

	var stalled []uint64
	h.mu.Lock()
	for id, c := range h.clients {
		select {
		case c.out <- frame:
		default:
			stalled = append(stalled, id)
		}
	}
	h.mu.Unlock()

	for _, id := range stalled {
		slog.Warn("dropping stalled websocket client", "client", id)
		h.drop(id, websocket.StatusPolicyViolation, "client too slow")
	}
}

// Close disconnects every client. Used during shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := h.clients
	h.clients = make(map[uint64]*client)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.done)
		_ = c.sock.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// drop removes a client from the hub. Whoever removes the id from the map
// owns closing the done channel, so it closes exactly once.
func (h *Hub) drop(id uint64, code websocket.StatusCode, reason string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	close(c.done)
	_ = c.sock.Close(code, reason)
}

func (c *client) writeLoop() {
	for {
		select {
		case frame := <-c.out:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.sock.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
