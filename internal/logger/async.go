package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Closer flushes buffered log records on shutdown.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// entry pairs a record with the derived handler that must format it, so
// handlers returned by WithAttrs and WithGroup share one drain goroutine.
type entry struct {
	h   slog.Handler
	rec slog.Record
}

type asyncCore struct {
	ch      chan entry
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler decouples log emission from formatting and writing. Handle
// never blocks: when the buffer is full the record is dropped and counted.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler wraps inner with a buffer of the given capacity and starts
// the drain goroutine.
func NewAsyncHandler(inner slog.Handler, capacity int) *AsyncHandler {
	core := &asyncCore{ch: make(chan entry, capacity)}
	core.wg.Add(1)
	go func() {
		defer core.wg.Done()
		for e := range core.ch {
			_ = e.h.Handle(context.Background(), e.rec)
		}
	}()
	return &AsyncHandler{inner: inner, core: core}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error {
	select {
	case h.core.ch <- entry{h: h.inner, rec: rec}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount reports how many records were discarded on a full buffer.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close drains the buffer and stops the goroutine. Records dropped over the
// handler's lifetime are reported to stderr.
func (h *AsyncHandler) Close() {
	close(h.core.ch)
	h.core.wg.Wait()
	if n := h.core.dropped.Load(); n > 0 {
		fmt.Fprintf(os.Stderr, "logger: %d records dropped\n", n)
	}
}
