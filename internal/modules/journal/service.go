// README: Journal writer buffers events off the session loop and appends them in the background.
package journal

import (
	"context"
	"log/slog"
	"sync"
)

// Recorder accepts events without blocking the caller.
type Recorder interface {
	Record(e Event)
}

// Nop discards events; used when no database is configured.
type Nop struct{}

func (Nop) Record(Event) {}

type Appender interface {
	Append(ctx context.Context, e *Event) error
}

type Writer struct {
	store Appender
	log   *slog.Logger
	queue chan Event

	closeOnce sync.Once
	done      chan struct{}
}

func NewWriter(store Appender, buffer int, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Writer{store: store, log: logger, queue: make(chan Event, buffer), done: make(chan struct{})}
}

// Record enqueues e; when the buffer is full the event is dropped and logged.
func (w *Writer) Record(e Event) {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.queue <- e:
	default:
		w.log.Warn("journal buffer full; dropping event",
			slog.String("session_id", e.SessionID), slog.String("kind", string(e.Kind)), slog.String("to", e.To))
	}
}

// Run appends queued events until Close is called or ctx ends, then drains what is left
// using ctx for the final writes.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case e := <-w.queue:
			w.append(ctx, e)
		case <-w.done:
			w.drain(ctx)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Writer) Close() {
	w.closeOnce.Do(func() { close(w.done) })
}

func (w *Writer) drain(ctx context.Context) {
	for {
		select {
		case e := <-w.queue:
			w.append(ctx, e)
		default:
			return
		}
	}
}

func (w *Writer) append(ctx context.Context, e Event) {
	if err := w.store.Append(ctx, &e); err != nil {
		w.log.Warn("journal append failed",
			slog.String("session_id", e.SessionID), slog.String("kind", string(e.Kind)), slog.String("error", err.Error()))
	}
}
