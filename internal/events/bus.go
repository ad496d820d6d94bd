package events

import (
	"sync"
	"time"
)

// Handler receives events emitted on the bus. Handlers must not block for
// long; the bus calls handlers synchronously from the emitting goroutine
// in subscription order.
type Handler func(Event)

// Bus provides in-process pub/sub distribution of scheduler events to
// any number of subscribers (loggers, the run-state store, the TUI
// bridge, the web pusher).
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool

	// Capacity is stored as given and read by nothing in this package; it
	// has no effect on Emit/Subscribe, which are synchronous, nor on a
	// Recorder, which takes its own limit in NewRecorder.
	Capacity int
}

// NewBus creates a new event bus, storing capacity in Bus.Capacity. It
// does not bound Subscribe or size any buffer.
func NewBus(capacity int) *Bus {
	return &Bus{Capacity: capacity}
}

// Subscribe registers a handler that is invoked for every subsequently
// emitted event. Returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := len(b.handlers)
	b.handlers = append(b.handlers, h)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.handlers) {
			b.handlers[idx] = nil
		}
	}
}

// Emit stamps the event's Time (if unset) and delivers it to every
// subscriber, in subscription order, on the calling goroutine.
func (b *Bus) Emit(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		if h != nil {
			h(e)
		}
	}
}

// Close marks the bus closed. Emit/Subscribe remain safe to call after
// Close; Close exists so callers that previously depended on closing a
// channel (the original bus shape) have an explicit shutdown point to
// call from deferred cleanup.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Recorder buffers the last N events emitted on a bus, for tests and for
// the `foreman status` inspection path that wants a quick in-memory
// snapshot without going through the store.
type Recorder struct {
	mu     sync.Mutex
	buf    []Event
	limit  int
}

// NewRecorder subscribes a Recorder to bus that keeps at most limit
// events (oldest dropped first).
func NewRecorder(bus *Bus, limit int) *Recorder {
	r := &Recorder{limit: limit}
	bus.Subscribe(r.record)
	return r
}

func (r *Recorder) record(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, e)
	if len(r.buf) > r.limit {
		r.buf = r.buf[len(r.buf)-r.limit:]
	}
}

// Events returns a copy of the currently buffered events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.buf))
	copy(out, r.buf)
	return out
}
