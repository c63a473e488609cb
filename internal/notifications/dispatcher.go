package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"studyforge/internal/logging"
)

type envelope struct {
	event   Event
	payload Payload
}

// Dispatcher delivers events on a background goroutine. Publish never blocks
// and never returns a delivery error.
type Dispatcher struct {
	next    Service
	logger  *slog.Logger
	timeout time.Duration
	queue   chan envelope

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts a dispatcher in front of next with a buffer of size events.
func NewDispatcher(next Service, size int, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	d := &Dispatcher{
		next:    next,
		logger:  logging.NewComponentLogger(logger, "notifications"),
		timeout: timeout,
		queue:   make(chan envelope, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish enqueues the event. When the buffer is full the event is dropped.
func (d *Dispatcher) Publish(_ context.Context, event Event, payload Payload) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	select {
	case d.queue <- envelope{event: event, payload: payload}:
	default:
		d.logger.Warn("notification dropped; buffer full",
			logging.String("event", string(event)),
			logging.String(logging.FieldEventType, "notification_dropped"),
			logging.String(logging.FieldErrorHint, "raise notifications.buffer_size or check the ntfy endpoint"),
			logging.String(logging.FieldImpact, "a progress or status notification was not delivered"),
		)
	}
	return nil
}

// Close stops accepting events and waits for queued ones to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for env := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.next.Publish(ctx, env.event, env.payload); err != nil {
			d.logger.Debug("notification delivery failed",
				logging.String("event", string(env.event)),
				logging.Error(err),
			)
		}
		cancel()
	}
}

// Recorder captures events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

// Recorded is one captured event.
type Recorded struct {
	Event   Event
	Payload Payload
}

// Publish records the event.
func (r *Recorder) Publish(_ context.Context, event Event, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := make(Payload, len(payload))
	for k, v := range payload {
		clone[k] = v
	}
	r.events = append(r.events, Recorded{Event: event, Payload: clone})
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Of returns the recorded events of one type.
func (r *Recorder) Of(event Event) []Recorded {
	var out []Recorded
	for _, rec := range r.Events() {
		if rec.Event == event {
			out = append(out, rec)
		}
	}
	return out
}
