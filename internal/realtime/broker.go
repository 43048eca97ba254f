// Package realtime implements the in-process change-notification broker: a
// bounded append-only event log with a monotonic cursor, replay-since reads
// and long-poll waits with timeout.
package realtime

import (
	"sync"
	"time"

	"github.com/osdentaire/agenda-api/internal/model"
	"github.com/osdentaire/agenda-api/pkg/metrics"
)

type EventKind string

const (
	EventAppointmentCreated   EventKind = "appointment.created"
	EventAppointmentCancelled EventKind = "appointment.cancelled"
)

// Event is one entry in the broker log. Consumers receive copies; the broker
// retains exclusive ownership of the log itself.
type Event struct {
	Kind        EventKind                `json:"kind"`
	Appointment *model.AppointmentDetail `json:"appointment"`
	Cursor      int64                    `json:"cursor"`
}

// Payload is what a waiter or poller receives: the events newer than its
// cursor plus the broker's cursor at delivery time.
type Payload struct {
	Events []Event `json:"events"`
	Cursor int64   `json:"cursor"`
}

type Callback func(Payload)

type waiter struct {
	since    int64
	callback Callback
	timer    *time.Timer
	done     bool
}

const DefaultHistoryLimit = 50

// Broker is safe for concurrent use. A single mutex covers the cursor, the
// log and the waiter set; Emit finishes its waiter-notification pass before
// returning, so a caller that saw Emit succeed can assume dependent waiters
// already received the event.
type Broker struct {
	mu           sync.Mutex
	cursor       int64
	history      []Event
	historyLimit int
	waiters      map[*waiter]struct{}
	metrics      *metrics.RealtimeMetrics
}

type Option func(*Broker)

func WithHistoryLimit(limit int) Option {
	return func(b *Broker) {
		if limit > 0 {
			b.historyLimit = limit
		}
	}
}

func WithMetrics(m *metrics.RealtimeMetrics) Option {
	return func(b *Broker) { b.metrics = m }
}

func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		historyLimit: DefaultHistoryLimit,
		waiters:      make(map[*waiter]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Cursor returns the broker's current cursor.
func (b *Broker) Cursor() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cursor
}

// Emit appends an event, assigns it the next cursor and synchronously wakes
// every waiter whose cursor predates it. Callbacks run under the broker lock
// and must not call back into the broker.
func (b *Broker) Emit(kind EventKind, appointment *model.AppointmentDetail) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cursor++
	event := Event{Kind: kind, Appointment: appointment, Cursor: b.cursor}
	b.history = append(b.history, event)
	if len(b.history) > b.historyLimit {
		b.history = b.history[len(b.history)-b.historyLimit:]
	}
	if b.metrics != nil {
		b.metrics.EventsEmitted.WithLabelValues(string(kind)).Inc()
	}

	for w := range b.waiters {
		if w.since >= b.cursor {
			continue
		}
		w.timer.Stop()
		w.done = true
		delete(b.waiters, w)
		w.callback(Payload{Events: b.eventsSinceLocked(w.since), Cursor: b.cursor})
	}
	if b.metrics != nil {
		b.metrics.PendingWaiters.Set(float64(len(b.waiters)))
	}
	return event
}

// EventsSince returns copies of the retained events with cursor greater than
// since; since 0 returns the full retained log. A cursor older than the
// oldest retained entry silently misses the evicted events, so callers that
// fall behind must resync with a fresh listing.
func (b *Broker) EventsSince(since int64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eventsSinceLocked(since)
}

func (b *Broker) eventsSinceLocked(since int64) []Event {
	if since <= 0 {
		out := make([]Event, len(b.history))
		copy(out, b.history)
		return out
	}
	var out []Event
	for _, event := range b.history {
		if event.Cursor > since {
			out = append(out, event)
		}
	}
	return out
}

// Wait delivers events newer than since to callback. A non-empty backlog is
// delivered synchronously before Wait returns. Otherwise the waiter is parked
// until the next Emit or until timeout, in which case the callback receives
// an empty payload with the current cursor (a heartbeat, not an error). The
// returned cancel func is idempotent and safe to race with Emit.
func (b *Broker) Wait(since int64, callback Callback, timeout time.Duration) (cancel func()) {
	b.mu.Lock()

	if backlog := b.eventsSinceLocked(since); len(backlog) > 0 {
		cursor := b.cursor
		b.mu.Unlock()
		callback(Payload{Events: backlog, Cursor: cursor})
		return func() {}
	}

	w := &waiter{since: since, callback: callback}
	w.timer = time.AfterFunc(timeout, func() {
		b.expire(w)
	})
	b.waiters[w] = struct{}{}
	if b.metrics != nil {
		b.metrics.PendingWaiters.Set(float64(len(b.waiters)))
	}
	b.mu.Unlock()

	return func() {
		b.remove(w)
	}
}

func (b *Broker) expire(w *waiter) {
	b.mu.Lock()
	if w.done {
		b.mu.Unlock()
		return
	}
	w.done = true
	delete(b.waiters, w)
	cursor := b.cursor
	if b.metrics != nil {
		b.metrics.PendingWaiters.Set(float64(len(b.waiters)))
	}
	b.mu.Unlock()

	w.callback(Payload{Events: []Event{}, Cursor: cursor})
}

func (b *Broker) remove(w *waiter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w.done {
		return
	}
	w.done = true
	w.timer.Stop()
	delete(b.waiters, w)
	if b.metrics != nil {
		b.metrics.PendingWaiters.Set(float64(len(b.waiters)))
	}
}
