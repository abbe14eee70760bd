// Package broadcast implements the best-effort publish/subscribe channels
// that carry transcript lines and enrichment progress to passive listeners.
// Delivery never blocks a publisher and never affects the primary result: a
// listener that falls behind loses its oldest events first.
package broadcast

import (
	"sync"
)

// DefaultQueueSize is the per-listener event buffer.
const DefaultQueueSize = 64

// Hub fans events out to subscribers over bounded per-listener queues.
// Backpressure policy is drop-oldest: when a subscriber's queue is full, the
// oldest undelivered event is discarded to make room for the new one.
type Hub[T any] struct {
	mu        sync.Mutex
	subs      map[*Subscription[T]]struct{}
	queueSize int

	// onDrop, if set, is invoked once per dropped event (for metrics).
	onDrop func()
	// onDeliver, if set, is invoked once per enqueued event.
	onDeliver func()
}

// Subscription is one listener's view of a hub. Events arrive on C until
// Close is called; C is closed by Close.
type Subscription[T any] struct {
	C chan T

	hub    *Hub[T]
	filter func(T) bool
	once   sync.Once
}

// NewHub creates a hub with the given per-listener queue size.
// size <= 0 means DefaultQueueSize.
func NewHub[T any](size int) *Hub[T] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Hub[T]{
		subs:      map[*Subscription[T]]struct{}{},
		queueSize: size,
	}
}

// OnDrop registers a callback invoked for every dropped event.
func (h *Hub[T]) OnDrop(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

// OnDeliver registers a callback invoked for every delivered event.
func (h *Hub[T]) OnDeliver(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDeliver = fn
}

// Subscribe registers a listener. filter may be nil to receive everything;
// otherwise only events for which filter returns true are delivered.
func (h *Hub[T]) Subscribe(filter func(T) bool) *Subscription[T] {
	sub := &Subscription[T]{
		C:      make(chan T, h.queueSize),
		hub:    h,
		filter: filter,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Publish delivers the event to all matching subscribers. It never blocks:
// full queues drop their oldest event. Publishing with no listeners is a
// no-op, not an error.
func (h *Hub[T]) Publish(event T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		for {
			select {
			case sub.C <- event:
			default:
				// Queue full: discard the oldest and retry.
				select {
				case <-sub.C:
					if h.onDrop != nil {
						h.onDrop()
					}
				default:
				}
				continue
			}
			break
		}
		if h.onDeliver != nil {
			h.onDeliver()
		}
	}
}

// Listeners returns the current subscriber count.
func (h *Hub[T]) Listeners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close removes the subscription from its hub and closes C. Safe to call
// more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.C)
	})
}
