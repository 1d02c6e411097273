// Package state provides a single-writer observable value holder. Observers
// always see the latest snapshot rather than a replayed history, which is the
// broadcast model the enforcement state requires.
package state

import "sync"

// Holder holds a current value with a version counter and notifies
// subscribers on every replacement. Exactly one component should write to a
// given holder; any number may read or subscribe.
type Holder[T any] struct {
	mu      sync.RWMutex
	value   T
	version uint64
	subs    map[int]chan T
	nextSub int
}

// NewHolder creates a holder with the given initial value at version 0.
func NewHolder[T any](initial T) *Holder[T] {
	return &Holder[T]{
		value: initial,
		subs:  make(map[int]chan T),
	}
}

// Get returns the current value and its version.
func (h *Holder[T]) Get() (T, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.value, h.version
}

// Set replaces the current value and notifies subscribers. Slow subscribers
// never block the writer: a stale undelivered value is dropped in favour of
// the new one.
func (h *Holder[T]) Set(value T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.value = value
	h.version++
	for _, ch := range h.subs {
		select {
		case ch <- value:
		default:
			// Replace the pending value with the latest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- value:
			default:
			}
		}
	}
}

// Subscribe registers an observer. The returned channel carries the latest
// value after each change; the cancel function removes the subscription.
func (h *Holder[T]) Subscribe() (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	ch := make(chan T, 1)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
	return ch, cancel
}
