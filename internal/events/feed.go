package events

import (
	"sync"
)

// Feed fans a value out to registered listeners. A listener is either a
// callback or a channel; channel delivery never blocks, a full channel just
// misses that value.
// T is the type of the value delivered to listeners
type Feed[T any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]func(T)
	nextID     uint64
	replayLast bool
	last       T
	hasLast    bool
}

// NewFeed creates a new Feed.
// replayLast: if true, the Feed remembers the last Notify value and delivers
// it to each new listener as soon as it registers
func NewFeed[T any](replayLast bool) *Feed[T] {
	return &Feed[T]{
		listeners:  make(map[uint64]func(T)),
		replayLast: replayLast,
	}
}

// Listen registers a callback. The returned function deregisters it and may
// be called more than once.
func (f *Feed[T]) Listen(callback func(T)) func() {
	if callback == nil {
		panic("events: callback cannot be nil")
	}

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = callback
	replay, value := f.replayLast && f.hasLast, f.last
	f.mu.Unlock()

	// outside the lock so the callback may call back into the feed
	if replay {
		callback(value)
	}

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// ListenChan registers a channel. Sends are non-blocking.
func (f *Feed[T]) ListenChan(ch chan<- T) func() {
	if ch == nil {
		panic("events: channel cannot be nil")
	}
	return f.Listen(func(value T) {
		select {
		case ch <- value:
		default:
		}
	})
}

// Notify delivers value to every listener registered at the time of the call.
func (f *Feed[T]) Notify(value T) {
	f.mu.Lock()
	if f.replayLast {
		f.last = value
		f.hasLast = true
	}
	callbacks := make([]func(T), 0, len(f.listeners))
	for _, callback := range f.listeners {
		callbacks = append(callbacks, callback)
	}
	f.mu.Unlock()

	for _, callback := range callbacks {
		callback(value)
	}
}

// Last returns the remembered value, if replay is enabled and Notify has run.
func (f *Feed[T]) Last() (T, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.last, f.hasLast
}

// ListenerCount returns the current number of registered listeners
func (f *Feed[T]) ListenerCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.listeners)
}
