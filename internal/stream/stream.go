// Package stream provides a minimal push-based fan-out primitive used for all
// change streams in the core. Each subscriber owns a buffered channel;
// publishing never blocks the producer. When a subscriber's buffer is full the
// newest item is dropped for that subscriber only (drop-newest policy). This
// is safe for change streams because every published change carries cumulative
// state, so a consumer that misses an item catches up on the next one.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Stream is a fan-out publisher for values of type T. The zero value is not
// usable; create instances with New.
type Stream[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	nextID  int
	closed  bool
	dropped atomic.Uint64
}

// New creates an empty stream.
func New[T any]() *Stream[T] {
	return &Stream[T]{subs: make(map[int]chan T)}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its receive channel plus a cancel function. The channel is closed
// by cancel or when the stream is closed. Subscribing to a closed stream
// returns an already-closed channel.
func (s *Stream[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan T, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers v to every subscriber. Subscribers whose buffers are full
// miss this item; per-subscriber ordering of delivered items matches the
// publish order.
func (s *Stream[T]) Publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			s.dropped.Add(1)
		}
	}
}

// PublishBlocking delivers v to every subscriber, waiting for buffer space
// instead of dropping. Used by the replay scheduler, where a dropped item
// would corrupt reconstruction. Delivery to a slow subscriber is not
// interrupted mid-item; ctx aborts the wait and returns its error.
//
// The stream lock is held for the whole delivery. cancel and Close take the
// same lock before closing channels, which keeps a send from racing a
// close, but it also means a subscriber must never call cancel from the
// goroutine that drains its channel while a publish is in flight: with the
// buffer full the publisher waits inside the lock and cancel waits on the
// publisher. Keep draining until cancel returns, or cancel with the
// publisher's ctx already cancelled.
func (s *Stream[T]) PublishBlocking(ctx context.Context, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	for _, ch := range s.subs {
		select {
		case ch <- v:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close closes every subscriber channel, signalling end of stream. Publish
// and Subscribe after Close are no-ops.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Dropped returns the total number of items dropped across all subscribers.
func (s *Stream[T]) Dropped() uint64 {
	return s.dropped.Load()
}
