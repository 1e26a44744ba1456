package services

import (
	"sync"
	"sync/atomic"
)

// BroadcastQueue fans published values out to subscribers over buffered
// channels. When a subscriber's buffer is full the oldest buffered value is
// evicted to make room, so a lagging consumer always sees the newest values
// and the producer never blocks.
//
// Values that never reach a consumer (evicted, published with no
// subscribers, or still buffered when a subscription ends) are handed to the
// onEvict hook and counted as dropped. When values carry owned resources the
// queue should have a single subscriber; eviction releases the resource and
// a second subscriber could observe it after release.
type BroadcastQueue[T any] struct {
	mu      sync.RWMutex
	subs    map[*Subscription[T]]struct{}
	size    int
	onEvict func(T)
	closed  bool
	dropped atomic.Uint64
}

// Subscription is one subscriber's view of a BroadcastQueue. Receive from C
// until it closes; Cancel releases anything still buffered.
type Subscription[T any] struct {
	ch chan T
	q  *BroadcastQueue[T]
}

// NewBroadcastQueue creates a queue whose subscribers buffer at most size
// values. onEvict may be nil; it must not call back into the queue.
func NewBroadcastQueue[T any](size int, onEvict func(T)) *BroadcastQueue[T] {
	if size < 1 {
		size = 1
	}
	return &BroadcastQueue[T]{
		subs:    make(map[*Subscription[T]]struct{}),
		size:    size,
		onEvict: onEvict,
	}
}

// Publish delivers v to every subscriber, evicting each subscriber's oldest
// buffered value if it is full. Publishing with no subscribers evicts v
// immediately.
func (q *BroadcastQueue[T]) Publish(v T) {
	q.mu.RLock()
	if q.closed || len(q.subs) == 0 {
		q.mu.RUnlock()
		q.evict(v)
		return
	}
	for s := range q.subs {
		select {
		case s.ch <- v:
		default:
			// full: make room by dropping the oldest buffered value
			select {
			case old := <-s.ch:
				q.evict(old)
			default:
			}
			select {
			case s.ch <- v:
			default:
				// a racing consumer refilled the buffer
				q.evict(v)
			}
		}
	}
	q.mu.RUnlock()
}

// Subscribe registers a new subscriber. Subscribing to a closed queue
// returns a subscription whose channel is already closed.
func (q *BroadcastQueue[T]) Subscribe() *Subscription[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := &Subscription[T]{ch: make(chan T, q.size), q: q}
	if q.closed {
		close(s.ch)
		return s
	}
	q.subs[s] = struct{}{}
	return s
}

// Close detaches every subscriber, evicts whatever they had buffered and
// closes their channels. Further publishes evict immediately.
func (q *BroadcastQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	subs := make([]*Subscription[T], 0, len(q.subs))
	for s := range q.subs {
		subs = append(subs, s)
	}
	q.subs = make(map[*Subscription[T]]struct{})
	q.mu.Unlock()

	for _, s := range subs {
		q.drainAndClose(s)
	}
}

// Dropped returns how many values were evicted before reaching a consumer.
func (q *BroadcastQueue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *BroadcastQueue[T]) evict(v T) {
	q.dropped.Add(1)
	if q.onEvict != nil {
		q.onEvict(v)
	}
}

func (q *BroadcastQueue[T]) drainAndClose(s *Subscription[T]) {
	for {
		select {
		case v := <-s.ch:
			q.evict(v)
		default:
			close(s.ch)
			return
		}
	}
}

// C is the receive side of the subscription. It closes when the
// subscription is cancelled or the queue shuts down.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Cancel detaches the subscription and evicts anything still buffered.
// Cancelling twice is a no-op.
func (s *Subscription[T]) Cancel() {
	s.q.mu.Lock()
	if _, ok := s.q.subs[s]; !ok {
		s.q.mu.Unlock()
		return
	}
	delete(s.q.subs, s)
	s.q.mu.Unlock()

	s.q.drainAndClose(s)
}
