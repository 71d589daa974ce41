// Package bus implements the lossy broadcast fan-out every actor publishes
// its events through: collectors and service monitors publish, the alert
// actor, the storage actor and any number of API stream clients subscribe.
//
// Each subscriber gets its own buffered channel and a non-blocking
// publish: a slow subscriber that falls behind does not see its channel
// block, nor do its events vanish without explanation — the next envelope
// it successfully receives carries the number of events it missed.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-consumer channel capacity. A consumer slower
// than this many events behind the publisher starts lagging.
const subscriberBuffer = 64

// Envelope wraps a published event with the number of prior events this
// subscriber missed because its buffer was full. Lagged is 0 on every
// normally-delivered event.
type Envelope[T any] struct {
	Event  T
	Lagged uint64
}

type subscriber[T any] struct {
	id      uuid.UUID
	ch      chan Envelope[T]
	dropped atomic.Uint64
}

// Bus is a non-blocking, lossy multi-producer/multi-consumer broadcaster for
// one event type. The zero value is not usable; construct with New.
type Bus[T any] struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*subscriber[T]
}

// New creates an empty bus ready to accept subscribers and publishes.
func New[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[uuid.UUID]*subscriber[T])}
}

// Subscribe registers a new consumer and returns its id (for Unsubscribe)
// and its receive channel. The channel is closed by Unsubscribe, never by
// Publish.
func (b *Bus[T]) Subscribe() (uuid.UUID, <-chan Envelope[T]) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber[T]{
		id: uuid.New(),
		ch: make(chan Envelope[T], subscriberBuffer),
	}
	b.subs[sub.id] = sub
	return sub.id, sub.ch
}

// Unsubscribe removes a consumer and closes its channel. Safe to call more
// than once; the second call is a no-op.
func (b *Bus[T]) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
}

// Publish broadcasts event to every current subscriber without blocking. A
// subscriber whose buffer is full does not receive this event; instead its
// drop counter is incremented, and the count surfaces on its next
// successfully delivered envelope.
func (b *Bus[T]) Publish(event T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		lagged := sub.dropped.Swap(0)
		select {
		case sub.ch <- Envelope[T]{Event: event, Lagged: lagged}:
		default:
			sub.dropped.Add(lagged + 1)
		}
	}
}

// SubscriberCount reports the number of currently registered consumers.
func (b *Bus[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
