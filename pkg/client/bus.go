// Package client is the embeddable chat client: connection state
// machine, reconnect backoff, an ordered outbox for messages composed
// while offline, and a small LRU cache for search results.
package client

import (
	"strings"
	"sync"
	"time"
)

// Event is a domain event published on the client bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Bus is an in-process publish/subscribe event bus with namespace
// prefix filtering. Frontends subscribe to "message." or "conn." and
// render from the events alone.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Publish sends an event to all subscribers whose namespace is a prefix
// of evt.Kind. A full subscriber's event is dropped, never blocked on.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving events whose kind starts with
// namespace, and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
