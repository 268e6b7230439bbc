package subscriber

import (
	"sync"

	"github.com/hedeqiang/fathom/event"
)

// Broadcast distributes event logs to multiple subscribers.
type Broadcast struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// NewBroadcast creates a new broadcast dispatcher.
func NewBroadcast() *Broadcast {
	return &Broadcast{}
}

// Add registers a subscriber to receive broadcast events.
func (b *Broadcast) Add(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Remove unregisters and closes sub, returning how many subscribers remain.
// Removing an unknown subscriber is a no-op.
func (b *Broadcast) Remove(sub Subscriber) int {
	b.mu.Lock()
	removed := false
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			removed = true
			break
		}
	}
	n := len(b.subs)
	b.mu.Unlock()

	if removed {
		sub.Close()
	}
	return n
}

// Send delivers a log to all registered subscribers.
func (b *Broadcast) Send(log event.Log) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, sub := range subs {
		sub.Send(log)
	}
}

// Close shuts down all registered subscribers.
func (b *Broadcast) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// Len returns the number of registered subscribers.
func (b *Broadcast) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
