package bus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Bus. Several relay instances sharing one
// MemoryBus behave like processes sharing a broker. Handlers run on the
// publisher's goroutine, so delivery completes before Publish returns.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySubscription
	closed bool
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySubscription)}
}

// Publish implements Bus.
func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrClosed
	}
	subs := make([]*memorySubscription, len(b.subs[channel]))
	copy(subs, b.subs[channel])
	b.mu.RUnlock()

	for _, sub := range subs {
		data := make([]byte, len(payload))
		copy(data, payload)
		sub.deliver(data)
	}
	return nil
}

// Subscribe implements Bus.
func (b *MemoryBus) Subscribe(_ context.Context, channel string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{bus: b, channel: channel, handler: handler}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub, nil
}

// Ping implements Bus.
func (b *MemoryBus) Ping(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Close drops every subscription.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]*memorySubscription)
	return nil
}

// SubscriberCount returns how many subscriptions are active on channel.
func (b *MemoryBus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

func (b *MemoryBus) remove(target *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.channel]
	for i, sub := range subs {
		if sub == target {
			b.subs[target.channel] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[target.channel]) == 0 {
		delete(b.subs, target.channel)
	}
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	handler Handler

	// mu serializes handler calls so one subscription never runs concurrently.
	mu   sync.Mutex
	done bool
}

func (s *memorySubscription) Channel() string {
	return s.channel
}

func (s *memorySubscription) Unsubscribe() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	s.mu.Unlock()
	s.bus.remove(s)
	return nil
}

func (s *memorySubscription) deliver(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.handler(payload)
}
