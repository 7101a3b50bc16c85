package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus with Redis PUBLISH/SUBSCRIBE. Every subscription
// holds its own pub/sub connection, mirroring a dedicated subscriber per
// private channel.
type RedisBus struct {
	client *redis.Client
	logger types.Logger

	mu     sync.Mutex
	subs   map[*redisSubscription]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewRedisBus creates a RedisBus. The client's lifecycle stays with the caller.
func NewRedisBus(client *redis.Client, logger types.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger,
		subs:   make(map[*redisSubscription]struct{}),
	}
}

// Publish implements Bus.
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Bus.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	ps := b.client.Subscribe(ctx, channel)
	// Wait for the subscribe confirmation before handing the subscription out.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	sub := &redisSubscription{bus: b, channel: channel, ps: ps}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ps.Close()
		return nil, ErrClosed
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	msgs := ps.Channel()
	go func() {
		defer b.wg.Done()
		for msg := range msgs {
			handler([]byte(msg.Payload))
		}
		b.logger.Debug("Subscription loop ended", "channel", channel)
	}()

	return sub, nil
}

// Ping implements Bus.
func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases every subscription and waits for their loops to finish.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*redisSubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.subs = make(map[*redisSubscription]struct{})
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.release(false); err != nil {
			b.logger.Warn("Error closing subscription", "channel", sub.channel, "error", err)
		}
	}
	b.wg.Wait()
	return nil
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type redisSubscription struct {
	bus     *RedisBus
	channel string
	ps      *redis.PubSub
	once    sync.Once
}

func (s *redisSubscription) Channel() string {
	return s.channel
}

func (s *redisSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.release(true)
}

func (s *redisSubscription) release(unsubscribe bool) error {
	var err error
	s.once.Do(func() {
		if unsubscribe {
			if uerr := s.ps.Unsubscribe(context.Background(), s.channel); uerr != nil {
				s.bus.logger.Debug("Unsubscribe failed, closing connection", "channel", s.channel, "error", uerr)
			}
		}
		err = s.ps.Close()
	})
	return err
}
