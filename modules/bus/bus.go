// Package bus provides the fleet-wide publish/subscribe mechanism: named
// channels any process may publish to, delivered to every active subscriber
// including the publisher itself.
package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed bus.
var ErrClosed = errors.New("bus closed")

// Handler receives the raw payload of each message published to a channel.
// Handlers for one subscription are invoked sequentially in arrival order.
type Handler func(payload []byte)

// Subscription is an active interest in one channel.
type Subscription interface {
	Channel() string
	Unsubscribe() error
}

// Bus is a publish/subscribe transport.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe returns once the subscription is active on the transport, so
	// a publish issued afterwards is guaranteed to reach handler.
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
	Ping(ctx context.Context) error
	Close() error
}
