package bus

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/nats-io/nats.go"
)

// subjectPrefix scopes every channel to its own subject namespace.
const subjectPrefix = "relay."

// flushTimeout bounds a server round trip when the caller set no deadline.
const flushTimeout = 5 * time.Second

// NatsBus implements Bus over core NATS subjects. NATS echoes a connection's
// own publishes to its subscriptions, which is what the relay expects.
type NatsBus struct {
	nc     *nats.Conn
	logger types.Logger

	mu     sync.Mutex
	subs   map[*natsSubscription]struct{}
	closed bool
}

// NatsConfig holds NATS connection settings.
type NatsConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNatsConfig returns the default NATS configuration.
func DefaultNatsConfig() NatsConfig {
	return NatsConfig{
		URL:           nats.DefaultURL,
		Name:          "relay-chat",
		MaxReconnects: 10,
		ReconnectWait: time.Second,
	}
}

// ConnectNats dials NATS with retry-on-failed-connect semantics.
func ConnectNats(cfg NatsConfig) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNatsBus creates a NatsBus. The connection's lifecycle stays with the caller.
func NewNatsBus(nc *nats.Conn, logger types.Logger) *NatsBus {
	return &NatsBus{
		nc:     nc,
		logger: logger,
		subs:   make(map[*natsSubscription]struct{}),
	}
}

// Subject maps a channel name onto a valid NATS subject. Names that already
// form a single safe token are kept readable; anything else is encoded.
func Subject(channel string) string {
	if channel != "" && !strings.ContainsAny(channel, ". \t\r\n*>") {
		return subjectPrefix + channel
	}
	return subjectPrefix + "b64." + base64.RawURLEncoding.EncodeToString([]byte(channel))
}

// Publish implements Bus.
func (b *NatsBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}
	if err := b.nc.Publish(Subject(channel), payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe implements Bus.
func (b *NatsBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	if b.isClosed() {
		return nil, ErrClosed
	}

	ns, err := b.nc.Subscribe(Subject(channel), func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	// Round-trip to the server so the interest is registered before returning.
	if err := b.flush(ctx); err != nil {
		_ = ns.Unsubscribe()
		return nil, fmt.Errorf("failed to confirm subscription to %s: %w", channel, err)
	}

	sub := &natsSubscription{bus: b, channel: channel, sub: ns}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = ns.Unsubscribe()
		return nil, ErrClosed
	}
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Ping implements Bus.
func (b *NatsBus) Ping(ctx context.Context) error {
	if !b.nc.IsConnected() {
		return fmt.Errorf("nats connection status: %s", b.nc.Status())
	}
	return b.flush(ctx)
}

// flush round-trips to the server. FlushWithContext rejects contexts
// without a deadline, so one is added when missing.
func (b *NatsBus) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return b.nc.FlushWithContext(ctx)
}

// Close drops every subscription. The connection itself is left open.
func (b *NatsBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*natsSubscription]struct{})
	b.mu.Unlock()

	for sub := range subs {
		if err := sub.release(); err != nil {
			b.logger.Warn("Error closing subscription", "channel", sub.channel, "error", err)
		}
	}
	return nil
}

func (b *NatsBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type natsSubscription struct {
	bus     *NatsBus
	channel string
	sub     *nats.Subscription
	once    sync.Once
}

func (s *natsSubscription) Channel() string {
	return s.channel
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	return s.release()
}

func (s *natsSubscription) release() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
	})
	return err
}
