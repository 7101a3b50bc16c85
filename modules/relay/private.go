package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/relay-chat/domain/chat"
	"github.com/example/relay-chat/events"
	"github.com/example/relay-chat/modules/bus"
	"github.com/go-monolith/mono/pkg/types"
)

// OfflineNotice is the text sent back when a private recipient is unknown.
const OfflineNotice = "User is offline"

// Outcome is the result of routing a private message.
type Outcome int

const (
	// Sent means the message was published and echoed to the sender.
	Sent Outcome = iota
	// Offline means the recipient was unknown and the sender got a notice.
	Offline
	// Failed means the publish failed and nothing was emitted.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case Offline:
		return "offline"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// PresenceView answers whether a connection is known to this process.
type PresenceView interface {
	Lookup(connectionID string) (chat.Member, bool)
}

// PrivateRelay owns the per-connection private channels of this process.
type PrivateRelay struct {
	processID string
	bus       bus.Bus
	presence  PresenceView
	out       Deliverer
	metrics   *Metrics
	logger    types.Logger
	now       func() time.Time

	mu   sync.Mutex
	subs map[string]bus.Subscription
}

// NewPrivateRelay creates a PrivateRelay for the process identified by processID.
func NewPrivateRelay(processID string, b bus.Bus, presence PresenceView, out Deliverer, metrics *Metrics, logger types.Logger) *PrivateRelay {
	return &PrivateRelay{
		processID: processID,
		bus:       b,
		presence:  presence,
		out:       out,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		subs:      make(map[string]bus.Subscription),
	}
}

// Open subscribes to the private channel of connectionID. Calling it again
// for an open connection does nothing.
func (p *PrivateRelay) Open(ctx context.Context, connectionID string) error {
	if p.IsOpen(connectionID) {
		return nil
	}

	// Subscribing can round-trip to the broker, so it runs unlocked.
	sub, err := p.bus.Subscribe(ctx, chat.PrivateChannel(connectionID), p.receiver(connectionID))
	if err != nil {
		return fmt.Errorf("failed to open private channel for %s: %w", connectionID, err)
	}

	p.mu.Lock()
	_, lost := p.subs[connectionID]
	if !lost {
		p.subs[connectionID] = sub
	}
	p.mu.Unlock()

	if lost {
		// A concurrent Open got there first.
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Warn("Failed to release duplicate private channel", "connectionId", connectionID, "error", err)
		}
	}
	return nil
}

// Close releases the private channel of connectionID.
func (p *PrivateRelay) Close(connectionID string) error {
	p.mu.Lock()
	sub, ok := p.subs[connectionID]
	delete(p.subs, connectionID)
	p.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to close private channel for %s: %w", connectionID, err)
	}
	return nil
}

// IsOpen reports whether connectionID has a private channel on this process.
func (p *PrivateRelay) IsOpen(connectionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.subs[connectionID]
	return ok
}

// OpenCount returns the number of open private channels.
func (p *PrivateRelay) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Route sends text from senderID to recipientID.
//
// Whether the recipient is online is decided from this process's presence
// only, so a recipient held by another process is reported offline. When the
// recipient is known, the message goes out on the recipient's private
// channel and the sender gets an immediate echo.
func (p *PrivateRelay) Route(ctx context.Context, senderID, senderName, recipientID, text string) (Outcome, error) {
	if _, ok := p.presence.Lookup(recipientID); !ok {
		notice := chat.NewPrivateMessage(chat.SystemSender, OfflineNotice, p.processID, senderID, p.now())
		p.out.EmitTo(senderID, events.NewPrivateMessage(notice))
		return Offline, nil
	}

	msg := chat.NewPrivateMessage(senderName, text, p.processID, recipientID, p.now())
	payload, err := msg.Encode()
	if err != nil {
		return Failed, err
	}
	if err := p.bus.Publish(ctx, chat.PrivateChannel(recipientID), payload); err != nil {
		return Failed, fmt.Errorf("failed to publish private message: %w", err)
	}
	p.metrics.add(p.metrics.published, scopePrivate)

	p.out.EmitTo(senderID, events.NewPrivateMessage(msg))
	return Sent, nil
}

func (p *PrivateRelay) receiver(connectionID string) bus.Handler {
	return func(payload []byte) {
		msg, err := chat.Decode(payload)
		if err != nil {
			p.metrics.add(p.metrics.dropped, scopePrivate)
			p.logger.Warn("Dropping private payload", "connectionId", connectionID, "error", err)
			return
		}
		p.out.EmitTo(connectionID, events.NewPrivateMessage(msg))
		p.metrics.add(p.metrics.delivered, scopePrivate)
	}
}
