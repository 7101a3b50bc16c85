package relay

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/example/relay-chat/domain/chat"
	"github.com/example/relay-chat/events"
	"github.com/example/relay-chat/modules/bus"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
)

// RoomRelay keeps one bus subscription per room this process has ever
// joined. Subscriptions are never released, even when the room empties
// locally.
type RoomRelay struct {
	processID string
	bus       bus.Bus
	out       Deliverer
	metrics   *Metrics
	logger    types.Logger

	group      singleflight.Group
	mu         sync.RWMutex
	subscribed map[string]bus.Subscription
}

// NewRoomRelay creates a RoomRelay for the process identified by processID.
func NewRoomRelay(processID string, b bus.Bus, out Deliverer, metrics *Metrics, logger types.Logger) *RoomRelay {
	return &RoomRelay{
		processID:  processID,
		bus:        b,
		out:        out,
		metrics:    metrics,
		logger:     logger,
		subscribed: make(map[string]bus.Subscription),
	}
}

// EnsureSubscribed subscribes to room's channel the first time it is called
// for room. Later calls, including concurrent ones, do nothing.
func (r *RoomRelay) EnsureSubscribed(ctx context.Context, room string) error {
	if r.Subscribed(room) {
		return nil
	}

	_, err, _ := r.group.Do(room, func() (any, error) {
		if r.Subscribed(room) {
			return nil, nil
		}
		sub, err := r.bus.Subscribe(ctx, chat.RoomChannel(room), r.receiver(room))
		if err != nil {
			return nil, fmt.Errorf("failed to subscribe to room %q: %w", room, err)
		}
		r.mu.Lock()
		r.subscribed[room] = sub
		r.mu.Unlock()
		r.logger.Debug("Subscribed to room channel", "room", room)
		return nil, nil
	})
	return err
}

// Publish stamps msg with this process's id and publishes it to room's
// channel. It does not deliver to local connections.
func (r *RoomRelay) Publish(ctx context.Context, room string, msg chat.Message) error {
	payload, err := msg.WithOrigin(r.processID).Encode()
	if err != nil {
		return err
	}
	if err := r.bus.Publish(ctx, chat.RoomChannel(room), payload); err != nil {
		return fmt.Errorf("failed to publish to room %q: %w", room, err)
	}
	r.metrics.add(r.metrics.published, scopeRoom)
	return nil
}

// Subscribed reports whether this process holds a subscription for room.
func (r *RoomRelay) Subscribed(room string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subscribed[room]
	return ok
}

// Rooms returns the subscribed rooms sorted by name.
func (r *RoomRelay) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.subscribed))
	for room := range r.subscribed {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (r *RoomRelay) receiver(room string) bus.Handler {
	return func(payload []byte) {
		msg, err := chat.Decode(payload)
		if err != nil {
			r.metrics.add(r.metrics.dropped, scopeRoom)
			r.logger.Warn("Dropping room payload", "room", room, "error", err)
			return
		}
		// Our own publish coming back; local members already have it.
		if msg.OriginID == r.processID {
			r.metrics.add(r.metrics.suppressed, scopeRoom)
			return
		}
		r.out.EmitToRoom(room, events.NewMessage(msg))
		r.metrics.add(r.metrics.delivered, scopeRoom)
	}
}
