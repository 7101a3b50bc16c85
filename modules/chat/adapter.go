package chat

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/relay-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ChatPort is how other modules query the chat module.
type ChatPort interface {
	Roster(ctx context.Context, room string) (domain.Roster, error)
	Stats(ctx context.Context) (StatsResponse, error)
}

// ChatAdapter implements ChatPort using the service container.
type ChatAdapter struct {
	container mono.ServiceContainer
}

// NewChatAdapter creates a new ChatAdapter.
func NewChatAdapter(container mono.ServiceContainer) ChatPort {
	if container == nil {
		panic("chat: ServiceContainer is nil")
	}
	return &ChatAdapter{container: container}
}

// Roster returns the local roster of room.
func (a *ChatAdapter) Roster(ctx context.Context, room string) (domain.Roster, error) {
	req := RosterRequest{Room: room}
	var resp domain.Roster
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRoster,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return domain.Roster{}, fmt.Errorf("roster service call failed: %w", err)
	}
	return resp, nil
}

// Stats returns the connection statistics of this process.
func (a *ChatAdapter) Stats(ctx context.Context) (StatsResponse, error) {
	req := StatsRequest{}
	var resp StatsResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceStats,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return StatsResponse{}, fmt.Errorf("stats service call failed: %w", err)
	}
	return resp, nil
}
