package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/relay-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// HistoryPort is how other modules reach room history without holding the store.
type HistoryPort interface {
	Append(ctx context.Context, room string, msg chat.Message) error
	Recent(ctx context.Context, room string, count int) ([]chat.Message, error)
	Page(ctx context.Context, room string, offset, limit int) ([]chat.Message, error)
}

// Adapter implements HistoryPort over the history module's service container.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates a new Adapter.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("history: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

// Append implements HistoryPort.
func (a *Adapter) Append(ctx context.Context, room string, msg chat.Message) error {
	req := AppendRequest{Room: room, Message: msg}
	var resp AppendResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceAppend,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return fmt.Errorf("append service call failed: %w", err)
	}
	return nil
}

// Recent implements HistoryPort.
func (a *Adapter) Recent(ctx context.Context, room string, count int) ([]chat.Message, error) {
	req := RecentRequest{Room: room, Count: count}
	var resp MessagesResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceRecent,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("recent service call failed: %w", err)
	}
	return resp.Messages, nil
}

// Page implements HistoryPort.
func (a *Adapter) Page(ctx context.Context, room string, offset, limit int) ([]chat.Message, error) {
	req := PageRequest{Room: room, Offset: offset, Limit: limit}
	var resp MessagesResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePage,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("page service call failed: %w", err)
	}
	return resp.Messages, nil
}
