package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "github.com/example/relay-chat/domain/chat"
	"github.com/example/relay-chat/events"
	"github.com/example/relay-chat/modules/history"
	"github.com/example/relay-chat/modules/presence"
	"github.com/example/relay-chat/modules/relay"
	"github.com/go-monolith/mono/pkg/types"
)

// Notice texts sent to a room by the relay itself.
const (
	joinNotice       = "%s has joined the chat"
	leaveNotice      = "%s has left the room"
	disconnectNotice = "%s has disconnected"
)

// session is the per-connection state. Its mutex serializes the events of
// one connection.
type session struct {
	mu          sync.Mutex
	id          string
	displayName string
	room        string
}

// SessionInfo is a snapshot of a connection's state.
type SessionInfo struct {
	ConnectionID string
	DisplayName  string
	Room         string
}

// Handler runs the connection lifecycle: it turns client events into
// presence changes, log appends, relay publishes and outbound envelopes.
//
// Every failure is logged and ends the current event; nothing is reported
// back to the client and nothing is retried.
type Handler struct {
	processID string
	initial   int
	history   history.HistoryPort
	presence  *presence.Registry
	rooms     *relay.RoomRelay
	private   *relay.PrivateRelay
	out       relay.Deliverer
	logger    types.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// Deps groups what a Handler needs.
type Deps struct {
	ProcessID      string
	InitialHistory int
	History        history.HistoryPort
	Presence       *presence.Registry
	Rooms          *relay.RoomRelay
	Private        *relay.PrivateRelay
	Out            relay.Deliverer
	Logger         types.Logger
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	initial := d.InitialHistory
	if initial <= 0 {
		initial = domain.DefaultInitialHistory
	}
	return &Handler{
		processID: d.ProcessID,
		initial:   initial,
		history:   d.History,
		presence:  d.Presence,
		rooms:     d.Rooms,
		private:   d.Private,
		out:       d.Out,
		logger:    d.Logger,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// Connect registers a new connection, opens its private channel and sends
// the welcome frame.
func (h *Handler) Connect(ctx context.Context, connectionID string) error {
	h.mu.Lock()
	if _, ok := h.sessions[connectionID]; ok {
		h.mu.Unlock()
		return nil
	}
	h.sessions[connectionID] = &session{id: connectionID}
	h.mu.Unlock()

	if err := h.private.Open(ctx, connectionID); err != nil {
		h.mu.Lock()
		delete(h.sessions, connectionID)
		h.mu.Unlock()
		return err
	}

	h.out.EmitTo(connectionID, events.Envelope{
		Type: events.Connected,
		Data: events.ConnectedPayload{ConnectionID: connectionID, ProcessID: h.processID},
	})
	h.logger.Debug("Connection accepted", "connectionId", connectionID)
	return nil
}

// JoinRoom puts the connection in room. The display name is taken from the
// first join; later joins keep it. Joining a different room leaves the
// current one first.
func (h *Handler) JoinRoom(ctx context.Context, connectionID, displayName, room string) {
	s := h.session(connectionID)
	if s == nil {
		return
	}
	if err := domain.ValidateRoomName(room); err != nil {
		h.logger.Debug("Ignoring join", "connectionId", connectionID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.displayName
	if name == "" {
		if err := domain.ValidateDisplayName(displayName); err != nil {
			h.logger.Debug("Ignoring join", "connectionId", connectionID, "error", err)
			return
		}
		name = displayName
	}

	if s.room == room {
		h.sendInitialHistory(ctx, s.id, room)
		return
	}
	if s.room != "" {
		h.leaveLocked(s, leaveNotice)
	}

	s.displayName = name
	s.room = room
	h.presence.Join(s.id, name, room)
	h.broadcastRoster(room)

	if err := h.rooms.EnsureSubscribed(ctx, room); err != nil {
		h.logger.Warn("Room subscription failed", "room", room, "error", err)
	}

	h.sendInitialHistory(ctx, s.id, room)
	h.emitNotice(room, fmt.Sprintf(joinNotice, name))
	h.logger.Info("Joined room", "connectionId", s.id, "displayName", name, "room", room)
}

// SendMessage appends text to the room log, emits it to local members and
// publishes it for other processes.
func (h *Handler) SendMessage(ctx context.Context, connectionID, text string) {
	s := h.session(connectionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == "" {
		return
	}
	if err := domain.ValidateMessage(text); err != nil {
		h.logger.Debug("Ignoring message", "connectionId", s.id, "error", err)
		return
	}

	msg := domain.NewMessage(s.displayName, text, h.processID, h.now())
	if err := h.history.Append(ctx, s.room, msg); err != nil {
		h.logger.Warn("Failed to append message", "room", s.room, "error", err)
	}

	h.out.EmitToRoom(s.room, events.NewMessage(msg))

	if err := h.rooms.Publish(ctx, s.room, msg); err != nil {
		h.logger.Warn("Failed to publish message", "room", s.room, "error", err)
	}
}

// Typing tells the other local members of the room that the sender is typing.
func (h *Handler) Typing(connectionID string) {
	h.typingSignal(connectionID, events.Typing)
}

// StopTyping clears the typing signal.
func (h *Handler) StopTyping(connectionID string) {
	h.typingSignal(connectionID, events.StopTyping)
}

func (h *Handler) typingSignal(connectionID, kind string) {
	s := h.session(connectionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == "" {
		return
	}
	h.out.EmitToRoom(s.room, events.NewTyping(kind, s.displayName), s.id)
}

// LoadMore sends the requester a page of older room history. Offsets count
// back from the current tail of the log.
func (h *Handler) LoadMore(ctx context.Context, connectionID string, offset, limit int) {
	s := h.session(connectionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == "" {
		return
	}
	msgs, err := h.history.Page(ctx, s.room, offset, limit)
	if err != nil {
		h.logger.Warn("Failed to load history page", "room", s.room, "error", err)
		return
	}
	h.out.EmitTo(s.id, events.NewHistory(events.HistoryPage, msgs))
}

// SendPrivate routes text to recipientID. The sender must have a display
// name, which it gets on its first join.
func (h *Handler) SendPrivate(ctx context.Context, connectionID, recipientID, text string) {
	s := h.session(connectionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.displayName == "" || recipientID == "" {
		return
	}
	if err := domain.ValidateMessage(text); err != nil {
		h.logger.Debug("Ignoring private message", "connectionId", s.id, "error", err)
		return
	}

	outcome, err := h.private.Route(ctx, s.id, s.displayName, recipientID, text)
	if err != nil {
		h.logger.Warn("Failed to route private message", "recipientId", recipientID, "error", err)
		return
	}
	h.logger.Debug("Private message routed", "recipientId", recipientID, "outcome", outcome.String())
}

// LeaveRoom takes the connection out of its room.
func (h *Handler) LeaveRoom(_ context.Context, connectionID string) {
	s := h.session(connectionID)
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == "" {
		return
	}
	h.leaveLocked(s, leaveNotice)
}

// Disconnect forgets the connection. Its room, if any, is told it left and
// its private channel is released.
func (h *Handler) Disconnect(_ context.Context, connectionID string) {
	h.mu.Lock()
	s, ok := h.sessions[connectionID]
	delete(h.sessions, connectionID)
	h.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room != "" {
		room := s.room
		h.presence.Leave(s.id)
		s.room = ""
		h.emitNotice(room, fmt.Sprintf(disconnectNotice, s.displayName))
		h.broadcastRoster(room)
	}

	if err := h.private.Close(s.id); err != nil {
		h.logger.Warn("Failed to close private channel", "connectionId", s.id, "error", err)
	}
	h.logger.Debug("Connection closed", "connectionId", s.id)
}

// Session returns a snapshot of a connection's state.
func (h *Handler) Session(connectionID string) (SessionInfo, bool) {
	s := h.session(connectionID)
	if s == nil {
		return SessionInfo{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{ConnectionID: s.id, DisplayName: s.displayName, Room: s.room}, true
}

// SessionCount returns the number of connections this handler knows.
func (h *Handler) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Roster returns the local roster of room.
func (h *Handler) Roster(room string) domain.Roster {
	return domain.NewRoster(room, h.presence.RosterFor(room))
}

func (h *Handler) session(connectionID string) *session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[connectionID]
}

// leaveLocked emits the notice while the leaver is still a member, so the
// leaver sees it too. s.mu must be held.
func (h *Handler) leaveLocked(s *session, notice string) {
	room := s.room
	h.emitNotice(room, fmt.Sprintf(notice, s.displayName))
	h.presence.Leave(s.id)
	s.room = ""
	h.broadcastRoster(room)
	h.logger.Info("Left room", "connectionId", s.id, "room", room)
}

func (h *Handler) sendInitialHistory(ctx context.Context, connectionID, room string) {
	msgs, err := h.history.Recent(ctx, room, h.initial)
	if err != nil {
		h.logger.Warn("Failed to load recent history", "room", room, "error", err)
		return
	}
	h.out.EmitTo(connectionID, events.NewHistory(events.HistoryInitial, msgs))
}

func (h *Handler) broadcastRoster(room string) {
	h.out.EmitToRoom(room, events.NewRoster(h.Roster(room)))
}

func (h *Handler) emitNotice(room, text string) {
	h.out.EmitToRoom(room, events.NewMessage(domain.SystemNotice(text, h.processID, h.now())))
}
