// Package events defines the client-facing event contract carried over the
// WebSocket transport.
package events

import (
	"github.com/example/relay-chat/domain/chat"
)

// Inbound event types (client -> server).
const (
	JoinRoom    = "join-room"
	SendMessage = "send-message"
	Typing      = "typing"
	StopTyping  = "stop-typing"
	LoadMore    = "load-more"
	SendPrivate = "send-private"
	LeaveRoom   = "leave-room"
)

// Outbound event types (server -> client).
const (
	Connected      = "connected"
	HistoryInitial = "history-initial"
	HistoryPage    = "history-page"
	Message        = "message"
	PrivateMessage = "private-message"
	Roster         = "roster"
	Error          = "error"
)

// Inbound is a frame received from a client. Which fields are meaningful
// depends on Type.
type Inbound struct {
	Type        string `json:"type"`
	DisplayName string `json:"displayName,omitempty"`
	Room        string `json:"room,omitempty"`
	Text        string `json:"text,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
}

// Envelope is a frame sent to a client.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// TypingPayload is the body of typing / stop-typing events.
type TypingPayload struct {
	DisplayName string `json:"displayName"`
}

// ConnectedPayload is sent once when a connection is accepted.
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
	ProcessID    string `json:"processId"`
}

// ErrorPayload reports a transport-level problem such as an unparseable frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage wraps a room message.
func NewMessage(msg chat.Message) Envelope {
	return Envelope{Type: Message, Data: msg}
}

// NewPrivateMessage wraps a private message.
func NewPrivateMessage(msg chat.Message) Envelope {
	return Envelope{Type: PrivateMessage, Data: msg}
}

// NewHistory wraps a history batch; kind is HistoryInitial or HistoryPage.
func NewHistory(kind string, msgs []chat.Message) Envelope {
	if msgs == nil {
		msgs = []chat.Message{}
	}
	return Envelope{Type: kind, Data: msgs}
}

// NewRoster wraps a roster snapshot.
func NewRoster(r chat.Roster) Envelope {
	return Envelope{Type: Roster, Data: r}
}

// NewTyping wraps a typing or stop-typing signal.
func NewTyping(kind, displayName string) Envelope {
	return Envelope{Type: kind, Data: TypingPayload{DisplayName: displayName}}
}
