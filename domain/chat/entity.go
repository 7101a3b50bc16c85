package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SystemSender is the sender name used for notices generated by the relay itself.
const SystemSender = "System"

// Default sizes for room history.
const (
	DefaultHistoryCapacity = 50
	DefaultInitialHistory  = 10
)

// ErrMalformedMessage is returned when a payload cannot be decoded into a Message.
var ErrMalformedMessage = errors.New("malformed chat message")

// Message is the unit of exchange on the bus and in the room log.
// It is never mutated after construction; stamping helpers return copies.
type Message struct {
	Sender      string `json:"sender"`
	Text        string `json:"text"`
	Timestamp   string `json:"timestamp"`
	OriginID    string `json:"originProcessId"`
	Private     bool   `json:"private,omitempty"`
	RecipientID string `json:"recipientId,omitempty"`
}

// NewMessage builds a room message authored by sender.
func NewMessage(sender, text, originID string, now time.Time) Message {
	return Message{
		Sender:    sender,
		Text:      text,
		Timestamp: FormatTimestamp(now),
		OriginID:  originID,
	}
}

// NewPrivateMessage builds a message addressed to a single connection.
func NewPrivateMessage(sender, text, originID, recipientID string, now time.Time) Message {
	msg := NewMessage(sender, text, originID, now)
	msg.Private = true
	msg.RecipientID = recipientID
	return msg
}

// SystemNotice builds a System-authored room notice.
func SystemNotice(text, originID string, now time.Time) Message {
	return NewMessage(SystemSender, text, originID, now)
}

// FormatTimestamp renders t as ISO-8601 in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// WithOrigin returns a copy of m stamped with originID.
func (m Message) WithOrigin(originID string) Message {
	m.OriginID = originID
	return m
}

// IsSystem reports whether the message is a relay-generated notice.
func (m Message) IsSystem() bool {
	return m.Sender == SystemSender
}

// Encode serializes the message to its wire form.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat message: %w", err)
	}
	return data, nil
}

// Decode parses a wire payload. Payloads that are not a JSON object carrying
// at least a sender and a timestamp are rejected.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if m.Sender == "" || m.Timestamp == "" {
		return Message{}, fmt.Errorf("%w: missing sender or timestamp", ErrMalformedMessage)
	}
	return m, nil
}

// Member is one entry of a room roster.
type Member struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	Room         string `json:"room"`
}

// Roster is the process-local view of who is in a room.
type Roster struct {
	Room    string   `json:"room"`
	Members []Member `json:"users"`
	Count   int      `json:"count"`
}

// NewRoster wraps members into a Roster, fixing up the count.
func NewRoster(room string, members []Member) Roster {
	if members == nil {
		members = []Member{}
	}
	return Roster{Room: room, Members: members, Count: len(members)}
}
