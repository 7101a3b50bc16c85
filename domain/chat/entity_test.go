package chat

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 45, 123000000, time.UTC)
	msg := NewMessage("alice", "hi", "proc-1", now)

	if msg.Sender != "alice" {
		t.Errorf("Sender = %q, want %q", msg.Sender, "alice")
	}
	if msg.Timestamp != "2026-03-01T12:30:45.123Z" {
		t.Errorf("Timestamp = %q, want ISO-8601", msg.Timestamp)
	}
	if msg.OriginID != "proc-1" {
		t.Errorf("OriginID = %q, want %q", msg.OriginID, "proc-1")
	}
	if msg.Private || msg.RecipientID != "" {
		t.Error("room message must not be private")
	}
}

func TestNewPrivateMessage(t *testing.T) {
	msg := NewPrivateMessage("alice", "psst", "proc-1", "conn-b", time.Now())
	if !msg.Private {
		t.Error("expected Private to be set")
	}
	if msg.RecipientID != "conn-b" {
		t.Errorf("RecipientID = %q, want %q", msg.RecipientID, "conn-b")
	}
}

func TestSystemNotice(t *testing.T) {
	msg := SystemNotice("bob has joined the chat", "proc-1", time.Now())
	if !msg.IsSystem() {
		t.Error("expected system notice")
	}
}

func TestMessage_WithOriginCopies(t *testing.T) {
	orig := NewMessage("alice", "hi", "", time.Now())
	stamped := orig.WithOrigin("proc-9")

	if orig.OriginID != "" {
		t.Error("WithOrigin mutated the receiver")
	}
	if stamped.OriginID != "proc-9" {
		t.Errorf("OriginID = %q, want %q", stamped.OriginID, "proc-9")
	}
}

func TestEncode_WireSchema(t *testing.T) {
	msg := NewPrivateMessage("alice", "hi", "proc-1", "conn-b", time.Now())
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	for _, field := range []string{`"sender"`, `"text"`, `"timestamp"`, `"originProcessId"`, `"private":true`, `"recipientId":"conn-b"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("encoded payload %s missing %s", data, field)
		}
	}

	room := NewMessage("alice", "hi", "proc-1", time.Now())
	data, _ = room.Encode()
	if strings.Contains(string(data), "recipientId") || strings.Contains(string(data), "private") {
		t.Errorf("room payload should omit private fields: %s", data)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{"valid", `{"sender":"a","text":"x","timestamp":"2026-01-01T00:00:00.000Z","originProcessId":"p"}`, false},
		{"not json", `hello`, true},
		{"json array", `[1,2]`, true},
		{"missing sender", `{"text":"x","timestamp":"t"}`, true},
		{"missing timestamp", `{"sender":"a","text":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedMessage) {
					t.Errorf("Decode() error = %v, want ErrMalformedMessage", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Decode() unexpected error: %v", err)
			}
		})
	}
}

func TestNewRoster(t *testing.T) {
	r := NewRoster("lobby", nil)
	if r.Members == nil || r.Count != 0 {
		t.Errorf("empty roster = %+v", r)
	}

	r = NewRoster("lobby", []Member{{ConnectionID: "a"}, {ConnectionID: "b"}})
	if r.Count != 2 {
		t.Errorf("Count = %d, want 2", r.Count)
	}
}

func TestChannelNaming(t *testing.T) {
	if got := RoomChannel("lobby"); got != "room:lobby" {
		t.Errorf("RoomChannel = %q", got)
	}
	if got := PrivateChannel("abc"); got != "private:abc" {
		t.Errorf("PrivateChannel = %q", got)
	}
	if got := LogKey("lobby"); got != "messages:lobby" {
		t.Errorf("LogKey = %q", got)
	}
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{"alice", nil},
		{"", ErrDisplayNameEmpty},
		{strings.Repeat("a", MaxDisplayNameLength+1), ErrDisplayNameTooLong},
		{"\xff", ErrDisplayNameInvalid},
		{SystemSender, ErrDisplayNameSystem},
	}
	for _, tt := range tests {
		if err := ValidateDisplayName(tt.input); !errors.Is(err, tt.want) {
			t.Errorf("ValidateDisplayName(%q) = %v, want %v", tt.input, err, tt.want)
		}
	}
}

func TestValidateRoomName(t *testing.T) {
	if err := ValidateRoomName("lobby"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRoomName(""); !errors.Is(err, ErrRoomNameEmpty) {
		t.Errorf("got %v, want ErrRoomNameEmpty", err)
	}
	if err := ValidateRoomName(strings.Repeat("r", MaxRoomNameLength+1)); !errors.Is(err, ErrRoomNameTooLong) {
		t.Errorf("got %v, want ErrRoomNameTooLong", err)
	}
}

func TestValidateMessage(t *testing.T) {
	if err := ValidateMessage("hello"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateMessage(""); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("got %v, want ErrMessageEmpty", err)
	}
	if err := ValidateMessage(strings.Repeat("m", MaxMessageLength+1)); !errors.Is(err, ErrMessageTooLong) {
		t.Errorf("got %v, want ErrMessageTooLong", err)
	}
	if err := ValidateMessage("\xfe\xff"); !errors.Is(err, ErrMessageInvalid) {
		t.Errorf("got %v, want ErrMessageInvalid", err)
	}
}
