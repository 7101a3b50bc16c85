package chat

import (
	"errors"
	"unicode/utf8"
)

// Channel and key prefixes shared by every process in the fleet.
const (
	RoomChannelPrefix    = "room:"
	PrivateChannelPrefix = "private:"
	LogKeyPrefix         = "messages:"
)

// RoomChannel names the bus channel carrying a room's messages.
func RoomChannel(room string) string {
	return RoomChannelPrefix + room
}

// PrivateChannel names the bus channel dedicated to one connection.
func PrivateChannel(connectionID string) string {
	return PrivateChannelPrefix + connectionID
}

// LogKey names the shared log holding a room's history.
func LogKey(room string) string {
	return LogKeyPrefix + room
}

// Validation limits
const (
	MaxDisplayNameLength = 50
	MaxRoomNameLength    = 100
	MaxMessageLength     = 5000
)

// Validation errors
var (
	ErrDisplayNameEmpty   = errors.New("display name cannot be empty")
	ErrDisplayNameTooLong = errors.New("display name exceeds maximum length")
	ErrDisplayNameInvalid = errors.New("display name contains invalid characters")
	ErrDisplayNameSystem  = errors.New("display name is reserved")
	ErrRoomNameEmpty      = errors.New("room name cannot be empty")
	ErrRoomNameTooLong    = errors.New("room name exceeds maximum length")
	ErrRoomNameInvalid    = errors.New("room name contains invalid characters")
	ErrMessageEmpty       = errors.New("message content cannot be empty")
	ErrMessageTooLong     = errors.New("message exceeds maximum length")
	ErrMessageInvalid     = errors.New("message contains invalid characters")
)

// ValidateDisplayName validates a display name.
func ValidateDisplayName(name string) error {
	if name == "" {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLength {
		return ErrDisplayNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrDisplayNameInvalid
	}
	if name == SystemSender {
		return ErrDisplayNameSystem
	}
	return nil
}

// ValidateRoomName validates a room name.
func ValidateRoomName(name string) error {
	if name == "" {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrRoomNameInvalid
	}
	return nil
}

// ValidateMessage validates message text.
func ValidateMessage(text string) error {
	if text == "" {
		return ErrMessageEmpty
	}
	if len(text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(text) {
		return ErrMessageInvalid
	}
	return nil
}
