package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/relay-chat/domain/chat"
)

// MemoryLog is a process-local Log. It keeps the serialized form so reads go
// through the same decode path as the Redis store. Suitable for
// single-process deployments and tests.
type MemoryLog struct {
	mu       sync.RWMutex
	rooms    map[string][]string
	capacity int
	closed   bool
}

// NewMemoryLog creates an empty MemoryLog bounded to capacity entries per room.
func NewMemoryLog(capacity int) *MemoryLog {
	if capacity <= 0 {
		capacity = chat.DefaultHistoryCapacity
	}
	return &MemoryLog{
		rooms:    make(map[string][]string),
		capacity: capacity,
	}
}

// Capacity returns the per-room bound.
func (l *MemoryLog) Capacity() int {
	return l.capacity
}

// Append implements Log.
func (l *MemoryLog) Append(_ context.Context, room string, msg chat.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrStoreClosed
	}
	entries := append(l.rooms[room], string(data))
	if len(entries) > l.capacity {
		trimmed := make([]string, l.capacity)
		copy(trimmed, entries[len(entries)-l.capacity:])
		entries = trimmed
	}
	l.rooms[room] = entries
	return nil
}

// Recent implements Log.
func (l *MemoryLog) Recent(_ context.Context, room string, count int) ([]chat.Message, error) {
	if count <= 0 {
		return []chat.Message{}, nil
	}
	return l.lrange(room, -int64(count), -1)
}

// Page implements Log.
func (l *MemoryLog) Page(_ context.Context, room string, offset, limit int) ([]chat.Message, error) {
	start, stop, ok := pageRange(offset, limit)
	if !ok {
		return []chat.Message{}, nil
	}
	return l.lrange(room, start, stop)
}

// Len implements Log.
func (l *MemoryLog) Len(_ context.Context, room string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return 0, ErrStoreClosed
	}
	return len(l.rooms[room]), nil
}

// Ping implements Log.
func (l *MemoryLog) Ping(_ context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close implements Log.
func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *MemoryLog) lrange(room string, start, stop int64) ([]chat.Message, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrStoreClosed
	}
	entries := l.rooms[room]
	lo, hi := resolveRange(len(entries), start, stop)
	window := make([]string, hi-lo)
	copy(window, entries[lo:hi])
	l.mu.RUnlock()

	msgs, err := decodeAll(window)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", chat.LogKey(room), err)
	}
	return msgs, nil
}
