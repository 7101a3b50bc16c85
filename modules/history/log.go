// Package history provides the shared, length-bounded per-room message log.
package history

import (
	"context"
	"errors"

	"github.com/example/relay-chat/domain/chat"
)

// ErrStoreClosed is returned by operations on a closed log.
var ErrStoreClosed = errors.New("history store closed")

// Log is a keyed, bounded append log holding one sequence per room,
// oldest entry first.
type Log interface {
	// Append adds msg to the room's log and trims it to capacity as one
	// atomic step with respect to other appends on the same room.
	Append(ctx context.Context, room string, msg chat.Message) error
	// Recent returns the last count entries, oldest first.
	Recent(ctx context.Context, room string, count int) ([]chat.Message, error)
	// Page returns the entries at positions [tail-offset-limit, tail-offset),
	// oldest first, relative to the log's current contents.
	Page(ctx context.Context, room string, offset, limit int) ([]chat.Message, error)
	// Len returns the number of entries currently held for room.
	Len(ctx context.Context, room string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// pageRange converts an (offset, limit) request into LRANGE-style negative
// start/stop indices. ok is false when the request can never match anything.
func pageRange(offset, limit int) (start, stop int64, ok bool) {
	if limit <= 0 {
		return 0, 0, false
	}
	if offset < 0 {
		offset = 0
	}
	return -int64(offset + limit), -int64(offset + 1), true
}

// resolveRange applies LRANGE index semantics to a sequence of length n and
// returns the half-open slice bounds [lo, hi).
func resolveRange(n int, start, stop int64) (lo, hi int) {
	size := int64(n)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return 0, 0
	}
	return int(start), int(stop) + 1
}

func decodeAll(raw []string) ([]chat.Message, error) {
	msgs := make([]chat.Message, 0, len(raw))
	for _, entry := range raw {
		msg, err := chat.Decode([]byte(entry))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
