package history

import (
	"context"
	"fmt"

	"github.com/example/relay-chat/domain/chat"
	"github.com/redis/go-redis/v9"
)

// appendScript pushes one entry and trims the list in a single server-side
// step, so concurrent writers on different processes never observe a log
// longer than capacity or lose a newer entry to an older one.
var appendScript = redis.NewScript(`
	local key = KEYS[1]
	local entry = ARGV[1]
	local capacity = tonumber(ARGV[2])

	redis.call('RPUSH', key, entry)
	redis.call('LTRIM', key, -capacity, -1)
	return redis.call('LLEN', key)
`)

// RedisLog stores each room's log as a Redis list under chat.LogKey(room).
type RedisLog struct {
	client   *redis.Client
	capacity int
}

// NewRedisLog creates a RedisLog. The client's lifecycle stays with the caller.
func NewRedisLog(client *redis.Client, capacity int) *RedisLog {
	if capacity <= 0 {
		capacity = chat.DefaultHistoryCapacity
	}
	return &RedisLog{client: client, capacity: capacity}
}

// Capacity returns the per-room bound.
func (l *RedisLog) Capacity() int {
	return l.capacity
}

// Append implements Log.
func (l *RedisLog) Append(ctx context.Context, room string, msg chat.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	if err := appendScript.Run(ctx, l.client, []string{chat.LogKey(room)}, string(data), l.capacity).Err(); err != nil {
		return fmt.Errorf("failed to append to %s: %w", chat.LogKey(room), err)
	}
	return nil
}

// Recent implements Log.
func (l *RedisLog) Recent(ctx context.Context, room string, count int) ([]chat.Message, error) {
	if count <= 0 {
		return []chat.Message{}, nil
	}
	return l.lrange(ctx, room, -int64(count), -1)
}

// Page implements Log.
func (l *RedisLog) Page(ctx context.Context, room string, offset, limit int) ([]chat.Message, error) {
	start, stop, ok := pageRange(offset, limit)
	if !ok {
		return []chat.Message{}, nil
	}
	return l.lrange(ctx, room, start, stop)
}

// Len implements Log.
func (l *RedisLog) Len(ctx context.Context, room string) (int, error) {
	n, err := l.client.LLen(ctx, chat.LogKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read length of %s: %w", chat.LogKey(room), err)
	}
	return int(n), nil
}

// Ping checks the Redis connection.
func (l *RedisLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close is a no-op; the Redis client is owned by the module.
func (l *RedisLog) Close() error {
	return nil
}

func (l *RedisLog) lrange(ctx context.Context, room string, start, stop int64) ([]chat.Message, error) {
	raw, err := l.client.LRange(ctx, chat.LogKey(room), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", chat.LogKey(room), err)
	}
	msgs, err := decodeAll(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", chat.LogKey(room), err)
	}
	return msgs, nil
}
