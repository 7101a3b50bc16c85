package history

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/example/relay-chat/domain/chat"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// logFactories runs every law against each store implementation.
var logFactories = map[string]func(t *testing.T, capacity int) Log{
	"memory": func(_ *testing.T, capacity int) Log {
		return NewMemoryLog(capacity)
	},
	"redis": func(t *testing.T, capacity int) Log {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisLog(client, capacity)
	},
}

func msgText(i int) string {
	return "m" + strconv.Itoa(i)
}

func appendN(t *testing.T, log Log, room string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		msg := chat.NewMessage("alice", msgText(i), "proc-1", time.Now())
		require.NoError(t, log.Append(ctx, room, msg))
	}
}

func texts(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func textRange(from, to int) []string {
	out := []string{}
	for i := from; i <= to; i++ {
		out = append(out, msgText(i))
	}
	return out
}

func TestLog_RetentionLaw(t *testing.T) {
	for name, newLog := range logFactories {
		t.Run(name, func(t *testing.T) {
			for _, n := range []int{0, 1, 49, 50, 51, 120} {
				t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
					log := newLog(t, 50)
					room := "retention-" + strconv.Itoa(n)
					appendN(t, log, room, n)

					want := n
					if want > 50 {
						want = 50
					}
					length, err := log.Len(context.Background(), room)
					require.NoError(t, err)
					assert.Equal(t, want, length)

					all, err := log.Recent(context.Background(), room, 1000)
					require.NoError(t, err)
					assert.Equal(t, textRange(n-want+1, n), texts(all))
				})
			}
		})
	}
}

func TestLog_Recent(t *testing.T) {
	for name, newLog := range logFactories {
		t.Run(name, func(t *testing.T) {
			log := newLog(t, 50)
			ctx := context.Background()
			appendN(t, log, "lobby", 15)

			got, err := log.Recent(ctx, "lobby", 10)
			require.NoError(t, err)
			assert.Equal(t, textRange(6, 15), texts(got))

			got, err = log.Recent(ctx, "lobby", 0)
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = log.Recent(ctx, "empty-room", 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestLog_Page(t *testing.T) {
	for name, newLog := range logFactories {
		t.Run(name, func(t *testing.T) {
			log := newLog(t, 50)
			ctx := context.Background()
			// 55 appends leave m6..m55 in the log.
			appendN(t, log, "lobby", 55)

			tests := []struct {
				name   string
				offset int
				limit  int
				want   []string
			}{
				{"page behind the ten most recent", 10, 10, textRange(36, 45)},
				{"first page is the tail", 0, 5, textRange(51, 55)},
				{"short page at the head", 45, 10, textRange(6, 10)},
				{"offset at log length", 50, 10, []string{}},
				{"offset beyond log length", 80, 10, []string{}},
				{"zero limit", 0, 0, []string{}},
				{"negative offset treated as zero", -3, 2, textRange(54, 55)},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := log.Page(ctx, "lobby", tt.offset, tt.limit)
					require.NoError(t, err)
					assert.Equal(t, tt.want, texts(got))
				})
			}
		})
	}
}

func TestLog_PaginationLaw(t *testing.T) {
	for name, newLog := range logFactories {
		t.Run(name, func(t *testing.T) {
			log := newLog(t, 50)
			ctx := context.Background()
			appendN(t, log, "lobby", 37)

			for offset := 1; offset <= 40; offset += 3 {
				for _, limit := range []int{1, 7, 50} {
					seen, err := log.Recent(ctx, "lobby", offset)
					require.NoError(t, err)
					page, err := log.Page(ctx, "lobby", offset, limit)
					require.NoError(t, err)

					assert.LessOrEqual(t, len(page), limit)
					if len(seen) == 0 || len(page) == 0 {
						continue
					}
					oldestSeen := textIndex(t, seen[0].Text)
					for _, m := range page {
						assert.Less(t, textIndex(t, m.Text), oldestSeen,
							"offset=%d limit=%d returned %s", offset, limit, m.Text)
					}
				}
			}
		})
	}
}

func textIndex(t *testing.T, text string) int {
	t.Helper()
	i, err := strconv.Atoi(strings.TrimPrefix(text, "m"))
	require.NoError(t, err)
	return i
}

func TestLog_ConcurrentAppendsStayBounded(t *testing.T) {
	for name, newLog := range logFactories {
		t.Run(name, func(t *testing.T) {
			log := newLog(t, 50)
			ctx := context.Background()

			const writers = 8
			const perWriter = 25
			var wg sync.WaitGroup
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						msg := chat.NewMessage(fmt.Sprintf("w%d", w), strconv.Itoa(i), "proc", time.Now())
						assert.NoError(t, log.Append(ctx, "busy", msg))
					}
				}(w)
			}
			wg.Wait()

			length, err := log.Len(ctx, "busy")
			require.NoError(t, err)
			assert.Equal(t, 50, length)

			// Each writer's surviving entries must keep their append order,
			// and every writer's final entry must have survived.
			entries, err := log.Recent(ctx, "busy", 50)
			require.NoError(t, err)
			last := map[string]int{}
			for _, m := range entries {
				seq, err := strconv.Atoi(m.Text)
				require.NoError(t, err)
				if prev, ok := last[m.Sender]; ok {
					assert.Greater(t, seq, prev, "writer %s reordered", m.Sender)
				}
				last[m.Sender] = seq
			}
			for w := 0; w < writers; w++ {
				if seq, ok := last[fmt.Sprintf("w%d", w)]; ok {
					assert.Equal(t, perWriter-1, seq)
				}
			}
		})
	}
}

func TestLog_RoomsAreIndependent(t *testing.T) {
	for name, newLog := range logFactories {
		t.Run(name, func(t *testing.T) {
			log := newLog(t, 3)
			ctx := context.Background()
			appendN(t, log, "a", 5)
			appendN(t, log, "b", 2)

			a, err := log.Recent(ctx, "a", 10)
			require.NoError(t, err)
			b, err := log.Recent(ctx, "b", 10)
			require.NoError(t, err)

			assert.Equal(t, textRange(3, 5), texts(a))
			assert.Equal(t, textRange(1, 2), texts(b))
		})
	}
}

func TestRedisLog_MalformedEntry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	log := NewRedisLog(client, 50)
	_, err := mr.RPush(chat.LogKey("lobby"), "not-json")
	require.NoError(t, err)

	_, err = log.Recent(context.Background(), "lobby", 10)
	assert.ErrorIs(t, err, chat.ErrMalformedMessage)
}

func TestRedisLog_StoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	log := NewRedisLog(client, 50)
	mr.Close()

	err := log.Append(context.Background(), "lobby", chat.NewMessage("a", "x", "p", time.Now()))
	assert.Error(t, err)
	_, err = log.Page(context.Background(), "lobby", 0, 10)
	assert.Error(t, err)
}

func TestMemoryLog_Closed(t *testing.T) {
	log := NewMemoryLog(10)
	require.NoError(t, log.Close())

	err := log.Append(context.Background(), "lobby", chat.NewMessage("a", "x", "p", time.Now()))
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = log.Recent(context.Background(), "lobby", 1)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, log.Ping(context.Background()), ErrStoreClosed)
}

func TestResolveRange(t *testing.T) {
	tests := []struct {
		n           int
		start, stop int64
		lo, hi      int
	}{
		{50, -20, -11, 30, 40},
		{5, -20, -11, 0, 0},
		{5, -10, -1, 0, 5},
		{0, -10, -1, 0, 0},
		{5, 0, 100, 0, 5},
	}
	for _, tt := range tests {
		lo, hi := resolveRange(tt.n, tt.start, tt.stop)
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("resolveRange(%d, %d, %d) = [%d,%d), want [%d,%d)", tt.n, tt.start, tt.stop, lo, hi, tt.lo, tt.hi)
		}
	}
}
