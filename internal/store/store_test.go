// ABOUTME: Conformance tests run against every Store backend
// ABOUTME: Memory, SQLite and Pebble use temp dirs; Redis runs against miniredis

package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backendFactory func(t *testing.T) Store

func backends() map[string]backendFactory {
	return map[string]backendFactory{
		"memory": func(t *testing.T) Store {
			s := NewMemoryStore(nil)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"pebble": func(t *testing.T) Store {
			s, err := NewPebbleStore(filepath.Join(t.TempDir(), "pebble"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) Store {
			mr := miniredis.RunT(t)
			s, err := NewRedisStore(context.Background(), RedisOptions{Addr: mr.Addr()}, nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// forEachBackend runs fn as a subtest against every backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestStore_Scalars(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Set(ctx, "k", "v1"))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v1", got)

		require.NoError(t, s.Set(ctx, "k", "v2"))
		got, err = s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v2", got)
	})
}

func TestStore_SetNX(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		ok, err := s.SetNX(ctx, "claim", "first")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetNX(ctx, "claim", "second")
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.Get(ctx, "claim")
		require.NoError(t, err)
		assert.Equal(t, "first", got)
	})
}

func TestStore_SetNX_Concurrent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		const racers = 16

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.SetNX(ctx, "contested", fmt.Sprintf("racer-%d", i))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load(), "exactly one SetNX should win")
	})
}

func TestStore_Sets(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		members, err := s.SMembers(ctx, "missing")
		require.NoError(t, err)
		assert.NotNil(t, members)
		assert.Empty(t, members)

		n, err := s.SAdd(ctx, "set", "b", "a", "c")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = s.SAdd(ctx, "set", "a", "d")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n, "only d is new")

		members, err = s.SMembers(ctx, "set")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d"}, members)

		n, err = s.SRem(ctx, "set", "b", "zzz")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		members, err = s.SMembers(ctx, "set")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "c", "d"}, members)
	})
}

func TestStore_Hashes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		_, err := s.HGet(ctx, "h", "f")
		assert.ErrorIs(t, err, ErrNotFound)

		fields, err := s.HKeys(ctx, "h")
		require.NoError(t, err)
		assert.NotNil(t, fields)
		assert.Empty(t, fields)

		require.NoError(t, s.HSet(ctx, "h", "f2", "v2"))
		require.NoError(t, s.HSet(ctx, "h", "f1", "v1"))

		got, err := s.HGet(ctx, "h", "f1")
		require.NoError(t, err)
		assert.Equal(t, "v1", got)

		// Field-level absence on an existing hash.
		_, err = s.HGet(ctx, "h", "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		ok, err := s.HSetNX(ctx, "h", "f1", "other")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.HSetNX(ctx, "h", "f3", "v3")
		require.NoError(t, err)
		assert.True(t, ok)

		fields, err = s.HKeys(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f2", "f3"}, fields)

		n, err := s.HDel(ctx, "h", "f2", "missing")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		fields, err = s.HKeys(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, []string{"f1", "f3"}, fields)
	})
}

func TestStore_Del(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "scalar", "x"))
		_, err := s.SAdd(ctx, "set", "m")
		require.NoError(t, err)
		require.NoError(t, s.HSet(ctx, "hash", "f", "v"))

		n, err := s.Del(ctx, "scalar", "set", "hash", "missing")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		_, err = s.Get(ctx, "scalar")
		assert.ErrorIs(t, err, ErrNotFound)
		members, err := s.SMembers(ctx, "set")
		require.NoError(t, err)
		assert.Empty(t, members)
		fields, err := s.HKeys(ctx, "hash")
		require.NoError(t, err)
		assert.Empty(t, fields)

		n, err = s.Del(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)
	})
}

func TestStore_KeysDoNotCollide(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		// A hash field must not be visible under a longer hash key sharing its prefix.
		require.NoError(t, s.HSet(ctx, "hash:user:Simple:a", "f", "1"))
		require.NoError(t, s.HSet(ctx, "hash:user:Simple:ab", "g", "2"))

		fields, err := s.HKeys(ctx, "hash:user:Simple:a")
		require.NoError(t, err)
		assert.Equal(t, []string{"f"}, fields)
	})
}

func TestStore_PubSub(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		n, err := s.Publish(ctx, "chan", "nobody listening")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		sub, err := s.Subscribe(ctx, "chan")
		require.NoError(t, err)
		assert.Equal(t, "chan", sub.Channel)

		n, err = s.Publish(ctx, "chan", "hello")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		select {
		case msg := <-sub.Messages():
			assert.Equal(t, "hello", msg)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for published payload")
		}

		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close(), "Close should be idempotent")

		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-sub.Messages():
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond, "messages channel should close")

		assert.Eventually(t, func() bool {
			n, err := s.Publish(ctx, "chan", "after close")
			return err == nil && n == 0
		}, 2*time.Second, 10*time.Millisecond)
	})
}

func TestStore_SubscribeContextCancel(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx, cancel := context.WithCancel(context.Background())

		sub, err := s.Subscribe(ctx, "chan")
		require.NoError(t, err)

		cancel()

		assert.Eventually(t, func() bool {
			select {
			case _, ok := <-sub.Messages():
				return !ok
			default:
				return false
			}
		}, 2*time.Second, 10*time.Millisecond, "cancelling the context should end the subscription")
	})
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore(nil)
	require.NoError(t, s.Close())

	ctx := context.Background()
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(ctx, "k", "v"), ErrClosed)
	_, err = s.Subscribe(ctx, "chan")
	assert.ErrorIs(t, err, ErrClosed)
}
