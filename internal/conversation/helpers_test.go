// ABOUTME: Shared fixtures for conversation tests
// ABOUTME: Builds a memory store, a directory with alice and bob, and a messenger over both

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/pairwise/internal/directory"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/keyspace"
	"github.com/2389/pairwise/internal/store"
)

var (
	alice = identity.User{Role: identity.RoleAdvanced, Name: "alice"}
	bob   = identity.User{Role: identity.RoleSimple, Name: "bob"}
	carol = identity.User{Role: identity.RoleSuper, Name: "carol"}
)

const (
	aliceKey = "user:Advanced:alice"
	bobKey   = "user:Simple:bob"
)

type fixture struct {
	store     *store.MemoryStore
	dir       *directory.Directory
	messenger *Messenger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMemoryStore(nil)
	t.Cleanup(func() { _ = s.Close() })

	keys := keyspace.Default()
	dir := directory.New(s, keys, nil)
	for _, u := range []identity.User{alice, bob} {
		_, err := dir.Register(context.Background(), u)
		require.NoError(t, err)
	}

	m := New(s, dir, keys, nil)
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return &fixture{store: s, dir: dir, messenger: m}
}
