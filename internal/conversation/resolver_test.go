// ABOUTME: Tests for pair key resolution
// ABOUTME: Covers symmetry, idempotence, kind independence, backfill and concurrent first contact

package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pairwise/internal/apperr"
	"github.com/2389/pairwise/internal/keyspace"
	"github.com/2389/pairwise/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore(nil)
	t.Cleanup(func() { _ = s.Close() })
	return NewResolver(s, keyspace.Default(), nil), s
}

func TestResolve_FirstContact(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	id, err := r.Resolve(ctx, aliceKey, bobKey, keyspace.Archive)
	require.NoError(t, err)
	assert.Equal(t, "messages:user:Advanced:alice:user:Simple:bob", id)

	// Both sides are mirrored before Resolve returns.
	v, err := s.HGet(ctx, "hash:user:Advanced:alice", "messages:user:Simple:bob")
	require.NoError(t, err)
	assert.Equal(t, id, v)

	v, err = s.HGet(ctx, "hash:user:Simple:bob", "messages:user:Advanced:alice")
	require.NoError(t, err)
	assert.Equal(t, id, v)
}

func TestResolve_Symmetry(t *testing.T) {
	for _, kind := range []keyspace.Kind{keyspace.Archive, keyspace.Channel} {
		t.Run(kind.String(), func(t *testing.T) {
			r, _ := newTestResolver(t)
			ctx := context.Background()

			ab, err := r.Resolve(ctx, aliceKey, bobKey, kind)
			require.NoError(t, err)
			ba, err := r.Resolve(ctx, bobKey, aliceKey, kind)
			require.NoError(t, err)
			assert.Equal(t, ab, ba)
		})
	}
}

func TestResolve_SymmetryFromOtherSideFirst(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	ba, err := r.Resolve(ctx, bobKey, aliceKey, keyspace.Archive)
	require.NoError(t, err)
	assert.Equal(t, "messages:user:Simple:bob:user:Advanced:alice", ba)

	ab, err := r.Resolve(ctx, aliceKey, bobKey, keyspace.Archive)
	require.NoError(t, err)
	assert.Equal(t, ba, ab)
}

func TestResolve_Idempotent(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	first, err := r.Resolve(ctx, aliceKey, bobKey, keyspace.Channel)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		self, other := aliceKey, bobKey
		if i%2 == 1 {
			self, other = other, self
		}
		id, err := r.Resolve(ctx, self, other, keyspace.Channel)
		require.NoError(t, err)
		assert.Equal(t, first, id)
	}

	fields, err := s.HKeys(ctx, "hash:user:Advanced:alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat:user:Simple:bob"}, fields)

	fields, err = s.HKeys(ctx, "hash:user:Simple:bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat:user:Advanced:alice"}, fields)
}

func TestResolve_KindsAreIndependent(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	archive, err := r.Resolve(ctx, aliceKey, bobKey, keyspace.Archive)
	require.NoError(t, err)
	channel, err := r.Resolve(ctx, bobKey, aliceKey, keyspace.Channel)
	require.NoError(t, err)

	assert.NotEqual(t, archive, channel)
	assert.Equal(t, "chat:user:Simple:bob:user:Advanced:alice", channel)

	fields, err := s.HKeys(ctx, "hash:user:Advanced:alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"chat:user:Simple:bob", "messages:user:Simple:bob"}, fields)
}

func TestResolve_BackfillsFromOtherSide(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	// Only bob's half exists, as left behind by an interrupted first contact.
	require.NoError(t, s.HSet(ctx, "hash:user:Simple:bob", "messages:user:Advanced:alice", "messages:legacy"))

	id, err := r.Resolve(ctx, aliceKey, bobKey, keyspace.Archive)
	require.NoError(t, err)
	assert.Equal(t, "messages:legacy", id)

	v, err := s.HGet(ctx, "hash:user:Advanced:alice", "messages:user:Simple:bob")
	require.NoError(t, err)
	assert.Equal(t, "messages:legacy", v)
}

func TestResolve_ExistingRecordWinsOverClaim(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	require.NoError(t, s.HSet(ctx, "hash:user:Advanced:alice", "chat:user:Simple:bob", "chat:existing"))

	id, err := r.Resolve(ctx, aliceKey, bobKey, keyspace.Channel)
	require.NoError(t, err)
	assert.Equal(t, "chat:existing", id)

	_, err = s.Get(ctx, keyspace.Default().Claim(keyspace.Channel, aliceKey, bobKey))
	assert.ErrorIs(t, err, store.ErrNotFound, "no claim is taken when a record already exists")
}

func TestResolve_PairsWithSameJoinedKeysStayApart(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	// Joined with ':' both pairs read "user:Simple:x:user:Simple:y:user:Simple:z".
	first, err := r.Resolve(ctx, "user:Simple:x", "user:Simple:y:user:Simple:z", keyspace.Archive)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "user:Simple:z", "user:Simple:x:user:Simple:y", keyspace.Archive)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, "messages:user:Simple:z:user:Simple:x:user:Simple:y", second)
}

func TestResolve_ConcurrentFirstContact(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	const callers = 32
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			self, other := aliceKey, bobKey
			if i%2 == 1 {
				self, other = other, self
			}
			id, err := r.Resolve(ctx, self, other, keyspace.Archive)
			assert.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}

	aliceFields, err := s.HKeys(ctx, "hash:user:Advanced:alice")
	require.NoError(t, err)
	assert.Len(t, aliceFields, 1)
	bobFields, err := s.HKeys(ctx, "hash:user:Simple:bob")
	require.NoError(t, err)
	assert.Len(t, bobFields, 1)

	a, err := s.HGet(ctx, "hash:user:Advanced:alice", aliceFields[0])
	require.NoError(t, err)
	b, err := s.HGet(ctx, "hash:user:Simple:bob", bobFields[0])
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, results[0], a)
}

func TestResolve_Validation(t *testing.T) {
	r, s := newTestResolver(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		self, other string
		kind        keyspace.Kind
	}{
		{"empty self", "", bobKey, keyspace.Archive},
		{"empty other", aliceKey, "", keyspace.Archive},
		{"same user", aliceKey, aliceKey, keyspace.Archive},
		{"unknown kind", aliceKey, bobKey, keyspace.Kind(9)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.self, tt.other, tt.kind)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	fields, err := s.HKeys(ctx, "hash:user:Advanced:alice")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

// failingStore fails every hash read.
type failingStore struct {
	*store.MemoryStore
	err error
}

func (f *failingStore) HGet(ctx context.Context, key, field string) (string, error) {
	return "", f.err
}

func TestResolve_PropagatesStoreErrors(t *testing.T) {
	mem := store.NewMemoryStore(nil)
	t.Cleanup(func() { _ = mem.Close() })
	cause := errors.New("connection reset")
	r := NewResolver(&failingStore{MemoryStore: mem, err: cause}, keyspace.Default(), nil)

	_, err := r.Resolve(context.Background(), aliceKey, bobKey, keyspace.Archive)
	assert.ErrorIs(t, err, apperr.ErrStore)
	assert.ErrorIs(t, err, cause)

	fields, err := mem.HKeys(context.Background(), "hash:user:Advanced:alice")
	require.NoError(t, err)
	assert.Empty(t, fields, "nothing is written after a failed read")
}
