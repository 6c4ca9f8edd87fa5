// ABOUTME: Tests for identifier formats
// ABOUTME: Pins the exact strings existing archives depend on

package keyspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pairwise/internal/identity"
)

var (
	alice = identity.User{Role: identity.RoleAdvanced, Name: "alice"}
	bob   = identity.User{Role: identity.RoleSimple, Name: "bob"}
)

func TestFormats(t *testing.T) {
	ks := Default()
	a, b := ks.UserKey(alice), ks.UserKey(bob)

	assert.Equal(t, "user:Advanced:alice", a)
	assert.Equal(t, "user:Simple:bob", b)
	assert.Equal(t, "hash:user:Advanced:alice", ks.PairRecord(a))
	assert.Equal(t, "users", ks.Registry())

	assert.Equal(t, "messages:user:Simple:bob", ks.Field(Archive, b))
	assert.Equal(t, "chat:user:Simple:bob", ks.Field(Channel, b))
	assert.Equal(t, "messages:user:Advanced:alice:user:Simple:bob", ks.Canonical(Archive, a, b))
	assert.Equal(t, "chat:user:Advanced:alice:user:Simple:bob", ks.Canonical(Channel, a, b))
}

func TestClaimIsOrderIndependent(t *testing.T) {
	ks := Default()
	a, b := ks.UserKey(alice), ks.UserKey(bob)

	assert.Equal(t, ks.Claim(Archive, a, b), ks.Claim(Archive, b, a))
	assert.Equal(t, "claim:messages:19:user:Advanced:alice:user:Simple:bob", ks.Claim(Archive, b, a))
	assert.NotEqual(t, ks.Claim(Archive, a, b), ks.Claim(Channel, a, b))
}

func TestCustomPrefixes(t *testing.T) {
	ks := KeySpace{UserPrefix: "u", MessagesPrefix: "m", ChatPrefix: "c", HashPrefix: "h", UsersKey: "all"}
	a := ks.UserKey(alice)

	assert.Equal(t, "u:Advanced:alice", a)
	assert.Equal(t, "h:u:Advanced:alice", ks.PairRecord(a))
	assert.Equal(t, "c:x", ks.Field(Channel, "x"))

	u, err := ks.ParseUserKey(a)
	require.NoError(t, err)
	assert.Equal(t, alice, u)
}

func TestParseUserKey(t *testing.T) {
	ks := Default()

	u, err := ks.ParseUserKey("user:Simple:bob")
	require.NoError(t, err)
	assert.Equal(t, bob, u)

	for _, bad := range []string{"bob", "hash:user:Simple:bob", "user:Nobody:bob", "user:Simple:"} {
		_, err := ks.ParseUserKey(bad)
		assert.Error(t, err, bad)
	}
}

func TestKind(t *testing.T) {
	assert.True(t, Archive.Valid())
	assert.True(t, Channel.Valid())
	assert.False(t, Kind(0).Valid())
	assert.Equal(t, "archive", Archive.String())
	assert.Equal(t, "kind(7)", Kind(7).String())
}

func TestClaimDistinguishesPairsSharingAJoinedForm(t *testing.T) {
	ks := Default()

	// Both pairs join to "user:Simple:x:user:Simple:y:user:Simple:z".
	first := ks.Claim(Archive, "user:Simple:x", "user:Simple:y:user:Simple:z")
	second := ks.Claim(Archive, "user:Simple:x:user:Simple:y", "user:Simple:z")
	assert.NotEqual(t, first, second)
}
