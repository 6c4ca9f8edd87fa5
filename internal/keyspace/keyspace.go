// ABOUTME: Deterministic store identifiers: user keys, pair-record fields, canonical keys and claims
// ABOUTME: Formats are fixed for compatibility with existing archives; only the prefixes are configurable

package keyspace

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/2389/pairwise/internal/identity"
)

// Kind is a resource a pair of users shares. Each kind has its own namespace,
// so a pair's archive and live channel are resolved independently.
type Kind int

const (
	// Archive is the durable message set for a pair.
	Archive Kind = iota + 1
	// Channel is the live pub/sub channel for a pair.
	Channel
)

func (k Kind) String() string {
	switch k {
	case Archive:
		return "archive"
	case Channel:
		return "channel"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is Archive or Channel.
func (k Kind) Valid() bool {
	return k == Archive || k == Channel
}

const (
	sep          = ":"
	claimPrefix  = "claim"
	DefaultUser  = "user"
	DefaultMsgs  = "messages"
	DefaultChat  = "chat"
	DefaultHash  = "hash"
	DefaultUsers = "users"
)

// KeySpace builds every identifier the messenger writes.
type KeySpace struct {
	UserPrefix     string
	MessagesPrefix string
	ChatPrefix     string
	HashPrefix     string
	UsersKey       string
}

// Default returns the standard prefixes: user, messages, chat, hash and users.
func Default() KeySpace {
	return KeySpace{
		UserPrefix:     DefaultUser,
		MessagesPrefix: DefaultMsgs,
		ChatPrefix:     DefaultChat,
		HashPrefix:     DefaultHash,
		UsersKey:       DefaultUsers,
	}
}

// UserKey returns "user:" + role + ":" + name.
func (ks KeySpace) UserKey(u identity.User) string {
	return ks.UserPrefix + sep + string(u.Role) + sep + u.Name
}

// ParseUserKey is the inverse of UserKey.
func (ks KeySpace) ParseUserKey(key string) (identity.User, error) {
	rest, ok := strings.CutPrefix(key, ks.UserPrefix+sep)
	if !ok {
		return identity.User{}, fmt.Errorf("user key %q does not start with %q", key, ks.UserPrefix+sep)
	}
	return identity.ParseUser(rest)
}

// Registry returns the set holding every registered user key.
func (ks KeySpace) Registry() string {
	return ks.UsersKey
}

// PairRecord returns the hash holding userKey's resolved conversations.
func (ks KeySpace) PairRecord(userKey string) string {
	return ks.HashPrefix + sep + userKey
}

func (ks KeySpace) prefix(kind Kind) string {
	if kind == Channel {
		return ks.ChatPrefix
	}
	return ks.MessagesPrefix
}

// Field returns the PairRecord field under which the canonical identifier
// shared with otherKey is stored: "messages:" + other or "chat:" + other.
func (ks KeySpace) Field(kind Kind, otherKey string) string {
	return ks.prefix(kind) + sep + otherKey
}

// Canonical composes a new canonical identifier at first contact:
// "messages:" + self + ":" + other or "chat:" + self + ":" + other.
func (ks KeySpace) Canonical(kind Kind, selfKey, otherKey string) string {
	return ks.prefix(kind) + sep + selfKey + sep + otherKey
}

// Claim returns the order-independent key used to elect a single canonical
// identifier when both sides make first contact at once. The length of the
// first key is encoded so distinct pairs never share a claim, even when the
// keys themselves contain the separator.
func (ks KeySpace) Claim(kind Kind, a, b string) string {
	if b < a {
		a, b = b, a
	}
	return claimPrefix + sep + ks.prefix(kind) + sep + strconv.Itoa(len(a)) + sep + a + sep + b
}
