// ABOUTME: ConversationStore appends messages to a pair's archive set and reads it back
// ABOUTME: The archive key comes from the resolver, so both participants share one set

package conversation

import (
	"context"
	"strings"

	"github.com/2389/pairwise/internal/apperr"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/keyspace"
)

// ArchiveStore defines what the archive needs from storage
type ArchiveStore interface {
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
}

// UserChecker reports whether a user key is registered.
type UserChecker interface {
	Exists(ctx context.Context, userKey string) (bool, error)
}

// Archive is the durable, unordered message set shared by a pair.
type Archive struct {
	store    ArchiveStore
	users    UserChecker
	resolver *Resolver
	keys     keyspace.KeySpace
}

// NewArchive creates an Archive.
func NewArchive(s ArchiveStore, users UserChecker, resolver *Resolver, keys keyspace.KeySpace) *Archive {
	return &Archive{store: s, users: users, resolver: resolver, keys: keys}
}

// Append stores msg in the archive shared by msg.From and msg.To.
// The text must be non-empty and the recipient must be registered; both are
// checked before any conversation state is touched.
func (a *Archive) Append(ctx context.Context, msg *Message) error {
	const op = "archive.Append"

	if strings.TrimSpace(msg.Text) == "" {
		return apperr.Invalid(op, "message text is required")
	}
	if msg.To.Name == "" {
		return apperr.Invalid(op, "recipient is required")
	}
	if msg.From.Name == "" {
		return apperr.Invalid(op, "sender is required")
	}

	fromKey, toKey := a.keys.UserKey(msg.From), a.keys.UserKey(msg.To)
	exists, err := a.users.Exists(ctx, toKey)
	if err != nil {
		return apperr.StoreFailure(op, err)
	}
	if !exists {
		return apperr.Missing(op, "recipient "+toKey+" is not registered")
	}

	key, err := a.resolver.Resolve(ctx, fromKey, toKey, keyspace.Archive)
	if err != nil {
		return err
	}

	payload, err := msg.Encode()
	if err != nil {
		return apperr.StoreFailure(op, err)
	}
	if _, err := a.store.SAdd(ctx, key, payload); err != nil {
		return apperr.StoreFailure(op, err)
	}
	return nil
}

// ReadAll returns every encoded message in the archive of {userA, userB}.
// A pair that never exchanged messages yields an empty slice; the archive
// key is still resolved so a later Append lands in the same place.
func (a *Archive) ReadAll(ctx context.Context, userA, userB identity.User) ([]string, error) {
	key, err := a.Key(ctx, userA, userB)
	if err != nil {
		return nil, err
	}
	members, err := a.store.SMembers(ctx, key)
	if err != nil {
		return nil, apperr.StoreFailure("archive.ReadAll", err)
	}
	return members, nil
}

// Key resolves the archive key of {userA, userB}.
func (a *Archive) Key(ctx context.Context, userA, userB identity.User) (string, error) {
	return a.resolver.Resolve(ctx, a.keys.UserKey(userA), a.keys.UserKey(userB), keyspace.Archive)
}
