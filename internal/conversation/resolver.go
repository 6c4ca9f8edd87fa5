// ABOUTME: KeyResolver derives the one canonical archive key or channel name for a pair of users
// ABOUTME: Either side resolves to the same identifier; first contact is elected with a SETNX claim

package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/pairwise/internal/apperr"
	"github.com/2389/pairwise/internal/keyspace"
	"github.com/2389/pairwise/internal/store"
)

// ResolverStore defines what the resolver needs from storage
type ResolverStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string) (bool, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
}

// Resolver maps an unordered pair of user keys and a kind to a canonical identifier.
//
// Each user has a pair record (hash "hash:<userKey>") whose field
// "<kindPrefix>:<otherKey>" holds the identifier shared with otherKey.
// Both records carry the same value once resolution returns.
type Resolver struct {
	store  ResolverStore
	keys   keyspace.KeySpace
	logger *slog.Logger
}

// NewResolver creates a Resolver. Pass nil logger for default.
func NewResolver(s ResolverStore, keys keyspace.KeySpace, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  s,
		keys:   keys,
		logger: logger.With("component", "resolver"),
	}
}

// Resolve returns the canonical identifier of kind for {selfKey, otherKey}.
// selfKey only marks which side is asking; swapping the arguments yields the
// same result.
//
//  1. self's pair record already names it: return it.
//  2. other's pair record names it: copy it into self's record and return it.
//  3. first contact: compose "<prefix>:<self>:<other>", elect it through the
//     pair's claim key (a concurrent first contact from the other side adopts
//     whichever value was claimed first), write it to both records and return it.
func (r *Resolver) Resolve(ctx context.Context, selfKey, otherKey string, kind keyspace.Kind) (string, error) {
	const op = "resolver.Resolve"

	switch {
	case selfKey == "" || otherKey == "":
		return "", apperr.Invalid(op, "both user keys are required")
	case selfKey == otherKey:
		return "", apperr.Invalid(op, "cannot resolve a conversation with oneself")
	case !kind.Valid():
		return "", apperr.Invalid(op, "unknown resource kind "+kind.String())
	}

	selfRecord, selfField := r.keys.PairRecord(selfKey), r.keys.Field(kind, otherKey)
	otherRecord, otherField := r.keys.PairRecord(otherKey), r.keys.Field(kind, selfKey)

	// 1. Already resolved from this side.
	id, found, err := r.lookup(ctx, selfRecord, selfField)
	if err != nil {
		return "", apperr.StoreFailure(op, err)
	}
	if found {
		return id, nil
	}

	// 2. Resolved from the other side; backfill ours.
	id, found, err = r.lookup(ctx, otherRecord, otherField)
	if err != nil {
		return "", apperr.StoreFailure(op, err)
	}
	if found {
		if err := r.store.HSet(ctx, selfRecord, selfField, id); err != nil {
			return "", apperr.StoreFailure(op, err)
		}
		r.logger.Debug("backfilled pair record", "self", selfKey, "other", otherKey, "kind", kind, "id", id)
		return id, nil
	}

	// 3. First contact.
	id, err = r.claim(ctx, kind, selfKey, otherKey)
	if err != nil {
		return "", apperr.StoreFailure(op, err)
	}
	if err := r.store.HSet(ctx, selfRecord, selfField, id); err != nil {
		return "", apperr.StoreFailure(op, err)
	}
	if err := r.store.HSet(ctx, otherRecord, otherField, id); err != nil {
		return "", apperr.StoreFailure(op, err)
	}

	r.logger.Debug("created conversation identifier", "self", selfKey, "other", otherKey, "kind", kind, "id", id)
	return id, nil
}

// lookup reads one pair-record field, treating absence as a normal outcome.
func (r *Resolver) lookup(ctx context.Context, record, field string) (string, bool, error) {
	v, err := r.store.HGet(ctx, record, field)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// claim elects the pair's identifier. The first writer of the claim key wins;
// everyone else reads the winner's value back.
func (r *Resolver) claim(ctx context.Context, kind keyspace.Kind, selfKey, otherKey string) (string, error) {
	claimKey := r.keys.Claim(kind, selfKey, otherKey)
	candidate := r.keys.Canonical(kind, selfKey, otherKey)

	won, err := r.store.SetNX(ctx, claimKey, candidate)
	if err != nil {
		return "", err
	}
	if won {
		return candidate, nil
	}
	return r.store.Get(ctx, claimKey)
}
