// ABOUTME: UserDirectory maps (role, name) to a persisted user record and tracks registered keys
// ABOUTME: Registration is a single SETNX on the user key, so duplicates are rejected atomically

package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/pairwise/internal/apperr"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/keyspace"
	"github.com/2389/pairwise/internal/store"
)

// BootstrapUser is registered by Bootstrap when the directory is empty.
var BootstrapUser = identity.User{Role: identity.RoleSuper, Name: "super"}

// DirectoryStore defines what the directory needs from storage
type DirectoryStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key, value string) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Record is the persisted form of a registered user.
type Record struct {
	Role      identity.Role `json:"role"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
}

// User returns the identity the record describes.
func (r Record) User() identity.User {
	return identity.User{Role: r.Role, Name: r.Name}
}

// Directory registers users and answers existence checks.
type Directory struct {
	store  DirectoryStore
	keys   keyspace.KeySpace
	now    func() time.Time
	logger *slog.Logger
}

// New creates a Directory. Pass nil logger for default.
func New(s DirectoryStore, keys keyspace.KeySpace, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		store:  s,
		keys:   keys,
		now:    time.Now,
		logger: logger.With("component", "directory"),
	}
}

// Key returns the user key for u.
func (d *Directory) Key(u identity.User) string {
	return d.keys.UserKey(u)
}

// Register persists a new user and adds its key to the registry.
// Returns a validation error for an empty name, a name containing ':' or an
// unknown role, and an already-exists error if the user key is taken.
func (d *Directory) Register(ctx context.Context, u identity.User) (*Record, error) {
	const op = "directory.Register"

	if err := identity.ValidateName(u.Name); err != nil {
		return nil, apperr.Invalid(op, err.Error())
	}
	if !u.Role.Valid() {
		return nil, apperr.Invalid(op, fmt.Sprintf("unknown role %q", u.Role))
	}

	key := d.keys.UserKey(u)
	rec := &Record{Role: u.Role, Name: u.Name, CreatedAt: d.now().UTC()}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding user record: %w", err)
	}

	created, err := d.store.SetNX(ctx, key, string(payload))
	if err != nil {
		return nil, apperr.StoreFailure(op, err)
	}
	if !created {
		return nil, apperr.Exists(op, key)
	}

	if _, err := d.store.SAdd(ctx, d.keys.Registry(), key); err != nil {
		return nil, apperr.StoreFailure(op, err)
	}

	d.logger.Info("user registered", "user_key", key)
	return rec, nil
}

// Exists reports whether userKey has a registered record.
func (d *Directory) Exists(ctx context.Context, userKey string) (bool, error) {
	_, err := d.store.Get(ctx, userKey)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, apperr.StoreFailure("directory.Exists", err)
	}
	return true, nil
}

// Get returns the record stored at userKey.
func (d *Directory) Get(ctx context.Context, userKey string) (*Record, error) {
	const op = "directory.Get"

	raw, err := d.store.Get(ctx, userKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Missing(op, userKey)
	}
	if err != nil {
		return nil, apperr.StoreFailure(op, err)
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, apperr.StoreFailure(op, fmt.Errorf("decoding user record %s: %w", userKey, err))
	}
	return &rec, nil
}

// ListKeys returns every registered user key, sorted.
func (d *Directory) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := d.store.SMembers(ctx, d.keys.Registry())
	if err != nil {
		return nil, apperr.StoreFailure("directory.ListKeys", err)
	}
	return keys, nil
}

// Delete removes the user's record, registry entry and pair records.
// Archives are left alone: the other participant still reads them.
func (d *Directory) Delete(ctx context.Context, userKey string) error {
	const op = "directory.Delete"

	exists, err := d.Exists(ctx, userKey)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.Missing(op, userKey)
	}

	if _, err := d.store.Del(ctx, userKey, d.keys.PairRecord(userKey)); err != nil {
		return apperr.StoreFailure(op, err)
	}
	if _, err := d.store.SRem(ctx, d.keys.Registry(), userKey); err != nil {
		return apperr.StoreFailure(op, err)
	}

	d.logger.Info("user deleted", "user_key", userKey)
	return nil
}

// Bootstrap registers BootstrapUser if no users exist yet. It reports whether
// a user was created.
func (d *Directory) Bootstrap(ctx context.Context) (bool, error) {
	keys, err := d.ListKeys(ctx)
	if err != nil {
		return false, err
	}
	if len(keys) > 0 {
		return false, nil
	}

	_, err = d.Register(ctx, BootstrapUser)
	if errors.Is(err, apperr.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
