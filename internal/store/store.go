// ABOUTME: Store interface for the key-value, set, hash and pub/sub primitives
// ABOUTME: Every primitive is individually atomic; nothing spans more than one key

package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a scalar key or hash field does not exist
var ErrNotFound = errors.New("not found")

// ErrClosed is returned when a store is used after Close
var ErrClosed = errors.New("store closed")

// Store is the minimal backend the messenger is built on.
// No operation spans more than one key and no multi-key transaction exists.
type Store interface {
	// Scalars
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	SetNX(ctx context.Context, key, value string) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)

	// Sets
	SAdd(ctx context.Context, key string, members ...string) (int64, error)
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SMembers(ctx context.Context, key string) ([]string, error)

	// Hashes
	HGet(ctx context.Context, key, field string) (string, error)
	HSet(ctx context.Context, key, field, value string) error
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)

	// Pub/sub
	Publish(ctx context.Context, channel, payload string) (int64, error)
	Subscribe(ctx context.Context, channel string) (*Subscription, error)

	// Close releases any resources held by the store
	Close() error
}
