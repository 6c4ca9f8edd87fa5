// ABOUTME: Pebble (LSM key-value) implementation of the Store interface
// ABOUTME: Sets and hashes are encoded as prefixed keys; pub/sub is process-local

package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Key layout. The NUL separator cannot appear in user, archive or channel keys.
const (
	pebbleScalarPrefix = "kv\x00"
	pebbleSetPrefix    = "set\x00"
	pebbleHashPrefix   = "hash\x00"
	pebbleSep          = "\x00"
)

// PebbleStore implements the Store interface on a local Pebble database
type PebbleStore struct {
	db     *pebble.DB
	bus    *Broadcaster
	logger *slog.Logger

	// writeMu serializes writes so NX checks and counts see a stable view.
	writeMu sync.Mutex
}

// NewPebbleStore opens (or creates) a Pebble database in dir.
func NewPebbleStore(dir string, logger *slog.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "backend", "pebble")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating pebble directory: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening pebble: %w", err)
	}

	logger.Info("Pebble store initialized", "dir", dir)
	return &PebbleStore{
		db:     db,
		bus:    NewBroadcaster(0, logger),
		logger: logger,
	}, nil
}

// Close flushes and closes the database and ends every subscription
func (s *PebbleStore) Close() error {
	s.logger.Info("closing Pebble store")
	s.bus.Close()
	return s.db.Close()
}

func scalarKey(key string) []byte {
	return []byte(pebbleScalarPrefix + key)
}

func setPrefix(key string) []byte {
	return []byte(pebbleSetPrefix + key + pebbleSep)
}

func hashPrefix(key string) []byte {
	return []byte(pebbleHashPrefix + key + pebbleSep)
}

// prefixUpperBound returns the smallest key greater than every key with prefix.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// get reads a raw value, copying it out before the closer is released.
func (s *PebbleStore) get(k []byte) (string, bool, error) {
	v, closer, err := s.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()
	return string(v), true, nil
}

// suffixes lists the key suffixes under prefix in byte order.
func (s *PebbleStore) suffixes(prefix []byte) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("creating iterator: %w", err)
	}
	defer iter.Close()

	out := []string{}
	for iter.First(); iter.Valid(); iter.Next() {
		out = append(out, string(bytes.TrimPrefix(iter.Key(), prefix)))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterating: %w", err)
	}
	return out, nil
}

// Get returns the scalar at key.
func (s *PebbleStore) Get(ctx context.Context, key string) (string, error) {
	v, ok, err := s.get(scalarKey(key))
	if err != nil {
		return "", fmt.Errorf("reading scalar: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores a scalar.
func (s *PebbleStore) Set(ctx context.Context, key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Set(scalarKey(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("writing scalar: %w", err)
	}
	s.logger.Debug("SET", "key", key)
	return nil
}

// SetNX stores a scalar only if the key is absent.
func (s *PebbleStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, ok, err := s.get(scalarKey(key))
	if err != nil {
		return false, fmt.Errorf("reading scalar: %w", err)
	}
	if ok {
		return false, nil
	}
	if err := s.db.Set(scalarKey(key), []byte(value), pebble.Sync); err != nil {
		return false, fmt.Errorf("writing scalar: %w", err)
	}
	return true, nil
}

// Del removes keys of any type and returns how many existed.
func (s *PebbleStore) Del(ctx context.Context, keys ...string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	var deleted int64
	for _, key := range keys {
		_, isScalar, err := s.get(scalarKey(key))
		if err != nil {
			return 0, fmt.Errorf("reading scalar: %w", err)
		}
		members, err := s.suffixes(setPrefix(key))
		if err != nil {
			return 0, err
		}
		fields, err := s.suffixes(hashPrefix(key))
		if err != nil {
			return 0, err
		}
		if !isScalar && len(members) == 0 && len(fields) == 0 {
			continue
		}
		deleted++

		if err := batch.Delete(scalarKey(key), nil); err != nil {
			return 0, fmt.Errorf("batching delete: %w", err)
		}
		for _, p := range [][]byte{setPrefix(key), hashPrefix(key)} {
			if err := batch.DeleteRange(p, prefixUpperBound(p), nil); err != nil {
				return 0, fmt.Errorf("batching range delete: %w", err)
			}
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("committing delete: %w", err)
	}
	s.logger.Debug("DEL", "keys", keys, "deleted", deleted)
	return deleted, nil
}

// SAdd adds members to a set and returns how many were new.
func (s *PebbleStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	seen := make(map[string]bool, len(members))
	var added int64
	for _, m := range members {
		if seen[m] {
			continue
		}
		seen[m] = true
		k := append(setPrefix(key), m...)
		_, ok, err := s.get(k)
		if err != nil {
			return 0, fmt.Errorf("reading set member: %w", err)
		}
		if ok {
			continue
		}
		if err := batch.Set(k, nil, nil); err != nil {
			return 0, fmt.Errorf("batching set member: %w", err)
		}
		added++
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("committing sadd: %w", err)
	}
	s.logger.Debug("SADD", "key", key, "added", added)
	return added, nil
}

// SRem removes members from a set and returns how many were present.
func (s *PebbleStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	batch := s.db.NewBatch()
	defer batch.Close()

	seen := make(map[string]bool, len(members))
	var removed int64
	for _, m := range members {
		if seen[m] {
			continue
		}
		seen[m] = true
		k := append(setPrefix(key), m...)
		_, ok, err := s.get(k)
		if err != nil {
			return 0, fmt.Errorf("reading set member: %w", err)
		}
		if !ok {
			continue
		}
		if err := batch.Delete(k, nil); err != nil {
			return 0, fmt.Errorf("batching delete: %w", err)
		}
		removed++
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("committing srem: %w", err)
	}
	return removed, nil
}

// SMembers returns the members of a set in byte order.
func (s *PebbleStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.suffixes(setPrefix(key))
	if err != nil {
		return nil, fmt.Errorf("listing set members: %w", err)
	}
	return members, nil
}

// HGet returns a single hash field.
func (s *PebbleStore) HGet(ctx context.Context, key, field string) (string, error) {
	v, ok, err := s.get(append(hashPrefix(key), field...))
	if err != nil {
		return "", fmt.Errorf("reading hash field: %w", err)
	}
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// HSet writes a single hash field.
func (s *PebbleStore) HSet(ctx context.Context, key, field, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.db.Set(append(hashPrefix(key), field...), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("writing hash field: %w", err)
	}
	s.logger.Debug("HSET", "key", key, "field", field)
	return nil
}

// HSetNX writes a hash field only if it is absent.
func (s *PebbleStore) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	k := append(hashPrefix(key), field...)
	_, ok, err := s.get(k)
	if err != nil {
		return false, fmt.Errorf("reading hash field: %w", err)
	}
	if ok {
		return false, nil
	}
	if err := s.db.Set(k, []byte(value), pebble.Sync); err != nil {
		return false, fmt.Errorf("writing hash field: %w", err)
	}
	return true, nil
}

// HKeys returns the field names of a hash in byte order.
func (s *PebbleStore) HKeys(ctx context.Context, key string) ([]string, error) {
	fields, err := s.suffixes(hashPrefix(key))
	if err != nil {
		return nil, fmt.Errorf("listing hash fields: %w", err)
	}
	return fields, nil
}

// HDel removes hash fields and returns how many existed.
func (s *PebbleStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var removed int64
	for _, f := range fields {
		k := append(hashPrefix(key), f...)
		_, ok, err := s.get(k)
		if err != nil {
			return removed, fmt.Errorf("reading hash field: %w", err)
		}
		if !ok {
			continue
		}
		if err := s.db.Delete(k, pebble.Sync); err != nil {
			return removed, fmt.Errorf("deleting hash field: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Publish delivers payload to subscribers in this process.
func (s *PebbleStore) Publish(ctx context.Context, channel, payload string) (int64, error) {
	return s.bus.Publish(channel, payload), nil
}

// Subscribe attaches to channel until ctx is cancelled or the subscription is closed.
func (s *PebbleStore) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	return s.bus.Subscribe(ctx, channel)
}
