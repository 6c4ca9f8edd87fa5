// Package store provides the key-value primitives pairwise is built on.
//
// # Architecture
//
// Store is a deliberately small contract modelled on Redis: scalars, sets,
// hashes and pub/sub channels. Every primitive touches exactly one key and is
// atomic on its own; there are no multi-key transactions. Higher layers build
// conflict-free schemes (SETNX claims, idempotent HSET) on top.
//
// Implementations:
//
//   - MemoryStore: maps guarded by a mutex, for tests and single-process use
//   - SQLiteStore: kv, set_members and hash_fields tables (modernc.org/sqlite)
//   - PebbleStore: prefix-encoded keys in a Pebble LSM
//   - RedisStore: one Redis command per primitive (go-redis)
//
// Open picks one by the configured backend name. InstrumentedStore wraps any of
// them with Prometheus counters and latency histograms.
//
// # Pub/Sub
//
// Subscribe returns a Subscription whose Messages channel is closed when the
// subscription ends, either by Close or by cancelling the context it was
// created with. Delivery is at-most-once: payloads published while nobody is
// subscribed are lost, and a subscriber whose buffer is full misses payloads.
//
// MemoryStore, SQLiteStore and PebbleStore share the in-process Broadcaster,
// so their channels only reach subscribers in the same process. RedisStore
// channels reach every process connected to the server.
//
// # Errors
//
// Get and HGet return ErrNotFound for absent values. SMembers and HKeys return
// an empty slice for absent keys. Operations on a closed MemoryStore return
// ErrClosed.
package store
