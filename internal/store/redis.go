// ABOUTME: Redis implementation of the Store interface using go-redis
// ABOUTME: Every primitive maps to one Redis command; pub/sub spans processes

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures a connection to a Redis server
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration

	// SubscriberBuffer bounds each subscription's delivery queue.
	SubscriberBuffer int
}

// RedisStore implements the Store interface against a Redis server
type RedisStore struct {
	client     *redis.Client
	bufferSize int
	logger     *slog.Logger
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "backend", "redis")

	bufferSize := opts.SubscriberBuffer
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}

	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}

	logger.Info("Redis store initialized", "addr", opts.Addr, "db", opts.DB)
	return &RedisStore{
		client:     client,
		bufferSize: bufferSize,
		logger:     logger,
	}, nil
}

// Close closes the client connection pool
func (s *RedisStore) Close() error {
	s.logger.Info("closing Redis store")
	return s.client.Close()
}

// Get returns the scalar at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("GET %s: %w", key, err)
	}
	return v, nil
}

// Set stores a scalar with no expiry.
func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("SET %s: %w", key, err)
	}
	return nil
}

// SetNX stores a scalar only if the key is absent.
func (s *RedisStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("SETNX %s: %w", key, err)
	}
	return ok, nil
}

// Del removes keys and returns how many existed.
func (s *RedisStore) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("DEL: %w", err)
	}
	return n, nil
}

// SAdd adds members to a set and returns how many were new.
func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	n, err := s.client.SAdd(ctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, fmt.Errorf("SADD %s: %w", key, err)
	}
	return n, nil
}

// SRem removes members from a set and returns how many were present.
func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	n, err := s.client.SRem(ctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, fmt.Errorf("SREM %s: %w", key, err)
	}
	return n, nil
}

// SMembers returns the members of a set, sorted.
func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("SMEMBERS %s: %w", key, err)
	}
	if members == nil {
		members = []string{}
	}
	sort.Strings(members)
	return members, nil
}

// HGet returns a single hash field.
func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("HGET %s %s: %w", key, field, err)
	}
	return v, nil
}

// HSet writes a single hash field.
func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	if err := s.client.HSet(ctx, key, field, value).Err(); err != nil {
		return fmt.Errorf("HSET %s %s: %w", key, field, err)
	}
	return nil
}

// HSetNX writes a hash field only if it is absent.
func (s *RedisStore) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	ok, err := s.client.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return false, fmt.Errorf("HSETNX %s %s: %w", key, field, err)
	}
	return ok, nil
}

// HKeys returns the field names of a hash, sorted.
func (s *RedisStore) HKeys(ctx context.Context, key string) ([]string, error) {
	fields, err := s.client.HKeys(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("HKEYS %s: %w", key, err)
	}
	if fields == nil {
		fields = []string{}
	}
	sort.Strings(fields)
	return fields, nil
}

// HDel removes hash fields and returns how many existed.
func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := s.client.HDel(ctx, key, fields...).Result()
	if err != nil {
		return 0, fmt.Errorf("HDEL %s: %w", key, err)
	}
	return n, nil
}

// Publish sends payload on channel and returns the server's receiver count.
func (s *RedisStore) Publish(ctx context.Context, channel, payload string) (int64, error) {
	n, err := s.client.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, fmt.Errorf("PUBLISH %s: %w", channel, err)
	}
	return n, nil
}

// Subscribe attaches to channel. It returns once the server has confirmed the
// subscription, so a Publish issued afterwards is observed.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("SUBSCRIBE %s: %w", channel, err)
	}

	out := make(chan string, s.bufferSize)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- msg.Payload:
			default:
				s.logger.Debug("dropped payload for slow subscriber", "channel", channel)
			}
		}
	}()

	s.logger.Debug("subscribed", "channel", channel)
	return newSubscription(ctx, channel, out, ps.Close), nil
}

func toArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
