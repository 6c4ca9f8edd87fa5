// ABOUTME: Backend selection for the configured store
// ABOUTME: Maps store.backend onto the memory, SQLite, Pebble or Redis implementation

package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/pairwise/internal/config"
)

// Open creates the backend named by cfg.Backend. subscriberBuffer sizes each
// subscription's delivery queue (<= 0 means DefaultSubscriberBuffer).
func Open(ctx context.Context, cfg config.StoreConfig, subscriberBuffer int, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "", "memory":
		s := NewMemoryStore(logger)
		s.bus = NewBroadcaster(subscriberBuffer, logger)
		return s, nil

	case "sqlite":
		s, err := NewSQLiteStore(cfg.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		s.bus = NewBroadcaster(subscriberBuffer, s.logger)
		return s, nil

	case "pebble":
		s, err := NewPebbleStore(cfg.Pebble.Dir, logger)
		if err != nil {
			return nil, err
		}
		s.bus = NewBroadcaster(subscriberBuffer, s.logger)
		return s, nil

	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:             cfg.Redis.Addr,
			Password:         cfg.Redis.Password,
			DB:               cfg.Redis.DB,
			DialTimeout:      cfg.Redis.DialTimeout,
			SubscriberBuffer: subscriberBuffer,
		}, logger)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
