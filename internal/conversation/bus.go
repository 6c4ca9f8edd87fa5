// ABOUTME: ChannelBus publishes messages on a pair's live channel and relays them to listeners
// ABOUTME: Delivery is at-most-once; nothing published before a subscription is replayed

package conversation

import (
	"context"
	"log/slog"

	"github.com/2389/pairwise/internal/apperr"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/keyspace"
	"github.com/2389/pairwise/internal/store"
)

// BusStore defines what the channel bus needs from storage
type BusStore interface {
	Publish(ctx context.Context, channel, payload string) (int64, error)
	Subscribe(ctx context.Context, channel string) (*store.Subscription, error)
}

// ChannelBus fans messages out to whoever is listening on a pair's channel.
type ChannelBus struct {
	store    BusStore
	resolver *Resolver
	keys     keyspace.KeySpace
	logger   *slog.Logger
}

// NewChannelBus creates a ChannelBus. Pass nil logger for default.
func NewChannelBus(s BusStore, resolver *Resolver, keys keyspace.KeySpace, logger *slog.Logger) *ChannelBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelBus{
		store:    s,
		resolver: resolver,
		keys:     keys,
		logger:   logger.With("component", "channel_bus"),
	}
}

// Publish sends msg on the channel shared by msg.From and msg.To and returns
// how many subscribers received it.
func (b *ChannelBus) Publish(ctx context.Context, msg *Message) (int64, error) {
	const op = "bus.Publish"

	channel, err := b.resolver.Resolve(ctx, b.keys.UserKey(msg.From), b.keys.UserKey(msg.To), keyspace.Channel)
	if err != nil {
		return 0, err
	}
	payload, err := msg.Encode()
	if err != nil {
		return 0, apperr.StoreFailure(op, err)
	}
	n, err := b.store.Publish(ctx, channel, payload)
	if err != nil {
		return 0, apperr.StoreFailure(op, err)
	}
	return n, nil
}

// Subscribe attaches to the channel of {userA, userB}. The caller owns the
// subscription and ends it with Close or by cancelling ctx.
func (b *ChannelBus) Subscribe(ctx context.Context, userA, userB identity.User) (*store.Subscription, error) {
	channel, err := b.resolver.Resolve(ctx, b.keys.UserKey(userA), b.keys.UserKey(userB), keyspace.Channel)
	if err != nil {
		return nil, err
	}
	sub, err := b.store.Subscribe(ctx, channel)
	if err != nil {
		return nil, apperr.StoreFailure("bus.Subscribe", err)
	}
	return sub, nil
}

// Listen subscribes as userA to the channel shared with userB and calls fn for
// every message until ctx is cancelled. It returns ctx.Err() on cancellation
// and nil if the store ends the subscription.
func (b *ChannelBus) Listen(ctx context.Context, userA, userB identity.User, fn func(*Message)) error {
	sub, err := b.Subscribe(ctx, userA, userB)
	if err != nil {
		return err
	}
	defer sub.Close()

	b.logger.Debug("listening", "channel", sub.Channel, "user", userA.String())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return nil
			}
			msg, err := DecodeMessage(payload)
			if err != nil {
				b.logger.Warn("skipping undecodable payload", "channel", sub.Channel, "error", err)
				continue
			}
			fn(msg)
		}
	}
}
