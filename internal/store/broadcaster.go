// ABOUTME: In-process fan-out pub/sub used by the memory, SQLite and Pebble backends
// ABOUTME: Delivers published payloads to every live subscriber of a channel name

package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultSubscriberBuffer is the channel buffer for each local subscriber.
const DefaultSubscriberBuffer = 64

// Broadcaster provides in-memory pub/sub keyed by channel name.
// Delivery is at-most-once: a subscriber whose buffer is full misses the payload.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan string // channel -> subID -> ch
	bufferSize  int
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default and
// bufferSize <= 0 for DefaultSubscriberBuffer.
func NewBroadcaster(bufferSize int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan string),
		bufferSize:  bufferSize,
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for payloads on the given channel.
// The subscription is cleaned up when ctx is cancelled or it is closed.
func (b *Broadcaster) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	subID := uuid.New().String()
	ch := make(chan string, b.bufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	if _, ok := b.subscribers[channel]; !ok {
		b.subscribers[channel] = make(map[string]chan string)
	}
	b.subscribers[channel][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "channel", channel, "sub_id", subID)

	return newSubscription(ctx, channel, ch, func() error {
		b.unsubscribe(channel, subID)
		return nil
	}), nil
}

// Publish sends a payload to all subscribers of the channel and returns how
// many received it. Never blocks on a slow subscriber.
func (b *Broadcaster) Publish(channel, payload string) int64 {
	// Sends happen under the read lock so unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	var delivered int64
	for subID, ch := range b.subscribers[channel] {
		select {
		case ch <- payload:
			delivered++
		default:
			b.logger.Debug("dropped payload for slow subscriber",
				"channel", channel,
				"sub_id", subID)
		}
	}
	return delivered
}

// unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) unsubscribe(channel, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[channel]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, channel)
	}

	b.logger.Debug("subscriber removed", "channel", channel, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for channel, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, channel)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
