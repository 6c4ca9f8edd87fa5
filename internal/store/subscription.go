// ABOUTME: Subscription handle returned by Store.Subscribe
// ABOUTME: Caller-owned lifetime: Close or context cancellation ends delivery

package store

import (
	"context"
	"sync"
)

// Subscription is a live attachment to one pub/sub channel.
// Messages are delivered on Messages() until Close is called or the context
// passed to Subscribe is cancelled; the channel is then closed.
type Subscription struct {
	Channel string

	messages <-chan string
	closeFn  func() error
	stop     func() bool
	once     sync.Once
	err      error
}

// newSubscription wires a delivery channel to its teardown. closeFn must close
// the delivery channel (directly or by stopping its producer).
func newSubscription(ctx context.Context, channel string, messages <-chan string, closeFn func() error) *Subscription {
	s := &Subscription{
		Channel:  channel,
		messages: messages,
		closeFn:  closeFn,
	}
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return s
}

// Messages returns the delivery channel. It is closed once the subscription ends.
func (s *Subscription) Messages() <-chan string {
	return s.messages
}

// Close ends the subscription. It is safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.err = s.closeFn()
	})
	return s.err
}
