// ABOUTME: Messenger ties the archive and the live channel together for send, history and listen
// ABOUTME: A send is two separate steps: append to the archive, then publish on the channel

package conversation

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/2389/pairwise/internal/apperr"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/keyspace"
	"github.com/2389/pairwise/internal/store"
)

// Messenger is the entry point for exchanging messages between two users.
type Messenger struct {
	resolver *Resolver
	archive  *Archive
	bus      *ChannelBus
	now      func() time.Time
	logger   *slog.Logger
}

// New wires a Messenger over s. users is consulted to reject unknown recipients.
func New(s store.Store, users UserChecker, keys keyspace.KeySpace, logger *slog.Logger) *Messenger {
	if logger == nil {
		logger = slog.Default()
	}
	resolver := NewResolver(s, keys, logger)
	return &Messenger{
		resolver: resolver,
		archive:  NewArchive(s, users, resolver, keys),
		bus:      NewChannelBus(s, resolver, keys, logger),
		now:      time.Now,
		logger:   logger.With("component", "messenger"),
	}
}

// Resolver exposes the key resolver shared by the archive and the bus.
func (m *Messenger) Resolver() *Resolver {
	return m.resolver
}

// Compose builds a message stamped with the current time without sending it.
func (m *Messenger) Compose(from, to identity.User, text string) *Message {
	return &Message{
		Text:      text,
		From:      from,
		To:        to,
		CreatedAt: m.now().UTC(),
	}
}

// Send archives a new message from one user to another and publishes it on
// their live channel.
func (m *Messenger) Send(ctx context.Context, from, to identity.User, text string) (*Message, error) {
	msg := m.Compose(from, to, text)
	if err := m.Deliver(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Deliver appends msg to the pair's archive, then publishes it on the pair's
// channel. The two steps are not atomic: if publishing fails the message
// stays archived and the error is returned.
func (m *Messenger) Deliver(ctx context.Context, msg *Message) error {
	if err := m.archive.Append(ctx, msg); err != nil {
		return err
	}

	receivers, err := m.bus.Publish(ctx, msg)
	if err != nil {
		return err
	}

	m.logger.Debug("message sent",
		"from", msg.From.String(),
		"to", msg.To.String(),
		"receivers", receivers)
	return nil
}

// History returns every archived message between a and b, oldest first.
func (m *Messenger) History(ctx context.Context, a, b identity.User) ([]*Message, error) {
	raw, err := m.archive.ReadAll(ctx, a, b)
	if err != nil {
		return nil, err
	}

	msgs := make([]*Message, 0, len(raw))
	for _, payload := range raw {
		msg, err := DecodeMessage(payload)
		if err != nil {
			return nil, apperr.StoreFailure("messenger.History", err)
		}
		msgs = append(msgs, msg)
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// RawHistory returns the archive of {a, b} as stored, in no particular order.
func (m *Messenger) RawHistory(ctx context.Context, a, b identity.User) ([]string, error) {
	return m.archive.ReadAll(ctx, a, b)
}

// Subscribe attaches self to the live channel shared with other.
func (m *Messenger) Subscribe(ctx context.Context, self, other identity.User) (*store.Subscription, error) {
	return m.bus.Subscribe(ctx, self, other)
}

// Listen relays live messages between self and other to fn until ctx is cancelled.
func (m *Messenger) Listen(ctx context.Context, self, other identity.User, fn func(*Message)) error {
	return m.bus.Listen(ctx, self, other, fn)
}
