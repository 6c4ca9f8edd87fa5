// ABOUTME: Interactive chat: a readline prompt for sending plus a live relay of the pair's channel
// ABOUTME: The session's own messages are suppressed when the channel echoes them back

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/2389/pairwise/internal/conversation"
	"github.com/2389/pairwise/internal/dedupe"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/store"
)

// chatSession is one user's live conversation with a contact.
type chatSession struct {
	self      identity.User
	other     identity.User
	canWrite  bool
	messenger *conversation.Messenger
	echoes    *dedupe.EchoFilter
	logger    *slog.Logger
}

func newChatCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat Role:name",
		Short: "Live chat with a contact (needs read; sending needs write)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			self, err := a.requireUser(ctx, identity.CapRead)
			if err != nil {
				return err
			}
			other, err := a.contact(ctx, args[0])
			if err != nil {
				return err
			}

			if a.cfg.Metrics.Enabled && a.registry != nil {
				stop := serveMetrics(a.cfg.Metrics.Addr, a.cfg.Metrics.Path, a.registry, a.logger)
				defer stop()
			}

			session := &chatSession{
				self:      self,
				other:     other,
				canWrite:  self.Can(identity.CapWrite),
				messenger: a.messenger,
				echoes:    dedupe.NewEchoFilter(a.cfg.Chat.EchoTTL, 0),
				logger:    a.logger.With("component", "chat"),
			}
			defer session.echoes.Close()

			return session.run(ctx)
		},
	}
}

// run subscribes before prompting so nothing sent after the prompt appears is missed.
func (s *chatSession) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := s.messenger.Subscribe(ctx, s.self, s.other)
	if err != nil {
		return err
	}
	defer sub.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          color.CyanString("%s> ", s.self.Name),
		HistoryFile:     filepath.Join(os.TempDir(), ".pairwise_history"),
		HistoryLimit:    200,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()
	stopClose := context.AfterFunc(ctx, func() { _ = rl.Close() })
	defer stopClose()

	out := rl.Stdout()
	fmt.Fprintf(out, "Chatting with %s. /history shows past messages, /quit leaves.\n", color.MagentaString(s.other.String()))
	if !s.canWrite {
		fmt.Fprintln(out, color.YellowString("%s users are read-only here.", s.self.Role))
	}

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		s.relay(sub, out)
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) || ctx.Err() != nil {
				fmt.Fprintln(out, "Goodbye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}
		quit, err := s.handleLine(ctx, line, out)
		if err != nil {
			fmt.Fprintln(out, color.RedString("Error: %v", err))
		}
		if quit {
			break
		}
	}

	cancel()
	<-relayDone
	return nil
}

// handleLine processes one line of input and reports whether the session should end.
func (s *chatSession) handleLine(ctx context.Context, line string, out io.Writer) (bool, error) {
	text := strings.TrimSpace(line)
	switch text {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/history":
		msgs, err := s.messenger.History(ctx, s.self, s.other)
		if err != nil {
			return false, err
		}
		for _, m := range msgs {
			printMessage(out, s.self, m.From, m.Text, m.CreatedAt)
		}
		return false, nil
	}

	if !s.canWrite {
		return false, fmt.Errorf("%s users cannot %s", s.self.Role, identity.CapWrite)
	}
	return false, s.send(ctx, text)
}

// send publishes text, registering the exact payload with the echo filter first.
func (s *chatSession) send(ctx context.Context, text string) error {
	msg := s.messenger.Compose(s.self, s.other, text)
	payload, err := msg.Encode()
	if err != nil {
		return err
	}
	s.echoes.Expect(payload)
	return s.messenger.Deliver(ctx, msg)
}

// relay prints messages arriving on sub until it ends, skipping this session's own echoes.
func (s *chatSession) relay(sub *store.Subscription, out io.Writer) {
	for payload := range sub.Messages() {
		if s.echoes.Suppress(payload) {
			continue
		}
		msg, err := conversation.DecodeMessage(payload)
		if err != nil {
			s.logger.Warn("skipping undecodable payload", "channel", sub.Channel, "error", err)
			continue
		}
		printMessage(out, s.self, msg.From, msg.Text, msg.CreatedAt)
	}
}

// serveMetrics exposes reg on addr+path until the returned stop func is called.
func serveMetrics(addr, path string, reg *prometheus.Registry, logger *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "addr", addr, "path", path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
