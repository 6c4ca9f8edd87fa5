// ABOUTME: Per-invocation wiring for the pairwise CLI: config, logger, store, directory and messenger
// ABOUTME: Also resolves the acting user and enforces role capabilities per command

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/2389/pairwise/internal/apperr"
	"github.com/2389/pairwise/internal/config"
	"github.com/2389/pairwise/internal/conversation"
	"github.com/2389/pairwise/internal/directory"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/keyspace"
	"github.com/2389/pairwise/internal/logging"
	"github.com/2389/pairwise/internal/store"
)

// storeOpener creates the backing store. Tests substitute a shared in-memory store.
type storeOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error)

func openConfiguredStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	return store.Open(ctx, cfg.Store, cfg.Chat.SubscriberBuffer, logger)
}

// globalOptions are the persistent root flags.
type globalOptions struct {
	configPath string
	as         string
	logLevel   string
}

// app holds everything a command needs for one invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	keys      keyspace.KeySpace
	store     store.Store
	registry  *prometheus.Registry
	dir       *directory.Directory
	messenger *conversation.Messenger
	as        string
}

func newApp(ctx context.Context, opts *globalOptions, open storeOpener, logOut io.Writer) (*app, error) {
	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger := logging.New(cfg.Logging, logOut)
	keys := keysFromConfig(cfg.Keys)

	st, err := open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Backend, err)
	}

	var registry *prometheus.Registry
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		st = store.Instrument(st, registry)
	}

	dir := directory.New(st, keys, logger)
	as := opts.as
	if as == "" {
		as = os.Getenv("PAIRWISE_AS")
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		keys:      keys,
		store:     st,
		registry:  registry,
		dir:       dir,
		messenger: conversation.New(st, dir, keys, logger),
		as:        as,
	}, nil
}

func keysFromConfig(c config.KeysConfig) keyspace.KeySpace {
	return keyspace.KeySpace{
		UserPrefix:     c.UserPrefix,
		MessagesPrefix: c.MessagesPrefix,
		ChatPrefix:     c.ChatPrefix,
		HashPrefix:     c.HashPrefix,
		UsersKey:       c.UsersKey,
	}
}

func (a *app) Close() error {
	return a.store.Close()
}

// currentUser returns the registered user named by --as, or ok=false if none was given.
func (a *app) currentUser(ctx context.Context) (identity.User, bool, error) {
	if a.as == "" {
		return identity.User{}, false, nil
	}
	u, err := identity.ParseUser(a.as)
	if err != nil {
		return identity.User{}, false, apperr.Invalid("cli", err.Error())
	}
	exists, err := a.dir.Exists(ctx, a.keys.UserKey(u))
	if err != nil {
		return identity.User{}, false, err
	}
	if !exists {
		return identity.User{}, false, apperr.Missing("cli", "acting user "+a.keys.UserKey(u)+" is not registered")
	}
	return u, true, nil
}

// requireUser returns the acting user and checks it holds capability.
func (a *app) requireUser(ctx context.Context, capability identity.Capability) (identity.User, error) {
	u, ok, err := a.currentUser(ctx)
	if err != nil {
		return identity.User{}, err
	}
	if !ok {
		return identity.User{}, fmt.Errorf("this command needs an acting user: pass --as Role:name or set PAIRWISE_AS")
	}
	if !u.Can(capability) {
		return identity.User{}, fmt.Errorf("%s users cannot %s", u.Role, capability)
	}
	return u, nil
}

// contact parses a Role:name argument and checks it is registered.
func (a *app) contact(ctx context.Context, arg string) (identity.User, error) {
	u, err := identity.ParseUser(arg)
	if err != nil {
		return identity.User{}, apperr.Invalid("cli", err.Error())
	}
	exists, err := a.dir.Exists(ctx, a.keys.UserKey(u))
	if err != nil {
		return identity.User{}, err
	}
	if !exists {
		return identity.User{}, apperr.Missing("cli", "user "+a.keys.UserKey(u)+" is not registered")
	}
	return u, nil
}
