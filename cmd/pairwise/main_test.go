// ABOUTME: End-to-end tests for the pairwise CLI over a shared in-memory store
// ABOUTME: Each invocation builds a fresh command tree, as separate processes would

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/pairwise/internal/config"
	"github.com/2389/pairwise/internal/identity"
	"github.com/2389/pairwise/internal/store"
)

// sharedStore keeps the memory store alive across invocations.
type sharedStore struct{ store.Store }

func (sharedStore) Close() error { return nil }

type cli struct {
	t       *testing.T
	store   *store.MemoryStore
	cfgPath string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("PAIRWISE_AS", "")
	t.Setenv("PAIRWISE_CONFIG", "")

	s := store.NewMemoryStore(nil)
	t.Cleanup(func() { _ = s.Close() })

	return &cli{
		t:       t,
		store:   s,
		cfgPath: filepath.Join(t.TempDir(), "missing.yaml"),
	}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	open := func(context.Context, *config.Config, *slog.Logger) (store.Store, error) {
		return sharedStore{c.store}, nil
	}
	return c.runWith(open, args...)
}

func (c *cli) runWith(open storeOpener, args ...string) (string, error) {
	c.t.Helper()
	cmd, closeApp := newRootCommand(open, io.Discard)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", c.cfgPath}, args...))
	err := execute(context.Background(), cmd, closeApp)
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, "pairwise %s", strings.Join(args, " "))
	return out
}

// withUsers bootstraps and registers alice (Advanced) and bob (Simple).
func (c *cli) withUsers() {
	c.t.Helper()
	c.mustRun("bootstrap")
	c.mustRun("--as", "Super:super", "users", "add", "Advanced:alice")
	c.mustRun("--as", "Super:super", "users", "add", "Simple:bob")
}

// countingStore records how often the CLI closes it.
type countingStore struct {
	store.Store
	closes *atomic.Int32
}

func (s countingStore) Close() error {
	s.closes.Add(1)
	return nil
}

func TestStoreClosedAfterEveryCommand(t *testing.T) {
	c := newCLI(t)
	c.withUsers()

	var closes atomic.Int32
	open := func(context.Context, *config.Config, *slog.Logger) (store.Store, error) {
		return countingStore{Store: c.store, closes: &closes}, nil
	}

	_, err := c.runWith(open, "--as", "Advanced:alice", "history", "Simple:bob")
	require.NoError(t, err)
	assert.Equal(t, int32(1), closes.Load())

	_, err = c.runWith(open, "--as", "Advanced:alice", "send", "Simple:nobody", "hello")
	require.Error(t, err)
	assert.Equal(t, int32(2), closes.Load(), "a failing command still closes the store")
}

func TestUsersAdd_RejectsColonInName(t *testing.T) {
	c := newCLI(t)

	_, err := c.run("users", "add", "Simple:y:user:Simple:z")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not contain ':'")

	out := c.mustRun("users", "list")
	assert.Contains(t, out, "no users registered")
}

func TestBootstrap(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("bootstrap")
	assert.Contains(t, out, "created user:Super:super")

	out = c.mustRun("bootstrap")
	assert.Contains(t, out, "nothing to do")
}

func TestUsersAdd_OpenWhileEmpty(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("users", "add", "Advanced:alice")
	assert.Contains(t, out, "registered user:Advanced:alice")

	_, err := c.run("users", "add", "Simple:bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs an acting user")
}

func TestUsersAdd_RequiresCreateUser(t *testing.T) {
	c := newCLI(t)
	c.withUsers()

	_, err := c.run("--as", "Advanced:alice", "users", "add", "Simple:dave")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Advanced users cannot create-user")

	_, err = c.run("--as", "Super:super", "users", "add", "Advanced:alice")
	require.Error(t, err)
}

func TestUsersListAndDelete(t *testing.T) {
	c := newCLI(t)
	c.withUsers()

	out := c.mustRun("users", "list")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "super")

	_, err := c.run("--as", "Simple:bob", "users", "delete", "Advanced:alice")
	require.Error(t, err)

	c.mustRun("--as", "Super:super", "users", "delete", "Advanced:alice")
	out = c.mustRun("users", "list")
	assert.NotContains(t, out, "alice")
}

func TestSendAndHistory(t *testing.T) {
	c := newCLI(t)
	c.withUsers()

	out := c.mustRun("--as", "Advanced:alice", "send", "Simple:bob", "hi", "there")
	assert.Contains(t, out, "sent to Simple:bob")

	out = c.mustRun("--as", "Simple:bob", "history", "Advanced:alice")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "hi there")

	out = c.mustRun("--as", "Advanced:alice", "history", "--raw", "Simple:bob")
	assert.Contains(t, out, `"text":"hi there"`)
}

func TestSend_RequiresWrite(t *testing.T) {
	c := newCLI(t)
	c.withUsers()

	_, err := c.run("--as", "Simple:bob", "send", "Advanced:alice", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Simple users cannot write")
}

func TestSend_UnknownRecipient(t *testing.T) {
	c := newCLI(t)
	c.withUsers()

	_, err := c.run("--as", "Advanced:alice", "send", "Simple:nobody", "hello")
	require.Error(t, err)

	out := c.mustRun("--as", "Advanced:alice", "history", "Simple:bob")
	assert.Contains(t, out, "no messages yet")
}

func TestActingUserMustBeRegistered(t *testing.T) {
	c := newCLI(t)
	c.withUsers()

	_, err := c.run("--as", "Advanced:mallory", "history", "Simple:bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	t.Setenv("PAIRWISE_AS", "Advanced:alice")
	c.mustRun("history", "Simple:bob")
}

func TestExport(t *testing.T) {
	c := newCLI(t)
	c.withUsers()
	c.mustRun("--as", "Advanced:alice", "send", "Simple:bob", "first")
	c.mustRun("--as", "Advanced:alice", "send", "Simple:bob", "second")

	dir := t.TempDir()
	out := c.mustRun("--as", "Advanced:alice", "export", "--dir", dir, "--format", "html", "Simple:bob")
	assert.Contains(t, out, "wrote 2 messages")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "alice_bob_"))
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".html"))

	_, err = c.run("--as", "Simple:bob", "export", "--dir", dir, "Advanced:alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Simple users cannot upload")
}

func TestCommandsCommand(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("commands")
	assert.Contains(t, out, "No acting user")
	assert.Contains(t, out, "users add")

	c.withUsers()

	out = c.mustRun("commands")
	assert.NotContains(t, out, "users add")

	out = c.mustRun("--as", "Simple:bob", "commands")
	assert.Contains(t, out, "history")
	assert.NotContains(t, out, "send")
	assert.NotContains(t, out, "export")
}

func TestEnabledCommands(t *testing.T) {
	names := func(cmds []commandInfo) []string {
		var out []string
		for _, c := range cmds {
			out = append(out, c.Name)
		}
		return out
	}

	super := identity.User{Role: identity.RoleSuper, Name: "root"}
	assert.Len(t, enabledCommands(&super, false), len(commandTable))

	advanced := identity.User{Role: identity.RoleAdvanced, Name: "alice"}
	got := names(enabledCommands(&advanced, false))
	assert.Contains(t, got, "send")
	assert.Contains(t, got, "export")
	assert.NotContains(t, got, "users add")
	assert.NotContains(t, got, "users delete")

	assert.Contains(t, names(enabledCommands(nil, true)), "users add")
	assert.NotContains(t, names(enabledCommands(nil, false)), "users add")
}
