// ABOUTME: Entry point for the pairwise messenger CLI
// ABOUTME: Builds the cobra command tree and runs it under a signal-aware context

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

// newRootCommand builds the command tree. open creates the store for each
// invocation and logOut receives log output. The returned func closes the
// store opened by the invocation, if any.
func newRootCommand(open storeOpener, logOut io.Writer) (*cobra.Command, func() error) {
	opts := &globalOptions{}
	var a *app

	cmd := &cobra.Command{
		Use:           "pairwise",
		Short:         "Two-party messaging over Redis-style storage",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example: `  pairwise bootstrap
  pairwise --as Super:super users add Advanced:alice
  pairwise --as Advanced:alice send Simple:bob "hi"
  pairwise --as Simple:bob history Advanced:alice
  pairwise --as Advanced:alice chat Simple:bob`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			a, err = newApp(cmd.Context(), opts, open, logOut)
			return err
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Config file (default: $PAIRWISE_CONFIG or ~/.config/pairwise/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.as, "as", "",
		"Acting user as Role:name (default: $PAIRWISE_AS)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"Override logging.level (debug, info, warn, error)")

	get := func() *app { return a }
	cmd.AddCommand(
		newBootstrapCommand(get),
		newUsersCommand(get),
		newSendCommand(get),
		newHistoryCommand(get),
		newChatCommand(get),
		newExportCommand(get),
		newCommandsCommand(get),
	)

	closeApp := func() error {
		if a == nil {
			return nil
		}
		err := a.Close()
		a = nil
		return err
	}
	return cmd, closeApp
}

// execute runs cmd and then closes the store, including when the command failed.
func execute(ctx context.Context, cmd *cobra.Command, closeApp func() error) error {
	err := cmd.ExecuteContext(ctx)
	if cerr := closeApp(); cerr != nil && err == nil {
		err = fmt.Errorf("closing store: %w", cerr)
	}
	return err
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, closeApp := newRootCommand(openConfiguredStore, os.Stderr)
	if err := execute(ctx, cmd, closeApp); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}
