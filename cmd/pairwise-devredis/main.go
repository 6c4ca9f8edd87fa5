// ABOUTME: Runs an in-process Redis-compatible server for local development of the redis backend
// ABOUTME: Data lives in memory and is gone when the process exits

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// serve runs miniredis on addr until ctx is done. ready receives the bound
// address once the server accepts connections.
func serve(ctx context.Context, addr string, ready func(addr string)) error {
	srv := miniredis.NewMiniRedis()
	if err := srv.StartAddr(addr); err != nil {
		return fmt.Errorf("starting server on %s: %w", addr, err)
	}
	defer srv.Close()

	slog.Info("devredis listening", "addr", srv.Addr())
	if ready != nil {
		ready(srv.Addr())
	}

	<-ctx.Done()
	slog.Info("devredis shutting down")
	return nil
}

func newRootCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:          "pairwise-devredis",
		Short:        "Serve a throwaway Redis-compatible store for pairwise",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), addr, func(bound string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Point pairwise at it with %s\n",
					color.CyanString("PAIRWISE_STORE_BACKEND=redis PAIRWISE_REDIS_ADDR=%s", bound))
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:6379", "Listen address")
	return cmd
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}
