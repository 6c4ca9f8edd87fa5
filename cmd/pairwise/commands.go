// ABOUTME: Cobra subcommands for user management, sending, history, export and command listing
// ABOUTME: Each command declares the capability its acting user needs

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/pairwise/internal/directory"
	"github.com/2389/pairwise/internal/export"
	"github.com/2389/pairwise/internal/identity"
)

// commandInfo describes one command for the capability table.
type commandInfo struct {
	Name  string
	Short string
	Needs identity.Capability // empty: available to anyone
}

var commandTable = []commandInfo{
	{Name: "bootstrap", Short: "Create the first Super user"},
	{Name: "users list", Short: "List registered users"},
	{Name: "users add", Short: "Register a user", Needs: identity.CapCreateUser},
	{Name: "users delete", Short: "Delete a user", Needs: identity.CapDeleteUser},
	{Name: "send", Short: "Send a message", Needs: identity.CapWrite},
	{Name: "history", Short: "Show a conversation", Needs: identity.CapRead},
	{Name: "chat", Short: "Live chat with a contact", Needs: identity.CapRead},
	{Name: "export", Short: "Write a conversation to a file", Needs: identity.CapUpload},
	{Name: "commands", Short: "List the commands available to you"},
}

// enabledCommands returns the commands open to u (nil: no acting user).
// Registering users is open to anyone while the directory is empty.
func enabledCommands(u *identity.User, directoryEmpty bool) []commandInfo {
	var out []commandInfo
	for _, c := range commandTable {
		switch {
		case c.Needs == "":
			out = append(out, c)
		case u != nil && u.Can(c.Needs):
			out = append(out, c)
		case c.Needs == identity.CapCreateUser && directoryEmpty:
			out = append(out, c)
		}
	}
	return out
}

func newBootstrapCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the Super:super user if no users exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			created, err := a.dir.Bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if created {
				fmt.Fprintf(out, "%s created %s\n", color.GreenString("✓"), a.keys.UserKey(directory.BootstrapUser))
			} else {
				fmt.Fprintln(out, "users already exist; nothing to do")
			}
			return nil
		},
	}
}

func newUsersCommand(get func() *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage registered users",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			keys, err := a.dir.ListKeys(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(keys) == 0 {
				fmt.Fprintln(out, "no users registered (run: pairwise bootstrap)")
				return nil
			}
			for _, key := range keys {
				rec, err := a.dir.Get(cmd.Context(), key)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%-10s %-24s %s\n", rec.Role, rec.Name, color.HiBlackString(rec.CreatedAt.Local().Format(time.DateTime)))
			}
			return nil
		},
	}

	add := &cobra.Command{
		Use:   "add Role:name",
		Short: "Register a user (needs create-user unless no users exist)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			keys, err := a.dir.ListKeys(ctx)
			if err != nil {
				return err
			}
			if len(keys) > 0 {
				if _, err := a.requireUser(ctx, identity.CapCreateUser); err != nil {
					return err
				}
			}

			u, err := identity.ParseUser(args[0])
			if err != nil {
				return err
			}
			if _, err := a.dir.Register(ctx, u); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s registered %s\n", color.GreenString("✓"), a.keys.UserKey(u))
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete Role:name",
		Short: "Delete a user (needs delete-user)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			if _, err := a.requireUser(ctx, identity.CapDeleteUser); err != nil {
				return err
			}
			u, err := identity.ParseUser(args[0])
			if err != nil {
				return err
			}
			if err := a.dir.Delete(ctx, a.keys.UserKey(u)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted %s\n", color.GreenString("✓"), a.keys.UserKey(u))
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func newSendCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send Role:name message...",
		Short: "Send a message (needs write)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			self, err := a.requireUser(ctx, identity.CapWrite)
			if err != nil {
				return err
			}
			to, err := identity.ParseUser(args[0])
			if err != nil {
				return err
			}
			msg, err := a.messenger.Send(ctx, self, to, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s sent to %s at %s\n",
				color.GreenString("✓"), to, msg.CreatedAt.Local().Format(time.TimeOnly))
			return nil
		},
	}
}

func newHistoryCommand(get func() *app) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "history Role:name",
		Short: "Show the conversation with a contact (needs read)",
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

			out := cmd.OutOrStdout()
			if raw {
				lines, err := a.messenger.RawHistory(ctx, self, other)
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				return nil
			}

			msgs, err := a.messenger.History(ctx, self, other)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Fprintln(out, "no messages yet")
				return nil
			}
			for _, m := range msgs {
				printMessage(out, self, m.From, m.Text, m.CreatedAt)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print archived entries exactly as stored")
	return cmd
}

func newExportCommand(get func() *app) *cobra.Command {
	var dir, format string

	cmd := &cobra.Command{
		Use:   "export Role:name",
		Short: "Write the conversation with a contact to a file (needs upload)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			ctx := cmd.Context()

			self, err := a.requireUser(ctx, identity.CapUpload)
			if err != nil {
				return err
			}
			other, err := a.contact(ctx, args[0])
			if err != nil {
				return err
			}

			if dir == "" {
				dir = a.cfg.Export.Dir
			}
			if format == "" {
				format = a.cfg.Export.Format
			}
			exporter, err := export.New(dir, format, a.logger)
			if err != nil {
				return err
			}

			msgs, err := a.messenger.History(ctx, self, other)
			if err != nil {
				return err
			}
			path, err := exporter.Write(self, other, msgs, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s wrote %d messages to %s\n", color.GreenString("✓"), len(msgs), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Output directory (default: export.dir)")
	cmd.Flags().StringVar(&format, "format", "", "Output format: text or html (default: export.format)")
	return cmd
}

func newCommandsCommand(get func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands available to the acting user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := get()
			ctx := cmd.Context()

			u, ok, err := a.currentUser(ctx)
			if err != nil {
				return err
			}
			keys, err := a.dir.ListKeys(ctx)
			if err != nil {
				return err
			}

			var who *identity.User
			out := cmd.OutOrStdout()
			if ok {
				who = &u
				fmt.Fprintf(out, "%s %s %s\n", color.CyanString("Acting as"), u, color.HiBlackString(u.Role.Capabilities().String()))
			} else {
				fmt.Fprintln(out, color.CyanString("No acting user"))
			}
			for _, c := range enabledCommands(who, len(keys) == 0) {
				fmt.Fprintf(out, "  %-14s %s\n", c.Name, c.Short)
			}
			return nil
		},
	}
}

// printMessage writes one conversation line, labelling self's messages "you".
func printMessage(w io.Writer, self, from identity.User, text string, at time.Time) {
	who := color.MagentaString(from.Name)
	if from == self {
		who = color.CyanString("you")
	}
	fmt.Fprintf(w, "%s %s: %s\n", color.HiBlackString(at.Local().Format(time.DateTime)), who, text)
}
