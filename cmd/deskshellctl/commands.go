package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"deskshell/internal/ipc"
	"deskshell/internal/notifier"
)

var (
	socketPath string
	timeout    time.Duration
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "deskshellctl",
		Short:         "Control a running deskshelld",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&socketPath, "socket", "", "daemon socket (default: $XDG_RUNTIME_DIR/deskshell.sock)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")

	root.AddCommand(
		notifyCmd(),
		testCmd(),
		enabledCmd(),
		statusCmd(),
		queueCmd(),
		updatesCmd(),
		visitCmd(),
		settingsCmd(),
	)
	return root
}

func client() *ipc.Client { return ipc.NewClient(socketPath, timeout) }

// callCtx allows wait=true requests to outlive the dial timeout.
func callCtx(cmd *cobra.Command, wait bool) (context.Context, context.CancelFunc) {
	d := timeout
	if wait {
		d += 2 * time.Minute
	}
	return context.WithTimeout(cmd.Context(), d)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func notifyCmd() *cobra.Command {
	var (
		kind string
		p    notifier.Payload
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Show a notification",
		Example: `  deskshellctl notify --kind mention --creator Ana --target "Roadmap" --url https://app.example.com/t/1
  deskshellctl notify --creator Ana --message "shared a file" --target "Q3 plan" --wait`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx(cmd, wait)
			defer cancel()
			out, err := client().ShowNotification(ctx, kind, p, wait)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	f := cmd.Flags()
	f.StringVar(&kind, "kind", string(notifier.KindGeneric), "new-comment, mention, reply, task-assigned, task-status or generic")
	f.StringVar(&p.Creator, "creator", "", "who triggered the event")
	f.StringVar(&p.Message, "message", "", "action text (generic only)")
	f.StringVar(&p.Target, "target", "", "what the event is about")
	f.StringVar(&p.Info, "info", "", "extra detail (generic only)")
	f.StringVar(&p.Status, "status", "", "new status (task-status only)")
	f.StringVar(&p.URL, "url", "", "page to open on click")
	f.StringVar(&p.Icon, "icon", "", "icon path or name")
	f.BoolVar(&wait, "wait", false, "wait until the notification completes")
	return cmd
}

func testCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "test [type]",
		Short: "Show a canned test notification",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := "dummy"
			if len(args) == 1 {
				typ = args[0]
			}
			ctx, cancel := callCtx(cmd, wait)
			defer cancel()
			var out ipc.ShowNotificationData
			if err := client().Call(ctx, ipc.CommandTestNotification, ipc.TestNotificationPayload{Type: typ, Wait: wait}, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until the notification completes")
	return cmd
}

func enabledCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enabled [true|false]",
		Short: "Get or set the notifications switch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx(cmd, false)
			defer cancel()
			c := client()
			if len(args) == 1 {
				v, err := strconv.ParseBool(args[0])
				if err != nil {
					return fmt.Errorf("invalid value %q: %w", args[0], err)
				}
				return c.SetNotificationsEnabled(ctx, v)
			}
			var enabled bool
			if err := c.Call(ctx, ipc.CommandGetNotificationsEnabled, nil, &enabled); err != nil {
				return err
			}
			fmt.Println(enabled)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether notifications can appear",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx(cmd, false)
			defer cancel()
			out, err := client().NotificationStatus(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func queueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the notification queue state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx(cmd, false)
			defer cancel()
			out, err := client().QueueStatus(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func updatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-updates",
		Short: "Check the release feed now",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx(cmd, false)
			defer cancel()
			var out ipc.UpdateData
			if err := client().Call(ctx, ipc.CommandCheckForUpdates, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func visitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "visit <url>",
		Short: "Record the last visited page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx(cmd, false)
			defer cancel()
			return client().Call(ctx, ipc.CommandUpdateLastVisitedURL, ipc.URLPayload{URL: args[0]}, nil)
		},
	}
}

func settingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settings",
		Short: "Dump stored settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := callCtx(cmd, false)
			defer cancel()
			var out map[string]string
			if err := client().Call(ctx, ipc.CommandGetSettings, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}
