package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var refresh bool
	var monitor string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List monitors with their properties",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := g.client()
			out := cmd.OutOrStdout()
			if monitor != "" {
				m, err := c.GetMonitor(monitor)
				if err != nil {
					return err
				}
				if g.json {
					return printJSON(out, m)
				}
				renderMonitor(out, *m)
				return nil
			}

			snap, err := c.ListMonitors(refresh)
			if err != nil {
				return err
			}
			if g.json {
				return printJSON(out, snap)
			}
			if len(snap.Monitors) == 0 {
				fmt.Fprintln(out, "No monitors detected")
				return nil
			}
			renderMonitors(out, snap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Re-enumerate hardware before listing")
	cmd.Flags().StringVarP(&monitor, "monitor", "m", "", "Show details for one monitor (ID, name or 1-based index)")
	return cmd
}

func newStatusCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := g.client().GetStatus()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if g.json {
				return printJSON(out, status)
			}
			fmt.Fprintf(out, "backend:     %s\n", status.Backend)
			fmt.Fprintf(out, "monitors:    %d\n", status.Monitors)
			fmt.Fprintf(out, "generation:  %d\n", status.Generation)
			if !status.TakenAt.IsZero() {
				fmt.Fprintf(out, "enumerated:  %s\n", status.TakenAt.Local().Format(time.RFC3339))
			}
			fmt.Fprintf(out, "busy policy: %s\n", status.BusyPolicy)
			fmt.Fprintf(out, "watchers:    %d\n", status.Subscribers)
			fmt.Fprintf(out, "uptime:      %s\n", (time.Duration(status.UptimeSeconds) * time.Second).String())
			return nil
		},
	}
}

func newIdentifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "identify",
		Short: "Show each monitor's index on screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.client().Identify()
		},
	}
}

func newReloadCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the daemon to re-read its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := g.client().Reload(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "config reloaded")
			return nil
		},
	}
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream monitor topology changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			err := g.client().Watch(ctx, func(ev events.Event) error {
				if g.json {
					return printJSON(out, ev)
				}
				fmt.Fprintln(out, formatEvent(ev))
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func formatEvent(ev events.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", ev.Time.Local().Format("15:04:05"), ev.Type)
	if ev.Snapshot != nil {
		fmt.Fprintf(&b, " generation=%d monitors=%d", ev.Snapshot.Generation, len(ev.Snapshot.Monitors))
	}
	if len(ev.Added) > 0 {
		fmt.Fprintf(&b, " added=%s", strings.Join(ev.Added, ","))
	}
	if len(ev.Removed) > 0 {
		fmt.Fprintf(&b, " removed=%s", strings.Join(ev.Removed, ","))
	}
	if len(ev.Changed) > 0 {
		fmt.Fprintf(&b, " changed=%s", strings.Join(ev.Changed, ","))
	}
	return b.String()
}

func newGetCapsCmd(g *globalFlags) *cobra.Command {
	var monitor string
	cmd := &cobra.Command{
		Use:   "get-caps",
		Short: "Print a monitor's DDC/CI capability string",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caps, err := g.client().GetCapabilities(monitor)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if g.json {
				return printJSON(out, caps)
			}
			fmt.Fprintln(out, caps.Capabilities)
			if len(caps.Inputs) > 0 {
				labels := make([]string, 0, len(caps.Inputs))
				for _, code := range caps.Inputs {
					labels = append(labels, fmt.Sprintf("%s (0x%02X)", display.InputLabel(code), code))
				}
				fmt.Fprintf(out, "inputs: %s\n", strings.Join(labels, ", "))
			}
			return nil
		},
	}
	addMonitorFlag(cmd, &monitor)
	return cmd
}

func addMonitorFlag(cmd *cobra.Command, monitor *string) {
	cmd.Flags().StringVarP(monitor, "monitor", "m", "", "Monitor ID, name or 1-based index (see 'monctl list')")
	_ = cmd.MarkFlagRequired("monitor")
}
