package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/1broseidon/monctl/internal/daemon"
	"github.com/1broseidon/monctl/internal/mcp"
	"github.com/1broseidon/monctl/internal/tui"
)

func newDaemonCmd(g *globalFlags) *cobra.Command {
	var opts daemon.Options
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the display control daemon",
		Long: `Run the display control daemon in the foreground.

The daemon enumerates monitors, watches for hotplug events and serves the
IPC socket used by every other command. Send SIGHUP or run 'monctl reload'
to re-read the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts.SocketPath = g.socket
			d, err := daemon.New(ctx, opts)
			if err != nil {
				return err
			}
			return d.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "Config file path (default: $MONCTL_CONFIG or ~/.config/monctl/config.yaml)")
	return cmd
}

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve monitor control tools over MCP (stdio)",
		Long: `Start an MCP server on stdio. Designed to be invoked by MCP clients.
Tools are forwarded to the running daemon.

Example:
  claude mcp add monctl -- monctl mcp`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// stdout carries the protocol; logs go to stderr.
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			return mcp.NewServer(g.client(), logger).Run(ctx)
		},
	}
}

func newTUICmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive monitor dashboard",
		Long: `Open an interactive dashboard for the running daemon.

Arrow keys pick a monitor and adjust brightness; m, s and i open the mode,
scale and input pickers; o, p and h rotate and toggle power and HDR. The
view follows hotplug events while open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return tui.Run(ctx, g.client())
		},
	}
}
