package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/ipc"
)

type globalFlags struct {
	socket  string
	json    bool
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "monctl",
		Short: "Control attached monitors",
		Long: `monctl inspects and configures attached monitors: resolution, refresh rate,
brightness, scale, orientation, power, HDR and input source.

Most commands talk to the running daemon (monctl daemon) over its unix socket.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.socket, "socket", "", "Daemon socket path (default: $MONCTL_SOCKET or the runtime directory)")
	root.PersistentFlags().BoolVar(&g.json, "json", false, "Print machine-readable JSON")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", ipc.DefaultTimeout, "How long to wait for the daemon")

	root.AddCommand(
		newDaemonCmd(g),
		newMCPCmd(g),
		newTUICmd(g),
		newListCmd(g),
		newStatusCmd(g),
		newIdentifyCmd(g),
		newWatchCmd(g),
		newGetCapsCmd(g),
		newSetResolutionCmd(g),
		newSetBrightnessCmd(g),
		newGetBrightnessCmd(g),
		newSetScaleCmd(g),
		newSetOrientationCmd(g),
		newSetPowerCmd(g),
		newSetHDRCmd(g),
		newSetInputCmd(g),
		newGetInputCmd(g),
		newReloadCmd(g),
		newConfigCmd(),
	)
	return root
}

func (g *globalFlags) client() *ipc.Client {
	var c *ipc.Client
	if g.socket != "" {
		c = ipc.NewClientAt(g.socket)
	} else {
		c = ipc.NewClient()
	}
	c.SetTimeout(g.timeout)
	return c
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitCode maps failure kinds to distinct exit statuses so scripts can
// retry on busy or transient errors.
func exitCode(err error) int {
	switch display.KindOf(err) {
	case display.KindInvalidRequest:
		return 2
	case display.KindUnsupported:
		return 3
	case display.KindBusy, display.KindTransient:
		return 4
	case display.KindDeviceGone:
		return 5
	case display.KindVerificationMismatch:
		return 6
	default:
		return 1
	}
}
