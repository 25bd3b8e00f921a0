package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/service"
)

// mutationCmd builds a set-* command. apply runs once flags are parsed and
// returns a short description of the change for the success line.
func mutationCmd(g *globalFlags, use, short string, monitor *string, apply func() (string, *service.Result, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			what, res, err := apply()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if g.json {
				return printJSON(out, res)
			}
			renderResult(out, what, res)
			return nil
		},
	}
	addMonitorFlag(cmd, monitor)
	return cmd
}

func newSetResolutionCmd(g *globalFlags) *cobra.Command {
	var monitor, mode string
	var width, height, hz int
	cmd := mutationCmd(g, "set-resolution", "Change resolution and refresh rate", &monitor, func() (string, *service.Result, error) {
		if mode != "" {
			m, err := parseMode(mode)
			if err != nil {
				return "", nil, err
			}
			width, height, hz = m.Width, m.Height, m.RefreshHz
		}
		if width <= 0 || height <= 0 {
			return "", nil, display.Errorf(display.KindInvalidRequest, "set_mode", monitor, "--width and --height (or --mode) are required")
		}
		res, err := g.client().SetResolution(monitor, width, height, hz)
		if err != nil {
			return "", nil, err
		}
		return "resolution " + res.Monitor.Current.String(), res, nil
	})
	cmd.Flags().IntVar(&width, "width", 0, "Width in pixels")
	cmd.Flags().IntVar(&height, "height", 0, "Height in pixels")
	cmd.Flags().IntVar(&hz, "refresh", 0, "Refresh rate in Hz (default: highest for the resolution)")
	cmd.Flags().StringVar(&mode, "mode", "", "Mode as WIDTHxHEIGHT[@HZ], e.g. 2560x1440@144")
	return cmd
}

func newSetBrightnessCmd(g *globalFlags) *cobra.Command {
	var monitor string
	var percent int
	cmd := mutationCmd(g, "set-brightness", "Set brightness in percent", &monitor, func() (string, *service.Result, error) {
		res, err := g.client().SetBrightness(monitor, percent)
		return fmt.Sprintf("brightness %d%%", percent), res, err
	})
	cmd.Flags().IntVar(&percent, "percent", 0, "Brightness percentage (0-100)")
	_ = cmd.MarkFlagRequired("percent")
	return cmd
}

func newGetBrightnessCmd(g *globalFlags) *cobra.Command {
	var monitor string
	cmd := &cobra.Command{
		Use:   "get-brightness",
		Short: "Read brightness from the monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := g.client().GetBrightness(monitor)
			if err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), data)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d%%\n", data.Percent)
			return nil
		},
	}
	addMonitorFlag(cmd, &monitor)
	return cmd
}

func newSetScaleCmd(g *globalFlags) *cobra.Command {
	var monitor string
	var percent int
	cmd := mutationCmd(g, "set-scale", "Set the scale factor", &monitor, func() (string, *service.Result, error) {
		res, err := g.client().SetScale(monitor, percent)
		return fmt.Sprintf("scale %d%%", percent), res, err
	})
	cmd.Flags().IntVar(&percent, "percent", 0, "Scale percentage (100, 125, 150, 175, 200, ...)")
	_ = cmd.MarkFlagRequired("percent")
	return cmd
}

func newSetOrientationCmd(g *globalFlags) *cobra.Command {
	var monitor string
	var degrees int
	cmd := mutationCmd(g, "set-orientation", "Rotate a monitor", &monitor, func() (string, *service.Result, error) {
		res, err := g.client().SetOrientation(monitor, degrees)
		return fmt.Sprintf("orientation %d°", degrees), res, err
	})
	cmd.Flags().IntVar(&degrees, "degrees", 0, "Clockwise rotation (0, 90, 180, 270)")
	_ = cmd.MarkFlagRequired("degrees")
	return cmd
}

func newSetPowerCmd(g *globalFlags) *cobra.Command {
	var monitor, state string
	cmd := mutationCmd(g, "set-power", "Turn a monitor on or put it in standby", &monitor, func() (string, *service.Result, error) {
		on, err := parseOnOff(state)
		if err != nil {
			return "", nil, display.Wrap(err, "set_power", monitor)
		}
		res, err := g.client().SetPower(monitor, on)
		return "power " + onOff(on), res, err
	})
	cmd.Flags().StringVar(&state, "state", "", "on or off")
	_ = cmd.MarkFlagRequired("state")
	return cmd
}

func newSetHDRCmd(g *globalFlags) *cobra.Command {
	var monitor string
	var enable bool
	cmd := mutationCmd(g, "set-hdr", "Enable or disable HDR", &monitor, func() (string, *service.Result, error) {
		res, err := g.client().SetHDR(monitor, enable)
		return "HDR " + onOff(enable), res, err
	})
	cmd.Flags().BoolVar(&enable, "enable", true, "Enable HDR (--enable=false disables)")
	return cmd
}

func newSetInputCmd(g *globalFlags) *cobra.Command {
	var monitor, input string
	cmd := mutationCmd(g, "set-input", "Switch the input source", &monitor, func() (string, *service.Result, error) {
		res, err := g.client().SetInput(monitor, input)
		if err != nil {
			return "", nil, err
		}
		return "input " + display.InputLabel(res.Monitor.Input.Code), res, nil
	})
	cmd.Flags().StringVar(&input, "input", "", "Input name (hdmi1, dp1, usbc, ...) or MCCS code (0x11)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newGetInputCmd(g *globalFlags) *cobra.Command {
	var monitor string
	cmd := &cobra.Command{
		Use:   "get-input",
		Short: "Read the active input source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := g.client().GetInput(monitor)
			if err != nil {
				return err
			}
			if g.json {
				return printJSON(cmd.OutOrStdout(), data)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (0x%02X)\n", data.Label, data.Code)
			return nil
		},
	}
	addMonitorFlag(cmd, &monitor)
	return cmd
}

// parseMode parses WIDTHxHEIGHT with an optional @HZ suffix.
func parseMode(s string) (display.Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	res, rate, hasRate := strings.Cut(s, "@")
	w, h, ok := strings.Cut(res, "x")
	if !ok {
		return display.Mode{}, display.Errorf(display.KindInvalidRequest, "set_mode", "", "mode %q must look like 2560x1440 or 2560x1440@144", s)
	}
	var m display.Mode
	var err error
	if m.Width, err = strconv.Atoi(w); err != nil || m.Width <= 0 {
		return display.Mode{}, display.Errorf(display.KindInvalidRequest, "set_mode", "", "invalid width in %q", s)
	}
	if m.Height, err = strconv.Atoi(h); err != nil || m.Height <= 0 {
		return display.Mode{}, display.Errorf(display.KindInvalidRequest, "set_mode", "", "invalid height in %q", s)
	}
	if hasRate {
		rate = strings.TrimSuffix(rate, "hz")
		if m.RefreshHz, err = strconv.Atoi(rate); err != nil || m.RefreshHz <= 0 {
			return display.Mode{}, display.Errorf(display.KindInvalidRequest, "set_mode", "", "invalid refresh rate in %q", s)
		}
	}
	return m, nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0", "standby":
		return false, nil
	}
	return false, display.Errorf(display.KindInvalidRequest, "", "", "state %q must be on or off", s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
