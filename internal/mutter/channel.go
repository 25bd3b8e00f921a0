package mutter

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
)

// layoutPhysical is the "layout-mode" value where logical monitor sizes
// are not divided by their scale.
const layoutPhysical uint32 = 2

// Channel controls one monitor's mode, orientation, scale and HDR through Mutter.
type Channel struct {
	channel.Unsupported
	client    *Client
	connector string
}

var _ channel.Channel = (*Channel)(nil)

// NewChannel returns a channel for the monitor on connector.
func (c *Client) NewChannel(connector string) *Channel {
	return &Channel{client: c, connector: connector}
}

// Attributes lists what Mutter can change for a monitor.
func Attributes() []display.Attribute {
	return []display.Attribute{display.AttrMode, display.AttrOrientation, display.AttrScale, display.AttrHDR}
}

func (ch *Channel) Capabilities() display.Capabilities {
	return display.NewCapabilities(Attributes()...)
}

func (ch *Channel) current(ctx context.Context, op string) (*State, Monitor, LogicalMonitor, error) {
	st, err := ch.client.State(ctx)
	if err != nil {
		return nil, Monitor{}, LogicalMonitor{}, ch.classify(op, err)
	}
	mon, ok := st.monitor(ch.connector)
	if !ok {
		return nil, Monitor{}, LogicalMonitor{}, display.Errorf(display.KindDeviceGone, op, ch.connector, "monitor not reported by mutter")
	}
	lm, ok := st.logical(ch.connector)
	if !ok {
		return nil, Monitor{}, LogicalMonitor{}, display.Errorf(display.KindDeviceGone, op, ch.connector, "monitor is disabled")
	}
	return st, mon, lm, nil
}

func (ch *Channel) Mode(ctx context.Context) (display.Mode, error) {
	_, mon, _, err := ch.current(ctx, "get_mode")
	if err != nil {
		return display.Mode{}, err
	}
	cur, ok := mon.currentMode()
	if !ok {
		return display.Mode{}, display.Errorf(display.KindTransient, "get_mode", ch.connector, "no current mode")
	}
	return modeFromMutter(cur), nil
}

func (ch *Channel) SetMode(ctx context.Context, mode display.Mode) error {
	return ch.apply(ctx, "set_mode", func(st *State, mon Monitor, lc *logicalMonitorConfig, a *monitorAssignment) error {
		for _, m := range mon.Modes {
			if int(m.Width) == mode.Width && int(m.Height) == mode.Height && int(math.Round(m.Refresh)) == mode.RefreshHz {
				a.ModeID = m.ID
				// The scale must be valid for the new mode.
				if _, exact := nearestScale(m.SupportedScales, scalePercent(lc.Scale)); !exact {
					lc.Scale = m.PreferredScale
				}
				return nil
			}
		}
		return display.Errorf(display.KindInvalidRequest, "set_mode", ch.connector, "mode %s not offered by mutter", mode)
	})
}

func (ch *Channel) Orientation(ctx context.Context) (display.Orientation, error) {
	_, _, lm, err := ch.current(ctx, "get_orientation")
	if err != nil {
		return 0, err
	}
	return orientationFromTransform(lm.Transform), nil
}

func (ch *Channel) SetOrientation(ctx context.Context, o display.Orientation) error {
	return ch.apply(ctx, "set_orientation", func(_ *State, _ Monitor, lc *logicalMonitorConfig, _ *monitorAssignment) error {
		lc.Transform = transformFromOrientation(lc.Transform, o)
		return nil
	})
}

func (ch *Channel) Scale(ctx context.Context) (int, error) {
	_, _, lm, err := ch.current(ctx, "get_scale")
	if err != nil {
		return 0, err
	}
	return scalePercent(lm.Scale), nil
}

func (ch *Channel) SetScale(ctx context.Context, percent int) error {
	return ch.apply(ctx, "set_scale", func(_ *State, mon Monitor, lc *logicalMonitorConfig, a *monitorAssignment) error {
		var scales []float64
		for _, m := range mon.Modes {
			if m.ID == a.ModeID {
				scales = m.SupportedScales
			}
		}
		scale, ok := nearestScale(scales, percent)
		if !ok {
			return display.Errorf(display.KindInvalidRequest, "set_scale", ch.connector, "scale %d%% not supported for current mode", percent)
		}
		lc.Scale = scale
		return nil
	})
}

func (ch *Channel) HDR(ctx context.Context) (bool, error) {
	_, mon, _, err := ch.current(ctx, "get_hdr")
	if err != nil {
		return false, err
	}
	switch hdrState(mon) {
	case display.HDRUnsupported:
		return false, display.ErrUnsupported
	case display.HDROn:
		return true, nil
	}
	return false, nil
}

func (ch *Channel) SetHDR(ctx context.Context, enable bool) error {
	return ch.apply(ctx, "set_hdr", func(_ *State, mon Monitor, _ *logicalMonitorConfig, a *monitorAssignment) error {
		if hdrState(mon) == display.HDRUnsupported {
			return display.Errorf(display.KindUnsupported, "set_hdr", ch.connector, "monitor has no bt2100 color mode")
		}
		mode := colorModeDefault
		if enable {
			mode = colorModeBT2100
		}
		a.Props["color-mode"] = dbus.MakeVariant(mode)
		return nil
	})
}

type assignmentEdit func(st *State, mon Monitor, lc *logicalMonitorConfig, a *monitorAssignment) error

func (ch *Channel) apply(ctx context.Context, op string, edit assignmentEdit) error {
	err := ch.client.update(ctx, func(st *State, cfg []logicalMonitorConfig) ([]logicalMonitorConfig, error) {
		mon, ok := st.monitor(ch.connector)
		if !ok {
			return nil, display.Errorf(display.KindDeviceGone, op, ch.connector, "monitor not reported by mutter")
		}
		for i := range cfg {
			for j := range cfg[i].Monitors {
				if cfg[i].Monitors[j].Connector != ch.connector {
					continue
				}
				if err := edit(st, mon, &cfg[i], &cfg[i].Monitors[j]); err != nil {
					return nil, err
				}
				relayout(st, cfg)
				return cfg, nil
			}
		}
		return nil, display.Errorf(display.KindDeviceGone, op, ch.connector, "monitor is disabled")
	})
	if err != nil {
		return ch.classify(op, err)
	}
	return nil
}

// relayout packs logical monitors on each row left to right so a size
// change never leaves gaps or overlaps, which Mutter rejects.
func relayout(st *State, cfg []logicalMonitorConfig) {
	layoutMode, _ := uint32Prop(st.Props, "layout-mode")
	order := make([]int, len(cfg))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := cfg[order[a]], cfg[order[b]]
		if ca.Y != cb.Y {
			return ca.Y < cb.Y
		}
		return ca.X < cb.X
	})

	nextX := map[int32]int32{}
	for _, i := range order {
		lc := &cfg[i]
		w, _ := logicalSize(st, lc, layoutMode)
		x, seen := nextX[lc.Y]
		if !seen {
			x = lc.X
		}
		lc.X = x
		nextX[lc.Y] = x + w
	}
}

func logicalSize(st *State, lc *logicalMonitorConfig, layoutMode uint32) (int32, int32) {
	if len(lc.Monitors) == 0 {
		return 0, 0
	}
	mon, ok := st.monitor(lc.Monitors[0].Connector)
	if !ok {
		return 0, 0
	}
	var w, h float64
	for _, m := range mon.Modes {
		if m.ID == lc.Monitors[0].ModeID {
			w, h = float64(m.Width), float64(m.Height)
		}
	}
	if lc.Transform%2 == 1 {
		w, h = h, w
	}
	if layoutMode != layoutPhysical && lc.Scale > 0 {
		w, h = w/lc.Scale, h/lc.Scale
	}
	return int32(math.Round(w)), int32(math.Round(h))
}

func (ch *Channel) classify(op string, err error) error {
	var de *display.Error
	if errors.As(err, &de) {
		return err
	}
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		switch dbusErr.Name {
		case "org.freedesktop.DBus.Error.AccessDenied":
			return &display.Error{Kind: display.KindFailed, Op: op, DeviceID: ch.connector, Err: err}
		case "org.freedesktop.DBus.Error.InvalidArgs":
			// Stale serial or a layout Mutter refused.
			return &display.Error{Kind: display.KindTransient, Op: op, DeviceID: ch.connector, Err: err}
		}
	}
	return &display.Error{Kind: display.KindOf(err), Op: op, DeviceID: ch.connector, Err: err}
}
