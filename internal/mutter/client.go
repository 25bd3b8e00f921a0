// Package mutter talks to GNOME's org.gnome.Mutter.DisplayConfig D-Bus API,
// which owns the monitor configuration on GNOME (Wayland and X11).
package mutter

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	busName   = "org.gnome.Mutter.DisplayConfig"
	objPath   = dbus.ObjectPath("/org/gnome/Mutter/DisplayConfig")
	iface     = "org.gnome.Mutter.DisplayConfig"
	sigChange = "MonitorsChanged"
)

// methodTemporary applies a configuration without writing monitors.xml.
const methodTemporary uint32 = 1

// Color modes reported in the "color-mode" monitor property.
const (
	colorModeDefault uint32 = 0
	colorModeBT2100  uint32 = 1
)

// MonitorSpec identifies a physical monitor.
type MonitorSpec struct {
	Connector string
	Vendor    string
	Product   string
	Serial    string
}

// Mode is one mode of a physical monitor.
type Mode struct {
	ID              string
	Width           int32
	Height          int32
	Refresh         float64
	PreferredScale  float64
	SupportedScales []float64
	Props           map[string]dbus.Variant
}

// Monitor is a physical monitor with its modes.
type Monitor struct {
	Spec  MonitorSpec
	Modes []Mode
	Props map[string]dbus.Variant
}

// LogicalMonitor is a region of the desktop showing one or more monitors.
type LogicalMonitor struct {
	X         int32
	Y         int32
	Scale     float64
	Transform uint32
	Primary   bool
	Monitors  []MonitorSpec
	Props     map[string]dbus.Variant
}

// State is the result of GetCurrentState.
type State struct {
	Serial          uint32
	Monitors        []Monitor
	LogicalMonitors []LogicalMonitor
	Props           map[string]dbus.Variant
}

type monitorAssignment struct {
	Connector string
	ModeID    string
	Props     map[string]dbus.Variant
}

type logicalMonitorConfig struct {
	X         int32
	Y         int32
	Scale     float64
	Transform uint32
	Primary   bool
	Monitors  []monitorAssignment
}

// Client wraps a session bus connection to Mutter.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	// applyMu serializes read-modify-write cycles on the global configuration.
	applyMu sync.Mutex
}

// Connect opens a private session bus connection and checks that Mutter's
// DisplayConfig service is present.
func Connect(ctx context.Context) (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	c := &Client{conn: conn, obj: conn.Object(busName, objPath)}
	if _, err := c.State(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mutter display config unavailable: %w", err)
	}
	return c, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// State fetches the current monitor configuration.
func (c *Client) State(ctx context.Context) (*State, error) {
	var st State
	call := c.obj.CallWithContext(ctx, iface+".GetCurrentState", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	if err := call.Store(&st.Serial, &st.Monitors, &st.LogicalMonitors, &st.Props); err != nil {
		return nil, fmt.Errorf("failed to decode mutter state: %w", err)
	}
	return &st, nil
}

// update reads the current state, lets edit change the logical layout and
// applies the result as a temporary configuration.
func (c *Client) update(ctx context.Context, edit func(st *State, cfg []logicalMonitorConfig) ([]logicalMonitorConfig, error)) error {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	st, err := c.State(ctx)
	if err != nil {
		return err
	}
	cfg, err := edit(st, configFromState(st))
	if err != nil {
		return err
	}

	props := map[string]dbus.Variant{}
	if v, ok := st.Props["layout-mode"]; ok {
		props["layout-mode"] = v
	}
	call := c.obj.CallWithContext(ctx, iface+".ApplyMonitorsConfig", 0, st.Serial, methodTemporary, cfg, props)
	return call.Err
}

// configFromState rebuilds the current layout as an ApplyMonitorsConfig
// argument, carrying each monitor's current mode and color mode.
func configFromState(st *State) []logicalMonitorConfig {
	var out []logicalMonitorConfig
	for _, lm := range st.LogicalMonitors {
		cfg := logicalMonitorConfig{
			X:         lm.X,
			Y:         lm.Y,
			Scale:     lm.Scale,
			Transform: lm.Transform,
			Primary:   lm.Primary,
		}
		for _, spec := range lm.Monitors {
			mon, ok := st.monitor(spec.Connector)
			if !ok {
				continue
			}
			mode, ok := mon.currentMode()
			if !ok {
				continue
			}
			assign := monitorAssignment{Connector: spec.Connector, ModeID: mode.ID, Props: map[string]dbus.Variant{}}
			if v, ok := mon.Props["color-mode"]; ok {
				assign.Props["color-mode"] = v
			}
			cfg.Monitors = append(cfg.Monitors, assign)
		}
		if len(cfg.Monitors) > 0 {
			out = append(out, cfg)
		}
	}
	return out
}

func (st *State) monitor(connector string) (Monitor, bool) {
	for _, m := range st.Monitors {
		if m.Spec.Connector == connector {
			return m, true
		}
	}
	return Monitor{}, false
}

// logical returns the logical monitor showing connector.
func (st *State) logical(connector string) (LogicalMonitor, bool) {
	for _, lm := range st.LogicalMonitors {
		for _, spec := range lm.Monitors {
			if spec.Connector == connector {
				return lm, true
			}
		}
	}
	return LogicalMonitor{}, false
}

func (m Monitor) currentMode() (Mode, bool) {
	for _, mode := range m.Modes {
		if boolProp(mode.Props, "is-current") {
			return mode, true
		}
	}
	return Mode{}, false
}

func boolProp(props map[string]dbus.Variant, key string) bool {
	v, ok := props[key]
	if !ok {
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

func stringProp(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func uint32Prop(props map[string]dbus.Variant, key string) (uint32, bool) {
	v, ok := props[key]
	if !ok {
		return 0, false
	}
	u, ok := v.Value().(uint32)
	return u, ok
}

func uint32sProp(props map[string]dbus.Variant, key string) []uint32 {
	v, ok := props[key]
	if !ok {
		return nil
	}
	u, _ := v.Value().([]uint32)
	return u
}
