package display

import (
	"fmt"
	"strings"
	"time"
)

// Mode is a single display mode supported by a monitor.
type Mode struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	BitDepth  int `json:"bit_depth"`
	RefreshHz int `json:"refresh_hz"`
}

// Area returns the pixel count of the mode.
func (m Mode) Area() int {
	return m.Width * m.Height
}

// Key returns the "WxH" resolution key.
func (m Mode) Key() string {
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

func (m Mode) String() string {
	if m.BitDepth > 0 {
		return fmt.Sprintf("%dx%d@%dHz/%dbpp", m.Width, m.Height, m.RefreshHz, m.BitDepth)
	}
	return fmt.Sprintf("%dx%d@%dHz", m.Width, m.Height, m.RefreshHz)
}

// Point is a position in virtual desktop coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Orientation is a rotation in degrees clockwise.
type Orientation int

const (
	Landscape        Orientation = 0
	Portrait         Orientation = 90
	LandscapeFlipped Orientation = 180
	PortraitFlipped  Orientation = 270
)

// Valid reports whether o is one of the four supported rotations.
func (o Orientation) Valid() bool {
	switch o {
	case Landscape, Portrait, LandscapeFlipped, PortraitFlipped:
		return true
	}
	return false
}

// IsPortrait reports whether width and height are swapped on screen.
func (o Orientation) IsPortrait() bool {
	return o == Portrait || o == PortraitFlipped
}

// PowerState is the power mode of a monitor.
type PowerState string

const (
	PowerOn          PowerState = "on"
	PowerOff         PowerState = "off"
	PowerUnsupported PowerState = "unsupported"
	PowerUnknown     PowerState = "unknown"
)

// HDRState is the HDR mode of a monitor.
type HDRState string

const (
	HDROn          HDRState = "on"
	HDROff         HDRState = "off"
	HDRUnsupported HDRState = "unsupported"
)

// ConnectionType tags how a monitor is attached.
type ConnectionType string

const (
	ConnInternal    ConnectionType = "internal"
	ConnHDMI        ConnectionType = "hdmi"
	ConnDisplayPort ConnectionType = "displayport"
	ConnDVI         ConnectionType = "dvi"
	ConnVGA         ConnectionType = "vga"
	ConnUSBC        ConnectionType = "usb-c"
	ConnUnknown     ConnectionType = "unknown"
)

// Analog reports whether the link carries an analog signal.
func (c ConnectionType) Analog() bool {
	return c == ConnVGA
}

// External reports whether the monitor is a separate device that may speak DDC/CI.
func (c ConnectionType) External() bool {
	return c != ConnInternal
}

// Brightness is a brightness reading in percent.
type Brightness struct {
	Percent   int  `json:"percent"`
	Supported bool `json:"supported"`
}

// Input is the active input source as an MCCS code.
type Input struct {
	Code      uint8 `json:"code"`
	Supported bool  `json:"supported"`
}

// Monitor is one attached display as seen at snapshot time.
type Monitor struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	FriendlyName      string         `json:"friendly_name"`
	Manufacturer      string         `json:"manufacturer,omitempty"`
	Model             string         `json:"model,omitempty"`
	Serial            string         `json:"serial,omitempty"`
	YearOfManufacture int            `json:"year_of_manufacture,omitempty"`
	WeekOfManufacture int            `json:"week_of_manufacture,omitempty"`
	Primary           bool           `json:"primary"`
	BuiltIn           bool           `json:"built_in"`
	Connection        ConnectionType `json:"connection"`
	Position          Point          `json:"position"`
	Current           Mode           `json:"current"`
	Modes             []Mode         `json:"modes"`
	MaxNative         Mode           `json:"max_native"`
	Scale             int            `json:"scale"`
	Scales            []int          `json:"scales,omitempty"`
	Orientation       Orientation    `json:"orientation"`
	Orientations      []Orientation  `json:"orientations,omitempty"`
	Brightness        Brightness     `json:"brightness"`
	Power             PowerState     `json:"power"`
	HDR               HDRState       `json:"hdr"`
	Input             Input          `json:"input"`
	Inputs            []uint8        `json:"inputs,omitempty"`
	Capabilities      Capabilities   `json:"capabilities"`
	Stale             bool           `json:"stale,omitempty"`
}

// HasMode reports whether m is in the monitor's catalog.
func (m Monitor) HasMode(mode Mode) bool {
	for _, candidate := range m.Modes {
		if candidate == mode {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate it without touching a snapshot.
func (m Monitor) Clone() Monitor {
	out := m
	out.Modes = append([]Mode(nil), m.Modes...)
	out.Scales = append([]int(nil), m.Scales...)
	out.Orientations = append([]Orientation(nil), m.Orientations...)
	out.Inputs = append([]uint8(nil), m.Inputs...)
	return out
}

// Snapshot is an immutable copy of all monitor state at one instant.
type Snapshot struct {
	Generation uint64    `json:"generation"`
	TakenAt    time.Time `json:"taken_at"`
	Monitors   []Monitor `json:"monitors"`
}

// Monitor returns the monitor with the given ID.
func (s *Snapshot) Monitor(id string) (Monitor, bool) {
	if s == nil {
		return Monitor{}, false
	}
	for _, m := range s.Monitors {
		if m.ID == id {
			return m, true
		}
	}
	return Monitor{}, false
}

// IDs returns monitor identifiers in snapshot order.
func (s *Snapshot) IDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Monitors))
	for _, m := range s.Monitors {
		ids = append(ids, m.ID)
	}
	return ids
}

// ConnectionFromConnector guesses the link type from a kernel or RandR
// connector name such as "eDP-1", "HDMI-A-1" or "DisplayPort-0".
func ConnectionFromConnector(name string) ConnectionType {
	n := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(n, "EDP"), strings.HasPrefix(n, "LVDS"), strings.HasPrefix(n, "DSI"):
		return ConnInternal
	case strings.HasPrefix(n, "HDMI"):
		return ConnHDMI
	case strings.HasPrefix(n, "DP"), strings.HasPrefix(n, "DISPLAYPORT"):
		return ConnDisplayPort
	case strings.HasPrefix(n, "DVI"):
		return ConnDVI
	case strings.HasPrefix(n, "VGA"):
		return ConnVGA
	case strings.HasPrefix(n, "USB"), strings.HasPrefix(n, "TYPE-C"):
		return ConnUSBC
	}
	return ConnUnknown
}
