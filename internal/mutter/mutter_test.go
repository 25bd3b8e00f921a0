package mutter

import (
	"reflect"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/monctl/internal/display"
)

func sampleState() *State {
	current := map[string]dbus.Variant{"is-current": dbus.MakeVariant(true)}
	return &State{
		Serial: 7,
		Monitors: []Monitor{
			{
				Spec: MonitorSpec{Connector: "eDP-1", Vendor: "BOE", Product: "0x0a1c", Serial: "0"},
				Modes: []Mode{
					{ID: "2256x1504@59.999", Width: 2256, Height: 1504, Refresh: 59.999, PreferredScale: 1.5,
						SupportedScales: []float64{1, 1.25, 1.5, 1.75, 2}, Props: current},
					{ID: "1920x1200@59.950", Width: 1920, Height: 1200, Refresh: 59.95, PreferredScale: 1,
						SupportedScales: []float64{1, 1.25}},
				},
				Props: map[string]dbus.Variant{
					"is-builtin":   dbus.MakeVariant(true),
					"display-name": dbus.MakeVariant("Built-in display"),
				},
			},
			{
				Spec: MonitorSpec{Connector: "DP-2", Vendor: "DEL", Product: "DELL U2723QE", Serial: "ABC"},
				Modes: []Mode{
					{ID: "3840x2160@59.997", Width: 3840, Height: 2160, Refresh: 59.997, PreferredScale: 2,
						SupportedScales: []float64{1, 1.5, 2}, Props: current},
				},
				Props: map[string]dbus.Variant{
					"supported-color-modes": dbus.MakeVariant([]uint32{0, 1}),
					"color-mode":            dbus.MakeVariant(uint32(1)),
				},
			},
			{
				Spec:  MonitorSpec{Connector: "HDMI-1"},
				Modes: []Mode{{ID: "1920x1080@60", Width: 1920, Height: 1080, Refresh: 60}},
			},
		},
		LogicalMonitors: []LogicalMonitor{
			{X: 0, Y: 0, Scale: 1.5, Transform: 0, Primary: true, Monitors: []MonitorSpec{{Connector: "eDP-1"}}},
			{X: 1504, Y: 0, Scale: 2, Transform: 1, Monitors: []MonitorSpec{{Connector: "DP-2"}}},
		},
		Props: map[string]dbus.Variant{"layout-mode": dbus.MakeVariant(uint32(1))},
	}
}

func TestOutputsFromState(t *testing.T) {
	outs := outputsFromState(sampleState())
	if len(outs) != 2 {
		t.Fatalf("got %d outputs, want 2 (disabled HDMI-1 skipped)", len(outs))
	}

	edp := outs[0]
	if edp.Connector != "eDP-1" || !edp.BuiltIn || !edp.Primary {
		t.Fatalf("first output = %+v", edp)
	}
	if edp.Current != (display.Mode{Width: 2256, Height: 1504, BitDepth: 32, RefreshHz: 60}) {
		t.Fatalf("current = %v", edp.Current)
	}
	if edp.Scale != 150 {
		t.Fatalf("scale = %d, want 150", edp.Scale)
	}
	if !reflect.DeepEqual(edp.Scales, []int{100, 125, 150, 175, 200}) {
		t.Fatalf("scales = %v", edp.Scales)
	}
	if edp.HDR != display.HDRUnsupported {
		t.Fatalf("eDP hdr = %q", edp.HDR)
	}

	dp := outs[1]
	if dp.Orientation != display.Portrait {
		t.Fatalf("DP orientation = %d, want 90", dp.Orientation)
	}
	if dp.HDR != display.HDROn {
		t.Fatalf("DP hdr = %q, want on", dp.HDR)
	}
}

func TestConfigFromStateCarriesColorMode(t *testing.T) {
	cfg := configFromState(sampleState())
	if len(cfg) != 2 {
		t.Fatalf("got %d logical configs, want 2", len(cfg))
	}
	dp := cfg[1].Monitors[0]
	if dp.ModeID != "3840x2160@59.997" {
		t.Fatalf("mode id = %q", dp.ModeID)
	}
	if v, ok := dp.Props["color-mode"]; !ok || v.Value() != uint32(1) {
		t.Fatalf("color-mode not carried: %v", dp.Props)
	}
}

func TestRelayoutPacksRow(t *testing.T) {
	st := sampleState()
	cfg := configFromState(st)
	// Switch the built-in panel to 1920x1200 at scale 1.
	cfg[0].Monitors[0].ModeID = "1920x1200@59.950"
	cfg[0].Scale = 1

	relayout(st, cfg)
	if cfg[0].X != 0 {
		t.Fatalf("first x = %d", cfg[0].X)
	}
	if cfg[1].X != 1920 {
		t.Fatalf("second x = %d, want 1920", cfg[1].X)
	}
}

func TestNearestScale(t *testing.T) {
	scales := []float64{1, 1.25, 1.5, 1.7518248558044434, 2}
	if s, ok := nearestScale(scales, 175); !ok || s != 1.7518248558044434 {
		t.Fatalf("nearestScale(175) = %v, %v", s, ok)
	}
	if _, ok := nearestScale(scales, 110); ok {
		t.Fatal("110 should not be an exact match")
	}
}

func TestTransformKeepsFlip(t *testing.T) {
	if got := transformFromOrientation(4, display.PortraitFlipped); got != 7 {
		t.Fatalf("transformFromOrientation(flipped, 270) = %d, want 7", got)
	}
	if got := orientationFromTransform(6); got != display.LandscapeFlipped {
		t.Fatalf("orientationFromTransform(6) = %d", got)
	}
}
