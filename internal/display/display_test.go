package display

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := Errorf(KindUnsupported, "set_hdr", "HDMI-1", "no hdr path")
	wrapped := fmt.Errorf("apply: %w", err)

	if !errors.Is(wrapped, ErrUnsupported) {
		t.Fatalf("errors.Is(%v, ErrUnsupported) = false, want true", wrapped)
	}
	if errors.Is(wrapped, ErrTransient) {
		t.Fatalf("errors.Is(%v, ErrTransient) = true, want false", wrapped)
	}
	if got := KindOf(wrapped); got != KindUnsupported {
		t.Fatalf("KindOf = %q, want %q", got, KindUnsupported)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("boom"), want: KindFailed},
		{name: "deadline", err: fmt.Errorf("read: %w", context.DeadlineExceeded), want: KindTransient},
		{name: "typed", err: &Error{Kind: KindDeviceGone}, want: KindDeviceGone},
		{name: "wrap keeps kind", err: Wrap(ErrBusy, "set", "dp-1"), want: KindBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Errorf(KindInvalidRequest, "set_brightness", "DP-2", "value %d out of range", 140)
	want := "set_brightness: invalid_request (DP-2): value 140 out of range"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		in      string
		want    uint8
		wantErr bool
	}{
		{in: "hdmi1", want: 0x11},
		{in: "HDMI", want: 0x11},
		{in: "dp", want: 0x0F},
		{in: "usbc", want: 0x19},
		{in: "usbc4", want: 0x31},
		{in: "lg-dp", want: 0xD1},
		{in: "0x12", want: 0x12},
		{in: "27", want: 27},
		{in: "0", wantErr: true},
		{in: "toaster", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseInput(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseInput(%q) expected error, got %#x", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseInput(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseInput(%q) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestInputLabel(t *testing.T) {
	if got := InputLabel(0x0F); got != "DisplayPort 1" {
		t.Fatalf("InputLabel(0x0F) = %q", got)
	}
	if got := InputLabel(0x77); got != "Input 0x77" {
		t.Fatalf("InputLabel(0x77) = %q", got)
	}
}

func TestSnapshotMonitorLookup(t *testing.T) {
	snap := &Snapshot{Monitors: []Monitor{{ID: "a"}, {ID: "b"}}}
	if _, ok := snap.Monitor("b"); !ok {
		t.Fatal("expected monitor b")
	}
	if _, ok := snap.Monitor("c"); ok {
		t.Fatal("did not expect monitor c")
	}
	var nilSnap *Snapshot
	if _, ok := nilSnap.Monitor("a"); ok {
		t.Fatal("nil snapshot should have no monitors")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	m := Monitor{Modes: []Mode{{Width: 1920, Height: 1080, RefreshHz: 60}}}
	c := m.Clone()
	c.Modes[0].RefreshHz = 144
	if m.Modes[0].RefreshHz != 60 {
		t.Fatalf("clone aliased modes slice")
	}
}

func TestParseAttribute(t *testing.T) {
	if a, err := ParseAttribute("resolution"); err != nil || a != AttrMode {
		t.Fatalf("ParseAttribute(resolution) = %q, %v", a, err)
	}
	if _, err := ParseAttribute("gamma"); err == nil {
		t.Fatal("expected error for unknown attribute")
	}
}

func TestConnectionFromConnector(t *testing.T) {
	tests := map[string]ConnectionType{
		"eDP-1":         ConnInternal,
		"LVDS1":         ConnInternal,
		"HDMI-A-1":      ConnHDMI,
		"DisplayPort-0": ConnDisplayPort,
		"DP-2":          ConnDisplayPort,
		"DVI-D-1":       ConnDVI,
		"VGA-1":         ConnVGA,
		"Virtual-1":     ConnUnknown,
	}
	for name, want := range tests {
		if got := ConnectionFromConnector(name); got != want {
			t.Errorf("ConnectionFromConnector(%q) = %q, want %q", name, got, want)
		}
	}
	if !ConnVGA.Analog() || ConnHDMI.Analog() {
		t.Error("only VGA is analog")
	}
}

func TestCompare(t *testing.T) {
	prev := &Snapshot{Monitors: []Monitor{
		{ID: "HDMI-1", Scale: 100},
		{ID: "DP-1", Scale: 100},
	}}
	next := &Snapshot{Monitors: []Monitor{
		{ID: "HDMI-1", Scale: 150},
		{ID: "DP-2", Scale: 100},
	}}
	d := Compare(prev, next)
	if len(d.Added) != 1 || d.Added[0] != "DP-2" {
		t.Errorf("Added = %v, want [DP-2]", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0] != "DP-1" {
		t.Errorf("Removed = %v, want [DP-1]", d.Removed)
	}
	if len(d.Changed) != 1 || d.Changed[0] != "HDMI-1" {
		t.Errorf("Changed = %v, want [HDMI-1]", d.Changed)
	}
	if !Compare(next, next).Empty() {
		t.Errorf("Compare(next, next) not empty")
	}
}
