package platform

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/1broseidon/monctl/internal/display"
)

func TestFakeProviderDefaults(t *testing.T) {
	p := NewFakeProvider(0)
	outs, err := p.Enumerate(context.Background())
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(outs) != 4 {
		t.Fatalf("monitors = %d, want 4", len(outs))
	}

	first := outs[0].Monitor
	if !first.Primary || first.Scale != 125 {
		t.Errorf("first monitor primary=%v scale=%d, want primary at 125", first.Primary, first.Scale)
	}
	if first.MaxNative.Width != 3840 || first.MaxNative.Height != 2160 {
		t.Errorf("MaxNative = %s, want 3840x2160", first.MaxNative)
	}
	if !first.HasMode(first.Current) {
		t.Errorf("current mode %s not in catalog", first.Current)
	}
	for i, o := range outs {
		if o.Monitor.Position.X != i*1920 {
			t.Errorf("monitor %d x = %d, want %d", i, o.Monitor.Position.X, i*1920)
		}
		if outs[i].Monitor.Primary != (i == 0) {
			t.Errorf("monitor %d primary = %v", i, outs[i].Monitor.Primary)
		}
	}
	if p.Enumerations() != 1 {
		t.Errorf("Enumerations() = %d, want 1", p.Enumerations())
	}
}

func TestFakeChannelWritesAndReads(t *testing.T) {
	p := NewFakeProvider(1)
	outs, _ := p.Enumerate(context.Background())
	ch := outs[0].Channel
	ctx := context.Background()

	if err := ch.SetBrightness(ctx, 80); err != nil {
		t.Fatalf("SetBrightness: %v", err)
	}
	got, err := ch.Brightness(ctx)
	if err != nil || got != 80 {
		t.Fatalf("Brightness() = %d, %v, want 80", got, err)
	}

	bad := display.Mode{Width: 800, Height: 600, BitDepth: 32, RefreshHz: 60}
	if err := ch.SetMode(ctx, bad); !errors.Is(err, display.ErrFailed) {
		t.Fatalf("SetMode(bad) error = %v, want failed", err)
	}

	fm := p.Monitor("FAKE-1")
	if fm.Calls("set_brightness") != 1 || fm.Calls("brightness") != 1 {
		t.Errorf("calls = %d/%d, want 1/1", fm.Calls("set_brightness"), fm.Calls("brightness"))
	}
}

func TestFakeMonitorFaultsAndIgnore(t *testing.T) {
	p := NewFakeProvider(1)
	outs, _ := p.Enumerate(context.Background())
	ch := outs[0].Channel
	fm := p.Monitor("FAKE-1")
	ctx := context.Background()

	fm.Fail("set_scale", display.ErrTransient)
	if err := ch.SetScale(ctx, 150); !errors.Is(err, display.ErrTransient) {
		t.Fatalf("first SetScale error = %v, want transient", err)
	}
	if err := ch.SetScale(ctx, 150); err != nil {
		t.Fatalf("second SetScale: %v", err)
	}

	fm.Ignore(display.AttrOrientation)
	if err := ch.SetOrientation(ctx, display.Portrait); err != nil {
		t.Fatalf("SetOrientation: %v", err)
	}
	if got := fm.State().Orientation; got != display.Landscape {
		t.Fatalf("orientation = %d, want ignored write", got)
	}

	fm.Disable(display.AttrHDR)
	if err := ch.SetHDR(ctx, true); !errors.Is(err, display.ErrUnsupported) {
		t.Fatalf("SetHDR error = %v, want unsupported", err)
	}
	if ch.Capabilities().Has(display.AttrHDR) {
		t.Fatalf("capabilities still list hdr")
	}
}

func TestFakeDetachReportsDeviceGone(t *testing.T) {
	p := NewFakeProvider(2)
	outs, _ := p.Enumerate(context.Background())
	ch := outs[1].Channel

	if !p.Detach("FAKE-2") {
		t.Fatalf("Detach returned false")
	}
	if _, err := ch.Brightness(context.Background()); !errors.Is(err, display.ErrDeviceGone) {
		t.Fatalf("Brightness error = %v, want device gone", err)
	}
	outs, _ = p.Enumerate(context.Background())
	if len(outs) != 1 {
		t.Fatalf("monitors after detach = %d, want 1", len(outs))
	}
}

func TestFakeOverlapDetector(t *testing.T) {
	p := NewFakeProvider(1)
	p.SetLatency(20 * time.Millisecond)
	outs, _ := p.Enumerate(context.Background())
	ch := outs[0].Channel

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_ = ch.SetBrightness(context.Background(), v)
		}(i * 10)
	}
	wg.Wait()

	if got := p.Monitor("FAKE-1").MaxConcurrentWrites(); got < 2 {
		t.Fatalf("MaxConcurrentWrites() = %d, want unserialized writes to overlap", got)
	}
}

func TestFakeGlitch(t *testing.T) {
	p := NewFakeProvider(1)
	p.Monitor("FAKE-1").Glitch(1)

	outs, _ := p.Enumerate(context.Background())
	if outs[0].Monitor.HasMode(outs[0].Monitor.Current) {
		t.Fatalf("glitched enumeration reported a catalog mode")
	}
	outs, _ = p.Enumerate(context.Background())
	if !outs[0].Monitor.HasMode(outs[0].Monitor.Current) {
		t.Fatalf("glitch lasted longer than one enumeration")
	}
}

func TestFakeEnumerateCancelled(t *testing.T) {
	p := NewFakeProvider(2)
	p.SetLatency(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Enumerate(ctx); !errors.Is(err, display.ErrTransient) {
		t.Fatalf("Enumerate error = %v, want transient on deadline", err)
	}
}

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		name       string
		m          display.Monitor
		candidates []string
		want       string
	}{
		{"edid name", display.Monitor{Name: "DP-1"}, []string{"DELL U2720Q", "Dell 27"}, "DELL U2720Q"},
		{"second candidate", display.Monitor{Name: "DP-1"}, []string{" ", "Dell 27"}, "Dell 27"},
		{"vendor model", display.Monitor{Name: "DP-1", Manufacturer: "GSM", Model: "GSM 5B7F"}, nil, "GSM GSM 5B7F"},
		{"built in", display.Monitor{Name: "eDP-1", BuiltIn: true}, nil, "Built-in Display"},
		{"connector", display.Monitor{Name: "HDMI-1"}, nil, "HDMI-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := friendlyName(tt.m, tt.candidates...); got != tt.want {
				t.Fatalf("friendlyName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(context.Background(), Options{Backend: "wayland-magic"}); err == nil {
		t.Fatalf("New() accepted unknown backend")
	}
	p, err := New(context.Background(), Options{Backend: "fake", FakeMonitors: 2})
	if err != nil {
		t.Fatalf("New(fake): %v", err)
	}
	if p.Name() != "fake" {
		t.Fatalf("Name() = %q, want fake", p.Name())
	}
}
