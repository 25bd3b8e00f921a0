// Package platform discovers attached monitors and binds each one to the
// channel that controls it on the current system.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
)

// Output pairs the static description of a monitor with its channel.
// Live attributes (brightness, power, HDR, input) are read by the registry.
type Output struct {
	Monitor display.Monitor
	Channel channel.Channel
}

// Provider abstracts monitor discovery across platforms.
type Provider interface {
	Name() string
	Enumerate(ctx context.Context) ([]Output, error)
	Close() error
}

// Identifier shows a transient label on every monitor.
type Identifier interface {
	Identify(ctx context.Context, monitors []display.Monitor, duration time.Duration) error
}

// EventSourcer is implemented by providers that can report topology changes.
type EventSourcer interface {
	Sources() []events.Source
}

// DefaultScales are offered when the platform does not report its own list.
var DefaultScales = []int{100, 125, 150, 175, 200, 225, 250, 300, 350, 400, 450, 500}

// Options selects and tunes the provider.
type Options struct {
	// Backend is one of auto, x11, mutter or fake.
	Backend string
	// Display overrides $DISPLAY for the X11 backend.
	Display string

	DDC           bool
	DDCSysfsRoot  string
	DDCWriteDelay time.Duration
	DDCReadDelay  time.Duration
	DDCRetries    int
	Backlight     bool
	BacklightRoot string
	Uevents       bool
	FakeMonitors  int
	FakeLatency   time.Duration
	Logger        *slog.Logger
}

// New opens the provider selected by opts.Backend.
func New(ctx context.Context, opts Options) (Provider, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "fake":
		p := NewFakeProvider(opts.FakeMonitors)
		p.SetLatency(opts.FakeLatency)
		return p, nil
	case "", "auto", "x11", "mutter":
		return newSystemProvider(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown display backend %q", opts.Backend)
	}
}

// friendlyName picks the most descriptive label available.
func friendlyName(m display.Monitor, candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	if m.Manufacturer != "" && m.Model != "" {
		return m.Manufacturer + " " + m.Model
	}
	if m.BuiltIn {
		return "Built-in Display"
	}
	return m.Name
}
