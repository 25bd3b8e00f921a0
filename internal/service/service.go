// Package service exposes the display control operations used by every
// front-end: IPC, MCP, HTTP and the CLI.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/coordinator"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/platform"
	"github.com/1broseidon/monctl/internal/registry"
)

// DefaultIdentifyDuration is how long identify labels stay on screen.
const DefaultIdentifyDuration = 2500 * time.Millisecond

// Result describes a verified mutation.
type Result = coordinator.Result

// Config tunes the service.
type Config struct {
	IdentifyDuration time.Duration
	ReadTimeout      time.Duration
	Logger           *slog.Logger
}

// Status summarizes the running service.
type Status struct {
	Backend     string    `json:"backend"`
	Generation  uint64    `json:"generation"`
	TakenAt     time.Time `json:"taken_at"`
	Monitors    int       `json:"monitors"`
	BusyPolicy  string    `json:"busy_policy"`
	Subscribers int       `json:"subscribers"`
}

// Service ties the registry, coordinator and event hub together.
type Service struct {
	provider platform.Provider
	registry *registry.Registry
	coord    *coordinator.Coordinator
	hub      *events.Hub
	config   Config
	logger   *slog.Logger
}

// New creates a service.
func New(provider platform.Provider, reg *registry.Registry, coord *coordinator.Coordinator, hub *events.Hub, config Config) *Service {
	if config.IdentifyDuration <= 0 {
		config.IdentifyDuration = DefaultIdentifyDuration
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 3 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		registry: reg,
		coord:    coord,
		hub:      hub,
		config:   config,
		logger:   logger,
	}
}

// Status returns a summary of the current state.
func (s *Service) Status() Status {
	snap := s.registry.Current()
	return Status{
		Backend:     s.provider.Name(),
		Generation:  snap.Generation,
		TakenAt:     snap.TakenAt,
		Monitors:    len(snap.Monitors),
		BusyPolicy:  string(s.coord.Config().Policy),
		Subscribers: s.hub.Subscribers(),
	}
}

// EnumerateMonitors returns the latest snapshot. It enumerates first when
// refresh is set or nothing has been enumerated yet.
func (s *Service) EnumerateMonitors(ctx context.Context, refresh bool) (*display.Snapshot, error) {
	snap := s.registry.Current()
	if refresh || snap.Generation == 0 {
		return s.registry.Refresh(ctx)
	}
	return snap, nil
}

// Resolve maps a monitor reference to its ID. A reference is an ID or a
// 1-based index into the current snapshot, as shown by identify.
func (s *Service) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	snap := s.registry.Current()
	if _, ok := snap.Monitor(ref); ok {
		return ref, nil
	}
	if n, err := strconv.Atoi(ref); err == nil {
		if n >= 1 && n <= len(snap.Monitors) {
			return snap.Monitors[n-1].ID, nil
		}
		return "", display.Errorf(display.KindInvalidRequest, "resolve", ref, "monitor index %d out of range 1-%d", n, len(snap.Monitors))
	}
	for _, m := range snap.Monitors {
		if strings.EqualFold(m.ID, ref) || strings.EqualFold(m.Name, ref) {
			return m.ID, nil
		}
	}
	return "", display.Errorf(display.KindDeviceGone, "resolve", ref, "no such monitor")
}

// Monitor returns one monitor from the latest snapshot.
func (s *Service) Monitor(ctx context.Context, ref string) (display.Monitor, error) {
	if _, err := s.EnumerateMonitors(ctx, false); err != nil {
		return display.Monitor{}, err
	}
	id, err := s.Resolve(ref)
	if err != nil {
		return display.Monitor{}, err
	}
	m, _ := s.registry.Monitor(id)
	return m, nil
}

// SetResolution switches to w x h at hz. hz 0 picks the highest rate.
func (s *Service) SetResolution(ctx context.Context, ref string, w, h, hz int) (*Result, error) {
	return s.apply(ctx, ref, display.AttrMode, display.Mode{Width: w, Height: h, RefreshHz: hz})
}

// SetBrightness sets brightness in percent.
func (s *Service) SetBrightness(ctx context.Context, ref string, percent int) (*Result, error) {
	return s.apply(ctx, ref, display.AttrBrightness, percent)
}

// SetScale sets the scale factor in percent.
func (s *Service) SetScale(ctx context.Context, ref string, percent int) (*Result, error) {
	return s.apply(ctx, ref, display.AttrScale, percent)
}

// SetOrientation rotates the monitor to degrees (0, 90, 180 or 270).
func (s *Service) SetOrientation(ctx context.Context, ref string, degrees int) (*Result, error) {
	return s.apply(ctx, ref, display.AttrOrientation, display.Orientation(degrees))
}

// SetPower turns the monitor on or off.
func (s *Service) SetPower(ctx context.Context, ref string, on bool) (*Result, error) {
	state := display.PowerOff
	if on {
		state = display.PowerOn
	}
	return s.apply(ctx, ref, display.AttrPower, state)
}

// SetHDR enables or disables HDR output.
func (s *Service) SetHDR(ctx context.Context, ref string, enable bool) (*Result, error) {
	return s.apply(ctx, ref, display.AttrHDR, enable)
}

// SetInputSource switches to an MCCS input code.
func (s *Service) SetInputSource(ctx context.Context, ref string, code uint8) (*Result, error) {
	return s.apply(ctx, ref, display.AttrInput, code)
}

func (s *Service) apply(ctx context.Context, ref string, attr display.Attribute, value any) (*Result, error) {
	if _, err := s.EnumerateMonitors(ctx, false); err != nil {
		return nil, err
	}
	id, err := s.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.coord.Apply(ctx, coordinator.Request{DeviceID: id, Attribute: attr, Value: value})
}

// GetBrightness reads brightness from the hardware.
func (s *Service) GetBrightness(ctx context.Context, ref string) (display.Brightness, error) {
	id, ch, err := s.channelFor(ctx, ref, display.AttrBrightness, "get_brightness")
	if err != nil {
		return display.Brightness{}, err
	}
	readCtx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
	defer cancel()
	v, err := ch.Brightness(readCtx)
	if err != nil {
		return display.Brightness{}, display.Wrap(err, "get_brightness", id)
	}
	return display.Brightness{Percent: v, Supported: true}, nil
}

// GetInputSource reads the active input code from the hardware.
func (s *Service) GetInputSource(ctx context.Context, ref string) (uint8, error) {
	id, ch, err := s.channelFor(ctx, ref, display.AttrInput, "get_input")
	if err != nil {
		return 0, err
	}
	readCtx, cancel := context.WithTimeout(ctx, s.config.ReadTimeout)
	defer cancel()
	code, err := ch.InputSource(readCtx)
	if err != nil {
		return 0, display.Wrap(err, "get_input", id)
	}
	return code, nil
}

// GetCapabilities returns the raw DDC/CI capability string.
func (s *Service) GetCapabilities(ctx context.Context, ref string) (string, error) {
	id, ch, err := s.channelFor(ctx, ref, "", "get_caps")
	if err != nil {
		return "", err
	}
	reporter, ok := ch.(channel.CapabilityReporter)
	if !ok {
		return "", display.Errorf(display.KindUnsupported, "get_caps", id, "monitor has no DDC/CI channel")
	}
	// Capability strings arrive in 32 byte fragments; allow for a slow read.
	readCtx, cancel := context.WithTimeout(ctx, 4*s.config.ReadTimeout)
	defer cancel()
	caps, err := reporter.CapabilityString(readCtx)
	if err != nil {
		return "", display.Wrap(err, "get_caps", id)
	}
	return caps, nil
}

// channelFor resolves ref and returns its channel. An empty attr skips the
// capability check.
func (s *Service) channelFor(ctx context.Context, ref string, attr display.Attribute, op string) (string, channel.Channel, error) {
	if _, err := s.EnumerateMonitors(ctx, false); err != nil {
		return "", nil, err
	}
	id, err := s.Resolve(ref)
	if err != nil {
		return "", nil, err
	}
	m, ok := s.registry.Monitor(id)
	if !ok {
		return "", nil, display.Errorf(display.KindDeviceGone, op, id, "monitor not attached")
	}
	if attr != "" && !m.Capabilities.Has(attr) {
		return "", nil, display.Errorf(display.KindUnsupported, op, id, "%s control is not available for this monitor", attr)
	}
	ch, ok := s.registry.Channel(id)
	if !ok {
		return "", nil, display.Errorf(display.KindDeviceGone, op, id, "no channel bound")
	}
	return id, ch, nil
}

// IdentifyMonitors shows a numbered label on every monitor.
func (s *Service) IdentifyMonitors(ctx context.Context) error {
	ident, ok := s.provider.(platform.Identifier)
	if !ok {
		return display.Errorf(display.KindUnsupported, "identify", "", "backend %s cannot identify monitors", s.provider.Name())
	}
	snap, err := s.EnumerateMonitors(ctx, false)
	if err != nil {
		return err
	}
	if err := ident.Identify(ctx, snap.Monitors, s.config.IdentifyDuration); err != nil {
		var de *display.Error
		if errors.As(err, &de) {
			return err
		}
		return display.Wrap(err, "identify", "")
	}
	return nil
}

// Subscribe registers for topology change events.
func (s *Service) Subscribe() (<-chan events.Event, func()) {
	return s.hub.Subscribe()
}
