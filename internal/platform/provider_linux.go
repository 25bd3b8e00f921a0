//go:build linux

package platform

import (
	"context"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/monctl/internal/backlight"
	"github.com/1broseidon/monctl/internal/catalog"
	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/ddc"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/edid"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/mutter"
	"github.com/1broseidon/monctl/internal/x11"
)

// probeRetry is how long a failed DDC probe is remembered before the
// monitor is asked again.
const probeRetry = time.Minute

// LinuxProvider composes the X11, Mutter, DDC/CI and backlight backends into
// one channel per monitor.
type LinuxProvider struct {
	opts   Options
	logger *slog.Logger

	x      *x11.Connection
	mutter *mutter.Client

	mu        sync.Mutex
	buses     map[string]*ddc.Bus
	probes    map[string]probeResult
	backlight *backlight.Device
	blChecked bool
}

type probeResult struct {
	ok     bool
	inputs []uint8
	at     time.Time
}

var (
	_ Provider     = (*LinuxProvider)(nil)
	_ Identifier   = (*LinuxProvider)(nil)
	_ EventSourcer = (*LinuxProvider)(nil)
)

func newSystemProvider(ctx context.Context, opts Options) (Provider, error) {
	return NewLinuxProvider(ctx, opts)
}

// NewLinuxProvider connects to the display server selected by opts.Backend.
// In auto mode the session type decides which server is tried first.
func NewLinuxProvider(ctx context.Context, opts Options) (*LinuxProvider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &LinuxProvider{
		opts:   opts,
		logger: logger,
		buses:  make(map[string]*ddc.Bus),
		probes: make(map[string]probeResult),
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" || backend == "auto" {
		backend = detectSession()
		if err := p.connect(ctx, backend); err != nil {
			fallback := "x11"
			if backend == "x11" {
				fallback = "mutter"
			}
			logger.Warn("display backend unavailable, trying fallback", "backend", backend, "fallback", fallback, "error", err)
			if ferr := p.connect(ctx, fallback); ferr != nil {
				return nil, fmt.Errorf("no display backend available: %w", err)
			}
		}
		return p, nil
	}
	if err := p.connect(ctx, backend); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *LinuxProvider) connect(ctx context.Context, backend string) error {
	switch backend {
	case "mutter":
		m, err := mutter.Connect(ctx)
		if err != nil {
			return fmt.Errorf("failed to connect to mutter: %w", err)
		}
		p.mutter = m
	case "x11":
		conn, err := x11.NewConnection(p.opts.Display)
		if err != nil {
			return fmt.Errorf("failed to connect to X11: %w", err)
		}
		p.x = conn
		// GNOME on X11 still exposes scale and HDR only through Mutter.
		if m, err := mutter.Connect(ctx); err == nil {
			p.mutter = m
		} else {
			p.logger.Debug("mutter not available on X11 session", "error", err)
		}
	default:
		return fmt.Errorf("unknown display backend %q", backend)
	}
	return nil
}

func detectSession() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" || strings.EqualFold(os.Getenv("XDG_SESSION_TYPE"), "wayland") {
		return "mutter"
	}
	return "x11"
}

// Name reports which display server drives mode changes.
func (p *LinuxProvider) Name() string {
	if p.x != nil {
		return "x11"
	}
	return "mutter"
}

// Close releases the display server connections.
func (p *LinuxProvider) Close() error {
	if p.x != nil {
		p.x.Close()
	}
	if p.mutter != nil {
		return p.mutter.Close()
	}
	return nil
}

// Enumerate lists connected monitors with their composed channels.
func (p *LinuxProvider) Enumerate(ctx context.Context) ([]Output, error) {
	var ports []ddc.Port
	if p.opts.DDC {
		var err error
		ports, err = ddc.Discover(p.opts.DDCSysfsRoot)
		if err != nil {
			p.logger.Debug("ddc discovery failed", "error", err)
		}
	}
	if p.x != nil {
		return p.enumerateX11(ctx, ports)
	}
	return p.enumerateMutter(ctx, ports)
}

func (p *LinuxProvider) enumerateX11(ctx context.Context, ports []ddc.Port) ([]Output, error) {
	outs, err := p.x.Outputs()
	if err != nil {
		return nil, display.Wrap(err, "enumerate", "")
	}

	var extra map[string]mutter.Output
	if p.mutter != nil {
		if mouts, err := p.mutter.Outputs(ctx); err == nil {
			extra = make(map[string]mutter.Output, len(mouts))
			for _, mo := range mouts {
				extra[mo.Connector] = mo
			}
		} else {
			p.logger.Debug("mutter state unavailable", "error", err)
		}
	}

	result := make([]Output, 0, len(outs))
	for _, o := range outs {
		m := display.Monitor{
			ID:           o.Name,
			Name:         o.Name,
			Primary:      o.Primary,
			Connection:   display.ConnectionFromConnector(o.Name),
			Position:     display.Point{X: o.X, Y: o.Y},
			Current:      o.Current,
			Modes:        catalog.Normalize(o.Modes),
			Orientation:  o.Orientation,
			Orientations: o.Orientations,
			Scale:        100,
			HDR:          display.HDRUnsupported,
		}
		m.BuiltIn = m.Connection == display.ConnInternal
		m.MaxNative = catalog.MaxNative(m.Modes)
		info := applyEDID(&m, o.EDID)

		comp := channel.NewComposite().Route(p.x.NewChannel(o), display.AttrMode, display.AttrOrientation)
		displayName := ""
		if mo, ok := extra[o.Name]; ok {
			m.Scale = mo.Scale
			m.Scales = mo.Scales
			m.HDR = mo.HDR
			m.BuiltIn = m.BuiltIn || mo.BuiltIn
			displayName = mo.DisplayName
			comp.Route(p.mutter.NewChannel(o.Name), display.AttrScale, display.AttrHDR)
		}
		p.routeBrightness(ctx, &m, comp, o.EDID, ports)
		m.FriendlyName = friendlyName(m, info.Name, displayName)
		m.Capabilities = comp.Capabilities()

		result = append(result, Output{Monitor: m, Channel: comp})
	}
	return result, nil
}

func (p *LinuxProvider) enumerateMutter(ctx context.Context, ports []ddc.Port) ([]Output, error) {
	outs, err := p.mutter.Outputs(ctx)
	if err != nil {
		return nil, display.Wrap(err, "enumerate", "")
	}

	result := make([]Output, 0, len(outs))
	for _, o := range outs {
		m := display.Monitor{
			ID:           o.Connector,
			Name:         o.Connector,
			Manufacturer: o.Vendor,
			Model:        o.Product,
			Serial:       o.Serial,
			Primary:      o.Primary,
			BuiltIn:      o.BuiltIn,
			Connection:   display.ConnectionFromConnector(o.Connector),
			Position:     display.Point{X: o.X, Y: o.Y},
			Current:      o.Current,
			Modes:        catalog.Normalize(o.Modes),
			Scale:        o.Scale,
			Scales:       o.Scales,
			Orientation:  o.Orientation,
			Orientations: o.Orientations,
			HDR:          o.HDR,
		}
		if m.BuiltIn {
			m.Connection = display.ConnInternal
		}
		m.MaxNative = catalog.MaxNative(m.Modes)

		// Mutter does not hand out raw EDID; sysfs has it for the same connector.
		var raw []byte
		if port, ok := ddc.MatchConnector(ports, o.Connector); ok {
			raw = port.EDID
		}
		info := applyEDID(&m, raw)

		comp := channel.NewComposite().Route(p.mutter.NewChannel(o.Connector), mutter.Attributes()...)
		p.routeBrightness(ctx, &m, comp, raw, ports)
		m.FriendlyName = friendlyName(m, info.Name, o.DisplayName)
		m.Capabilities = comp.Capabilities()

		result = append(result, Output{Monitor: m, Channel: comp})
	}
	return result, nil
}

// applyEDID fills identity fields from a raw EDID block. Fields already set
// by the display server are kept.
func applyEDID(m *display.Monitor, raw []byte) edid.Info {
	if len(raw) == 0 {
		return edid.Info{}
	}
	info, err := edid.Parse(raw)
	if err != nil {
		return edid.Info{}
	}
	if m.Manufacturer == "" {
		m.Manufacturer = info.Manufacturer
	}
	if m.Model == "" {
		m.Model = info.Model()
	}
	if m.Serial == "" {
		m.Serial = info.Serial()
	}
	m.YearOfManufacture = info.Year
	m.WeekOfManufacture = info.Week
	if !info.Digital && m.Connection == display.ConnUnknown {
		m.Connection = display.ConnVGA
	}
	return info
}

// routeBrightness attaches the backlight to built-in panels and DDC/CI to
// external monitors that answered a probe.
func (p *LinuxProvider) routeBrightness(ctx context.Context, m *display.Monitor, comp *channel.Composite, raw []byte, ports []ddc.Port) {
	if m.BuiltIn {
		if dev := p.backlightDevice(); dev != nil {
			comp.Route(backlight.NewChannel(m.ID, dev), display.AttrBrightness)
		}
		return
	}
	if !p.opts.DDC {
		return
	}

	port, ok := ddc.MatchEDID(ports, raw)
	if !ok {
		port, ok = ddc.MatchConnector(ports, m.ID)
	}
	if !ok {
		return
	}

	ch := ddc.NewChannel(m.ID, p.bus(port.Bus))
	res := p.probe(ctx, port, ch)
	if !res.ok {
		return
	}
	comp.Route(ch, ddc.Attributes()...)
	m.Inputs = append([]uint8(nil), res.inputs...)
}

func (p *LinuxProvider) bus(path string) *ddc.Bus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.buses[path]; ok {
		return b
	}
	b := ddc.NewBus(path, ddc.Options{
		WriteDelay: p.opts.DDCWriteDelay,
		ReadDelay:  p.opts.DDCReadDelay,
		Retries:    p.opts.DDCRetries,
	})
	p.buses[path] = b
	return b
}

// probe checks once per monitor whether it speaks DDC/CI and which inputs
// it advertises. Failures are retried after probeRetry.
func (p *LinuxProvider) probe(ctx context.Context, port ddc.Port, ch *ddc.Channel) probeResult {
	key := fmt.Sprintf("%s|%08x", port.Bus, crc32.ChecksumIEEE(port.EDID))

	p.mu.Lock()
	cached, ok := p.probes[key]
	p.mu.Unlock()
	if ok && (cached.ok || time.Since(cached.at) < probeRetry) {
		return cached
	}

	res := probeResult{at: time.Now()}
	if err := ch.Probe(ctx); err != nil {
		p.logger.Debug("ddc probe failed", "connector", port.Connector, "bus", port.Bus, "error", err)
	} else {
		res.ok = true
		if caps, err := ch.CapabilityString(ctx); err == nil {
			res.inputs = ddc.InputsFromCapabilities(caps)
		}
		p.logger.Info("ddc/ci monitor found", "connector", port.Connector, "bus", port.Bus, "inputs", len(res.inputs))
	}

	p.mu.Lock()
	p.probes[key] = res
	p.mu.Unlock()
	return res
}

func (p *LinuxProvider) backlightDevice() *backlight.Device {
	if !p.opts.Backlight {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.blChecked {
		p.blChecked = true
		dev, err := backlight.Find(p.opts.BacklightRoot)
		if err != nil {
			p.logger.Debug("no backlight device", "error", err)
		}
		p.backlight = dev
	}
	return p.backlight
}

// Identify draws a numbered label on every monitor. It needs X11; Wayland
// compositors do not let clients place override-redirect windows.
func (p *LinuxProvider) Identify(ctx context.Context, monitors []display.Monitor, duration time.Duration) error {
	if p.x == nil {
		return display.Errorf(display.KindUnsupported, "identify", "", "identify overlay requires an X11 session")
	}
	return p.x.Identify(ctx, identifyLabels(monitors), duration)
}

func identifyLabels(monitors []display.Monitor) []x11.Label {
	labels := make([]x11.Label, 0, len(monitors))
	for i, m := range monitors {
		w, h := m.Current.Width, m.Current.Height
		if m.Orientation.IsPortrait() {
			w, h = h, w
		}
		labels = append(labels, x11.Label{
			X:       m.Position.X,
			Y:       m.Position.Y,
			Width:   w,
			Height:  h,
			Lines:   []string{fmt.Sprintf("%d", i+1), m.FriendlyName, m.Current.Key()},
			Primary: m.Primary,
		})
	}
	return labels
}

// Sources returns the change notification sources for the connected backends.
func (p *LinuxProvider) Sources() []events.Source {
	var sources []events.Source
	if p.x != nil {
		if src, err := x11.NewRandRSource(p.x); err == nil {
			sources = append(sources, src)
		} else {
			p.logger.Warn("randr notifications unavailable", "error", err)
		}
	}
	if p.mutter != nil {
		sources = append(sources, p.mutter.NewSignalSource())
	}
	if p.opts.Uevents {
		sources = append(sources, events.NewUeventSource())
	}
	return sources
}
