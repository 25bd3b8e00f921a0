package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/1broseidon/monctl/internal/catalog"
	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
)

// FakeProvider serves in-memory monitors. It backs the fake display backend
// and the tests of every layer above the hardware channels.
type FakeProvider struct {
	mu           sync.Mutex
	monitors     []*FakeMonitor
	source       *events.ManualSource
	enumerations int
	enumErr      error
	identified   int
}

var (
	_ Provider     = (*FakeProvider)(nil)
	_ Identifier   = (*FakeProvider)(nil)
	_ EventSourcer = (*FakeProvider)(nil)
)

var fakeModes = []display.Mode{
	{Width: 1920, Height: 1080, BitDepth: 32, RefreshHz: 60},
	{Width: 2560, Height: 1440, BitDepth: 32, RefreshHz: 60},
	{Width: 3840, Height: 2160, BitDepth: 32, RefreshHz: 60},
}

// NewFakeProvider returns a provider with n side-by-side monitors (4 when
// n <= 0). The first one is primary at 125% scale.
func NewFakeProvider(n int) *FakeProvider {
	if n <= 0 {
		n = 4
	}
	p := &FakeProvider{source: events.NewManualSource("fake")}
	for i := 0; i < n; i++ {
		scale := 100
		if i == 0 {
			scale = 125
		}
		p.monitors = append(p.monitors, NewFakeMonitor(display.Monitor{
			ID:           fmt.Sprintf("FAKE-%d", i+1),
			Name:         fmt.Sprintf("FAKE-%d", i+1),
			FriendlyName: fmt.Sprintf("Fake Monitor %d", i+1),
			Manufacturer: "FAK",
			Model:        "Fake 27",
			Serial:       fmt.Sprintf("F%05d", i+1),
			Primary:      i == 0,
			Connection:   display.ConnDisplayPort,
			Position:     display.Point{X: i * 1920},
			Current:      fakeModes[0],
			Modes:        fakeModes,
			Scale:        scale,
			Scales:       DefaultScales,
			Orientation:  display.Landscape,
			Orientations: []display.Orientation{display.Landscape, display.Portrait, display.LandscapeFlipped, display.PortraitFlipped},
			Brightness:   display.Brightness{Percent: 50, Supported: true},
			Power:        display.PowerOn,
			HDR:          display.HDROff,
			Input:        display.Input{Code: 0x0F, Supported: true},
			Inputs:       []uint8{0x0F, 0x11, 0x12},
		}))
	}
	return p
}

func (p *FakeProvider) Name() string { return "fake" }

func (p *FakeProvider) Close() error { return nil }

// Enumerate returns the attached fake monitors.
func (p *FakeProvider) Enumerate(ctx context.Context) ([]Output, error) {
	p.mu.Lock()
	p.enumerations++
	err := p.enumErr
	monitors := append([]*FakeMonitor(nil), p.monitors...)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, display.Wrap(err, "enumerate", "")
	}

	out := make([]Output, 0, len(monitors))
	for _, m := range monitors {
		latency := m.Latency()
		if latency > 0 {
			select {
			case <-time.After(latency):
			case <-ctx.Done():
				return nil, display.Wrap(ctx.Err(), "enumerate", "")
			}
		}
		out = append(out, Output{Monitor: m.describe(), Channel: &FakeChannel{m: m}})
	}
	return out, nil
}

// Enumerations returns how many times Enumerate was called.
func (p *FakeProvider) Enumerations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enumerations
}

// FailEnumerate makes Enumerate return err until it is called with nil.
func (p *FakeProvider) FailEnumerate(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enumErr = err
}

// SetLatency applies d to every hardware call and enumeration.
func (p *FakeProvider) SetLatency(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.monitors {
		m.SetLatency(d)
	}
}

// Monitor returns the fake behind id.
func (p *FakeProvider) Monitor(id string) *FakeMonitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.monitors {
		if m.id == id {
			return m
		}
	}
	return nil
}

// Attach plugs in a new monitor and fires a hotplug notification.
func (p *FakeProvider) Attach(m display.Monitor) *FakeMonitor {
	fm := NewFakeMonitor(m)
	p.mu.Lock()
	p.monitors = append(p.monitors, fm)
	p.mu.Unlock()
	p.source.Fire()
	return fm
}

// Detach unplugs a monitor. Channels already handed out report DeviceGone.
func (p *FakeProvider) Detach(id string) bool {
	p.mu.Lock()
	var found *FakeMonitor
	for i, m := range p.monitors {
		if m.id == id {
			found = m
			p.monitors = append(p.monitors[:i], p.monitors[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	if found == nil {
		return false
	}
	found.mu.Lock()
	found.gone = true
	found.mu.Unlock()
	p.source.Fire()
	return true
}

// Hotplug fires a change notification without altering any monitor.
func (p *FakeProvider) Hotplug() {
	p.source.Fire()
}

// Sources exposes the manual hotplug source.
func (p *FakeProvider) Sources() []events.Source {
	return []events.Source{p.source}
}

// Identify records the request.
func (p *FakeProvider) Identify(ctx context.Context, monitors []display.Monitor, duration time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identified++
	return nil
}

// Identified returns the number of Identify calls.
func (p *FakeProvider) Identified() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identified
}

// FakeMonitor is one simulated monitor with fault injection and call
// statistics.
type FakeMonitor struct {
	id string

	mu           sync.Mutex
	state        display.Monitor
	latency      time.Duration
	faults       map[string][]error
	ignored      map[display.Attribute]bool
	calls        map[string]int
	active       int
	maxActive    int
	activeWrites int
	maxWrites    int
	glitches     int
	gone         bool
	unsupported  map[display.Attribute]bool
}

// NewFakeMonitor creates a fake from its initial state.
func NewFakeMonitor(m display.Monitor) *FakeMonitor {
	m = m.Clone()
	m.Modes = catalog.Normalize(m.Modes)
	if m.MaxNative == (display.Mode{}) {
		m.MaxNative = catalog.MaxNative(m.Modes)
	}
	return &FakeMonitor{
		id:          m.ID,
		state:       m,
		faults:      make(map[string][]error),
		ignored:     make(map[display.Attribute]bool),
		calls:       make(map[string]int),
		unsupported: make(map[display.Attribute]bool),
	}
}

// ID returns the monitor identifier.
func (m *FakeMonitor) ID() string { return m.id }

// State returns a copy of the current simulated hardware state.
func (m *FakeMonitor) State() display.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Latency returns the simulated per-call latency.
func (m *FakeMonitor) Latency() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latency
}

// SetLatency sets the simulated per-call latency.
func (m *FakeMonitor) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

// Fail queues errors returned by the next calls of op, e.g. "set_brightness".
func (m *FakeMonitor) Fail(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], errs...)
}

// Ignore makes writes of attr succeed without changing the hardware state.
func (m *FakeMonitor) Ignore(attr display.Attribute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ignored[attr] = true
}

// Disable removes attr from the monitor's capabilities.
func (m *FakeMonitor) Disable(attr display.Attribute) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsupported[attr] = true
}

// Glitch makes the next n enumerations report a current mode that is not in
// the catalog, as drivers sometimes do mid modeset.
func (m *FakeMonitor) Glitch(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.glitches = n
}

// Set changes the simulated hardware behind the service's back.
func (m *FakeMonitor) Set(edit func(*display.Monitor)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edit(&m.state)
}

// Calls returns how often op was invoked.
func (m *FakeMonitor) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of hardware calls of any kind.
func (m *FakeMonitor) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// Writes returns the number of set_* invocations.
func (m *FakeMonitor) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for op, c := range m.calls {
		if strings.HasPrefix(op, "set_") {
			n += c
		}
	}
	return n
}

// MaxConcurrentWrites reports the highest number of overlapping set_* calls
// observed on this monitor.
func (m *FakeMonitor) MaxConcurrentWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxWrites
}

// MaxConcurrent reports the highest number of overlapping calls of any kind.
func (m *FakeMonitor) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

func (m *FakeMonitor) capabilities() display.Capabilities {
	caps := display.NewCapabilities(display.AllAttributes...)
	for a := range m.unsupported {
		delete(caps, a)
	}
	return caps
}

func (m *FakeMonitor) describe() display.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.state.Clone()
	out.Capabilities = m.capabilities()
	out.Brightness = display.Brightness{}
	out.Input = display.Input{}
	out.Power = display.PowerUnknown
	out.HDR = display.HDRUnsupported
	if m.glitches > 0 {
		m.glitches--
		out.Current = display.Mode{Width: 1, Height: 1, BitDepth: 32, RefreshHz: 1}
	}
	return out
}

func (m *FakeMonitor) enter(ctx context.Context, op string, attr display.Attribute) (func(), error) {
	write := strings.HasPrefix(op, "set_")

	m.mu.Lock()
	m.calls[op]++
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	if write {
		m.activeWrites++
		if m.activeWrites > m.maxWrites {
			m.maxWrites = m.activeWrites
		}
	}
	latency := m.latency
	gone := m.gone
	unsupported := m.unsupported[attr]
	var fault error
	if q := m.faults[op]; len(q) > 0 {
		fault = q[0]
		m.faults[op] = q[1:]
	}
	m.mu.Unlock()

	done := func() {
		m.mu.Lock()
		m.active--
		if write {
			m.activeWrites--
		}
		m.mu.Unlock()
	}

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			done()
			return nil, display.Wrap(ctx.Err(), op, m.id)
		}
	}
	switch {
	case gone:
		done()
		return nil, display.Errorf(display.KindDeviceGone, op, m.id, "monitor disconnected")
	case unsupported:
		done()
		return nil, display.Errorf(display.KindUnsupported, op, m.id, "%s not supported", attr)
	case fault != nil:
		done()
		return nil, fault
	}
	return done, nil
}

// FakeChannel drives a FakeMonitor.
type FakeChannel struct {
	m *FakeMonitor
}

var _ channel.Channel = (*FakeChannel)(nil)

func (c *FakeChannel) Capabilities() display.Capabilities {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	return c.m.capabilities()
}

func (c *FakeChannel) read(ctx context.Context, op string, attr display.Attribute, get func(*display.Monitor)) error {
	done, err := c.m.enter(ctx, op, attr)
	if err != nil {
		return err
	}
	defer done()
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	get(&c.m.state)
	return nil
}

func (c *FakeChannel) write(ctx context.Context, op string, attr display.Attribute, set func(*display.Monitor)) error {
	done, err := c.m.enter(ctx, op, attr)
	if err != nil {
		return err
	}
	defer done()
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	if !c.m.ignored[attr] {
		set(&c.m.state)
	}
	return nil
}

func (c *FakeChannel) Mode(ctx context.Context) (display.Mode, error) {
	var mode display.Mode
	err := c.read(ctx, "mode", display.AttrMode, func(s *display.Monitor) { mode = s.Current })
	return mode, err
}

func (c *FakeChannel) SetMode(ctx context.Context, mode display.Mode) error {
	if !catalog.Contains(c.m.State().Modes, mode) {
		return display.Errorf(display.KindFailed, "set_mode", c.m.id, "mode %s rejected by device", mode)
	}
	return c.write(ctx, "set_mode", display.AttrMode, func(s *display.Monitor) { s.Current = mode })
}

func (c *FakeChannel) Brightness(ctx context.Context) (int, error) {
	var v int
	err := c.read(ctx, "brightness", display.AttrBrightness, func(s *display.Monitor) { v = s.Brightness.Percent })
	return v, err
}

func (c *FakeChannel) SetBrightness(ctx context.Context, percent int) error {
	return c.write(ctx, "set_brightness", display.AttrBrightness, func(s *display.Monitor) {
		s.Brightness = display.Brightness{Percent: percent, Supported: true}
	})
}

func (c *FakeChannel) Scale(ctx context.Context) (int, error) {
	var v int
	err := c.read(ctx, "scale", display.AttrScale, func(s *display.Monitor) { v = s.Scale })
	return v, err
}

func (c *FakeChannel) SetScale(ctx context.Context, percent int) error {
	return c.write(ctx, "set_scale", display.AttrScale, func(s *display.Monitor) { s.Scale = percent })
}

func (c *FakeChannel) Orientation(ctx context.Context) (display.Orientation, error) {
	var v display.Orientation
	err := c.read(ctx, "orientation", display.AttrOrientation, func(s *display.Monitor) { v = s.Orientation })
	return v, err
}

func (c *FakeChannel) SetOrientation(ctx context.Context, o display.Orientation) error {
	return c.write(ctx, "set_orientation", display.AttrOrientation, func(s *display.Monitor) { s.Orientation = o })
}

func (c *FakeChannel) Power(ctx context.Context) (display.PowerState, error) {
	var v display.PowerState
	err := c.read(ctx, "power", display.AttrPower, func(s *display.Monitor) { v = s.Power })
	return v, err
}

func (c *FakeChannel) SetPower(ctx context.Context, state display.PowerState) error {
	return c.write(ctx, "set_power", display.AttrPower, func(s *display.Monitor) { s.Power = state })
}

func (c *FakeChannel) HDR(ctx context.Context) (bool, error) {
	var v bool
	err := c.read(ctx, "hdr", display.AttrHDR, func(s *display.Monitor) { v = s.HDR == display.HDROn })
	return v, err
}

func (c *FakeChannel) SetHDR(ctx context.Context, enable bool) error {
	return c.write(ctx, "set_hdr", display.AttrHDR, func(s *display.Monitor) {
		s.HDR = display.HDROff
		if enable {
			s.HDR = display.HDROn
		}
	})
}

func (c *FakeChannel) InputSource(ctx context.Context) (uint8, error) {
	var v uint8
	err := c.read(ctx, "input", display.AttrInput, func(s *display.Monitor) { v = s.Input.Code })
	return v, err
}

func (c *FakeChannel) SetInputSource(ctx context.Context, code uint8) error {
	return c.write(ctx, "set_input", display.AttrInput, func(s *display.Monitor) {
		s.Input = display.Input{Code: code, Supported: true}
	})
}

// CapabilityString returns a synthetic MCCS capability string.
func (c *FakeChannel) CapabilityString(ctx context.Context) (string, error) {
	st := c.m.State()
	var inputs []string
	for _, code := range st.Inputs {
		inputs = append(inputs, fmt.Sprintf("%02X", code))
	}
	return fmt.Sprintf("(prot(monitor)type(lcd)model(%s)vcp(10 60(%s) D6(01 05)))", st.Model, strings.Join(inputs, " ")), nil
}
