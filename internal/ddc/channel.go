package ddc

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"syscall"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
)

const (
	powerOn      = 0x01
	powerHardOff = 0x05
)

// Channel controls brightness, input source and power of one monitor over
// DDC/CI.
type Channel struct {
	channel.Unsupported

	deviceID string
	bus      *Bus

	mu            sync.Mutex
	maxBrightness uint16
}

var (
	_ channel.Channel            = (*Channel)(nil)
	_ channel.CapabilityReporter = (*Channel)(nil)
)

// NewChannel returns a channel for the monitor attached to bus.
func NewChannel(deviceID string, bus *Bus) *Channel {
	return &Channel{deviceID: deviceID, bus: bus}
}

// Attributes lists what a DDC/CI channel can write.
func Attributes() []display.Attribute {
	return []display.Attribute{display.AttrBrightness, display.AttrInput, display.AttrPower}
}

func (c *Channel) Capabilities() display.Capabilities {
	return display.NewCapabilities(Attributes()...)
}

// Probe checks that the monitor answers a brightness query.
func (c *Channel) Probe(ctx context.Context) error {
	_, err := c.Brightness(ctx)
	return err
}

func (c *Channel) Brightness(ctx context.Context) (int, error) {
	cur, maximum, err := c.bus.GetVCP(ctx, VCPBrightness)
	if err != nil {
		return 0, c.classify("get_brightness", err)
	}
	if maximum == 0 {
		maximum = 100
	}
	c.mu.Lock()
	c.maxBrightness = maximum
	c.mu.Unlock()
	return int((uint32(cur)*100 + uint32(maximum)/2) / uint32(maximum)), nil
}

func (c *Channel) SetBrightness(ctx context.Context, percent int) error {
	maximum, err := c.brightnessMax(ctx)
	if err != nil {
		return err
	}
	value := uint16((uint32(maximum)*uint32(percent) + 50) / 100)
	if err := c.bus.SetVCP(ctx, VCPBrightness, value); err != nil {
		return c.classify("set_brightness", err)
	}
	return nil
}

func (c *Channel) brightnessMax(ctx context.Context) (uint16, error) {
	c.mu.Lock()
	maximum := c.maxBrightness
	c.mu.Unlock()
	if maximum != 0 {
		return maximum, nil
	}
	if _, err := c.Brightness(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxBrightness, nil
}

func (c *Channel) InputSource(ctx context.Context) (uint8, error) {
	cur, _, err := c.bus.GetVCP(ctx, VCPInputSource)
	if err != nil {
		return 0, c.classify("get_input", err)
	}
	return uint8(cur & 0xFF), nil
}

func (c *Channel) SetInputSource(ctx context.Context, code uint8) error {
	if err := c.bus.SetVCP(ctx, VCPInputSource, uint16(code)); err != nil {
		return c.classify("set_input", err)
	}
	return nil
}

func (c *Channel) Power(ctx context.Context) (display.PowerState, error) {
	cur, _, err := c.bus.GetVCP(ctx, VCPPowerMode)
	if err != nil {
		return display.PowerUnknown, c.classify("get_power", err)
	}
	if cur&0xFF == powerOn {
		return display.PowerOn, nil
	}
	return display.PowerOff, nil
}

func (c *Channel) SetPower(ctx context.Context, state display.PowerState) error {
	var value uint16
	switch state {
	case display.PowerOn:
		value = powerOn
	case display.PowerOff:
		value = powerHardOff
	default:
		return display.Errorf(display.KindInvalidRequest, "set_power", c.deviceID, "unknown power state %q", state)
	}
	if err := c.bus.SetVCP(ctx, VCPPowerMode, value); err != nil {
		return c.classify("set_power", err)
	}
	return nil
}

func (c *Channel) CapabilityString(ctx context.Context) (string, error) {
	caps, err := c.bus.Capabilities(ctx)
	if err != nil {
		return "", c.classify("get_capabilities", err)
	}
	return caps, nil
}

// classify maps bus errors onto the display error kinds. Timing related
// failures are transient; a vanished device node means the monitor is gone.
func (c *Channel) classify(op string, err error) error {
	kind := display.KindTransient
	switch {
	case errors.Is(err, ErrUnsupportedCode):
		kind = display.KindUnsupported
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENODEV):
		kind = display.KindDeviceGone
	case errors.Is(err, syscall.EACCES), errors.Is(err, syscall.EPERM):
		kind = display.KindFailed
	}
	return &display.Error{Kind: kind, Op: op, DeviceID: c.deviceID, Err: err}
}
