package channel

import (
	"context"

	"github.com/1broseidon/monctl/internal/display"
)

// Composite routes each attribute to the backend chosen for it when the
// monitor was enumerated. Attributes without a route are unsupported.
type Composite struct {
	routes map[display.Attribute]Channel
}

var _ Channel = (*Composite)(nil)

// NewComposite returns an empty routing table.
func NewComposite() *Composite {
	return &Composite{routes: make(map[display.Attribute]Channel)}
}

// Route assigns ch to the given attributes. A nil channel clears the route.
func (c *Composite) Route(ch Channel, attrs ...display.Attribute) *Composite {
	for _, a := range attrs {
		if ch == nil {
			delete(c.routes, a)
			continue
		}
		c.routes[a] = ch
	}
	return c
}

// Backend returns the channel routed for attr.
func (c *Composite) Backend(attr display.Attribute) (Channel, bool) {
	ch, ok := c.routes[attr]
	return ch, ok
}

func (c *Composite) Capabilities() display.Capabilities {
	caps := make(display.Capabilities, len(c.routes))
	for a := range c.routes {
		caps[a] = true
	}
	return caps
}

func (c *Composite) pick(a display.Attribute) Channel {
	if ch, ok := c.routes[a]; ok {
		return ch
	}
	return Unsupported{}
}

func (c *Composite) Mode(ctx context.Context) (display.Mode, error) {
	return c.pick(display.AttrMode).Mode(ctx)
}

func (c *Composite) SetMode(ctx context.Context, mode display.Mode) error {
	return c.pick(display.AttrMode).SetMode(ctx, mode)
}

func (c *Composite) Brightness(ctx context.Context) (int, error) {
	return c.pick(display.AttrBrightness).Brightness(ctx)
}

func (c *Composite) SetBrightness(ctx context.Context, percent int) error {
	return c.pick(display.AttrBrightness).SetBrightness(ctx, percent)
}

func (c *Composite) Scale(ctx context.Context) (int, error) {
	return c.pick(display.AttrScale).Scale(ctx)
}

func (c *Composite) SetScale(ctx context.Context, percent int) error {
	return c.pick(display.AttrScale).SetScale(ctx, percent)
}

func (c *Composite) Orientation(ctx context.Context) (display.Orientation, error) {
	return c.pick(display.AttrOrientation).Orientation(ctx)
}

func (c *Composite) SetOrientation(ctx context.Context, o display.Orientation) error {
	return c.pick(display.AttrOrientation).SetOrientation(ctx, o)
}

func (c *Composite) Power(ctx context.Context) (display.PowerState, error) {
	return c.pick(display.AttrPower).Power(ctx)
}

func (c *Composite) SetPower(ctx context.Context, state display.PowerState) error {
	return c.pick(display.AttrPower).SetPower(ctx, state)
}

func (c *Composite) HDR(ctx context.Context) (bool, error) {
	return c.pick(display.AttrHDR).HDR(ctx)
}

func (c *Composite) SetHDR(ctx context.Context, enable bool) error {
	return c.pick(display.AttrHDR).SetHDR(ctx, enable)
}

func (c *Composite) InputSource(ctx context.Context) (uint8, error) {
	return c.pick(display.AttrInput).InputSource(ctx)
}

func (c *Composite) SetInputSource(ctx context.Context, code uint8) error {
	return c.pick(display.AttrInput).SetInputSource(ctx, code)
}

// CapabilityString asks whichever routed backend can report MCCS
// capabilities, trying the input route first.
func (c *Composite) CapabilityString(ctx context.Context) (string, error) {
	for _, a := range []display.Attribute{display.AttrInput, display.AttrBrightness, display.AttrPower} {
		if r, ok := c.routes[a].(CapabilityReporter); ok {
			return r.CapabilityString(ctx)
		}
	}
	return "", display.ErrUnsupported
}
