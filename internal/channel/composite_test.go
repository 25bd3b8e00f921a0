package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/1broseidon/monctl/internal/display"
)

type brightnessOnly struct {
	Unsupported
	value int
}

func (b *brightnessOnly) Brightness(context.Context) (int, error) { return b.value, nil }

func (b *brightnessOnly) SetBrightness(_ context.Context, v int) error {
	b.value = v
	return nil
}

func (b *brightnessOnly) CapabilityString(context.Context) (string, error) {
	return "(prot(monitor)vcp(10 60))", nil
}

func TestUnsupportedReturnsTypedError(t *testing.T) {
	var ch Channel = Unsupported{}
	ctx := context.Background()

	checks := map[string]error{
		"mode":        ch.SetMode(ctx, display.Mode{}),
		"brightness":  ch.SetBrightness(ctx, 10),
		"scale":       ch.SetScale(ctx, 125),
		"orientation": ch.SetOrientation(ctx, display.Portrait),
		"power":       ch.SetPower(ctx, display.PowerOff),
		"hdr":         ch.SetHDR(ctx, true),
		"input":       ch.SetInputSource(ctx, 0x11),
	}
	for name, err := range checks {
		if !errors.Is(err, display.ErrUnsupported) {
			t.Errorf("%s: err = %v, want ErrUnsupported", name, err)
		}
	}
}

func TestCompositeRoutesByAttribute(t *testing.T) {
	ctx := context.Background()
	ddc := &brightnessOnly{value: 40}
	c := NewComposite().Route(ddc, display.AttrBrightness)

	if !c.Capabilities().Has(display.AttrBrightness) {
		t.Fatal("brightness should be a capability")
	}
	if c.Capabilities().Has(display.AttrHDR) {
		t.Fatal("hdr should not be a capability")
	}
	if err := c.SetBrightness(ctx, 75); err != nil {
		t.Fatalf("SetBrightness: %v", err)
	}
	if got, _ := c.Brightness(ctx); got != 75 {
		t.Fatalf("Brightness = %d, want 75", got)
	}
	if err := c.SetHDR(ctx, true); !errors.Is(err, display.ErrUnsupported) {
		t.Fatalf("SetHDR err = %v, want ErrUnsupported", err)
	}

	caps, err := c.CapabilityString(ctx)
	if err != nil || caps == "" {
		t.Fatalf("CapabilityString = %q, %v", caps, err)
	}

	c.Route(nil, display.AttrBrightness)
	if _, err := c.CapabilityString(ctx); !errors.Is(err, display.ErrUnsupported) {
		t.Fatalf("CapabilityString after clearing route: %v", err)
	}
}
