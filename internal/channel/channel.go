// Package channel defines the per-monitor hardware control surface and the
// routing that picks a backend for each attribute.
package channel

import (
	"context"

	"github.com/1broseidon/monctl/internal/display"
)

// Channel reads and writes the runtime attributes of one monitor.
// Implementations return display.ErrUnsupported for anything they cannot do.
type Channel interface {
	Capabilities() display.Capabilities

	Mode(ctx context.Context) (display.Mode, error)
	SetMode(ctx context.Context, mode display.Mode) error

	Brightness(ctx context.Context) (int, error)
	SetBrightness(ctx context.Context, percent int) error

	Scale(ctx context.Context) (int, error)
	SetScale(ctx context.Context, percent int) error

	Orientation(ctx context.Context) (display.Orientation, error)
	SetOrientation(ctx context.Context, o display.Orientation) error

	Power(ctx context.Context) (display.PowerState, error)
	SetPower(ctx context.Context, state display.PowerState) error

	HDR(ctx context.Context) (bool, error)
	SetHDR(ctx context.Context, enable bool) error

	InputSource(ctx context.Context) (uint8, error)
	SetInputSource(ctx context.Context, code uint8) error
}

// CapabilityReporter is implemented by channels that can return the raw
// MCCS capability string of the monitor.
type CapabilityReporter interface {
	CapabilityString(ctx context.Context) (string, error)
}

// Unsupported implements Channel by refusing everything. Backends embed it
// and override the subset they handle.
type Unsupported struct{}

var _ Channel = Unsupported{}

func (Unsupported) Capabilities() display.Capabilities { return display.Capabilities{} }

func (Unsupported) Mode(context.Context) (display.Mode, error) {
	return display.Mode{}, display.ErrUnsupported
}

func (Unsupported) SetMode(context.Context, display.Mode) error { return display.ErrUnsupported }

func (Unsupported) Brightness(context.Context) (int, error) { return 0, display.ErrUnsupported }

func (Unsupported) SetBrightness(context.Context, int) error { return display.ErrUnsupported }

func (Unsupported) Scale(context.Context) (int, error) { return 0, display.ErrUnsupported }

func (Unsupported) SetScale(context.Context, int) error { return display.ErrUnsupported }

func (Unsupported) Orientation(context.Context) (display.Orientation, error) {
	return 0, display.ErrUnsupported
}

func (Unsupported) SetOrientation(context.Context, display.Orientation) error {
	return display.ErrUnsupported
}

func (Unsupported) Power(context.Context) (display.PowerState, error) {
	return display.PowerUnsupported, display.ErrUnsupported
}

func (Unsupported) SetPower(context.Context, display.PowerState) error {
	return display.ErrUnsupported
}

func (Unsupported) HDR(context.Context) (bool, error) { return false, display.ErrUnsupported }

func (Unsupported) SetHDR(context.Context, bool) error { return display.ErrUnsupported }

func (Unsupported) InputSource(context.Context) (uint8, error) { return 0, display.ErrUnsupported }

func (Unsupported) SetInputSource(context.Context, uint8) error { return display.ErrUnsupported }
