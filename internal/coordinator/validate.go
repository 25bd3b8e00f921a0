package coordinator

import (
	"slices"

	"github.com/1broseidon/monctl/internal/catalog"
	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
)

// validate resolves req against the latest snapshot without touching
// hardware. It returns the concrete target value to apply.
func (c *Coordinator) validate(req Request) (display.Monitor, channel.Channel, any, error) {
	op := "set_" + string(req.Attribute)
	id := req.DeviceID

	mon, ok := c.registry.Monitor(id)
	if !ok {
		return mon, nil, nil, display.Errorf(display.KindDeviceGone, op, id, "monitor not attached")
	}
	ch, ok := c.registry.Channel(id)
	if !ok {
		return mon, nil, nil, display.Errorf(display.KindDeviceGone, op, id, "no channel bound")
	}
	if !mon.Capabilities.Has(req.Attribute) {
		return mon, nil, nil, display.Errorf(display.KindUnsupported, op, id, "%s control is not available for this monitor", req.Attribute)
	}

	invalid := func(format string, args ...any) (display.Monitor, channel.Channel, any, error) {
		return mon, nil, nil, display.Errorf(display.KindInvalidRequest, op, id, format, args...)
	}
	wrongType := func() (display.Monitor, channel.Channel, any, error) {
		return invalid("value %v (%T) has the wrong type for %s", req.Value, req.Value, req.Attribute)
	}

	switch req.Attribute {
	case display.AttrMode:
		want, ok := req.Value.(display.Mode)
		if !ok {
			return wrongType()
		}
		if want.Width <= 0 || want.Height <= 0 || want.RefreshHz < 0 {
			return invalid("invalid mode %dx%d@%dHz", want.Width, want.Height, want.RefreshHz)
		}
		mode, found := catalog.FindDepth(mon.Modes, want.Width, want.Height, want.BitDepth, want.RefreshHz)
		if !found {
			if want.RefreshHz == 0 {
				return invalid("resolution %dx%d is not supported (available: %v)", want.Width, want.Height, resolutionKeys(mon.Modes))
			}
			return invalid("%dx%d@%dHz is not supported (rates for %dx%d: %v)",
				want.Width, want.Height, want.RefreshHz, want.Width, want.Height,
				catalog.RefreshRates(mon.Modes, want.Width, want.Height))
		}
		return mon, ch, mode, nil

	case display.AttrBrightness:
		v, ok := req.Value.(int)
		if !ok {
			return wrongType()
		}
		if v < 0 || v > 100 {
			return invalid("brightness %d out of range 0-100", v)
		}
		return mon, ch, v, nil

	case display.AttrScale:
		v, ok := req.Value.(int)
		if !ok {
			return wrongType()
		}
		if len(mon.Scales) > 0 {
			if !slices.Contains(mon.Scales, v) {
				return invalid("scale %d%% is not supported (available: %v)", v, mon.Scales)
			}
		} else if v < 100 || v > 500 {
			return invalid("scale %d%% out of range 100-500", v)
		}
		return mon, ch, v, nil

	case display.AttrOrientation:
		v, ok := req.Value.(display.Orientation)
		if !ok {
			return wrongType()
		}
		if !v.Valid() {
			return invalid("orientation %d must be 0, 90, 180 or 270", v)
		}
		if len(mon.Orientations) > 0 && !slices.Contains(mon.Orientations, v) {
			return invalid("orientation %d is not supported (available: %v)", v, mon.Orientations)
		}
		return mon, ch, v, nil

	case display.AttrPower:
		v, ok := req.Value.(display.PowerState)
		if !ok {
			return wrongType()
		}
		if v != display.PowerOn && v != display.PowerOff {
			return invalid("power state %q must be on or off", v)
		}
		return mon, ch, v, nil

	case display.AttrHDR:
		v, ok := req.Value.(bool)
		if !ok {
			return wrongType()
		}
		if mon.HDR == display.HDRUnsupported {
			return mon, nil, nil, display.Errorf(display.KindUnsupported, op, id, "monitor does not support HDR")
		}
		return mon, ch, v, nil

	case display.AttrInput:
		v, ok := req.Value.(uint8)
		if !ok {
			return wrongType()
		}
		if v == 0 {
			return invalid("input code must be 1-255")
		}
		if len(mon.Inputs) > 0 && !slices.Contains(mon.Inputs, v) {
			labels := make([]string, 0, len(mon.Inputs))
			for _, code := range mon.Inputs {
				labels = append(labels, display.InputLabel(code))
			}
			return invalid("input %s is not advertised (available: %v)", display.InputLabel(v), labels)
		}
		return mon, ch, v, nil
	}
	return invalid("unknown attribute %q", req.Attribute)
}

func resolutionKeys(modes []display.Mode) []string {
	rs := catalog.Resolutions(modes)
	keys := make([]string, 0, len(rs))
	for _, r := range rs {
		keys = append(keys, r.Key)
	}
	return keys
}
