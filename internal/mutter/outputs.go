package mutter

import (
	"context"
	"math"
	"sort"

	"github.com/1broseidon/monctl/internal/catalog"
	"github.com/1broseidon/monctl/internal/display"
)

// Output is a physical monitor as Mutter reports it.
type Output struct {
	Connector    string
	Vendor       string
	Product      string
	Serial       string
	DisplayName  string
	BuiltIn      bool
	Primary      bool
	X            int
	Y            int
	Current      display.Mode
	Modes        []display.Mode
	Scale        int
	Scales       []int
	Orientation  display.Orientation
	HDR          display.HDRState
	Orientations []display.Orientation
}

// Outputs lists the monitors that are part of the current layout.
func (c *Client) Outputs(ctx context.Context) ([]Output, error) {
	st, err := c.State(ctx)
	if err != nil {
		return nil, err
	}
	return outputsFromState(st), nil
}

func outputsFromState(st *State) []Output {
	var out []Output
	for _, mon := range st.Monitors {
		lm, ok := st.logical(mon.Spec.Connector)
		if !ok {
			// Disabled monitor.
			continue
		}
		cur, ok := mon.currentMode()
		if !ok {
			continue
		}

		o := Output{
			Connector:    mon.Spec.Connector,
			Vendor:       mon.Spec.Vendor,
			Product:      mon.Spec.Product,
			Serial:       mon.Spec.Serial,
			DisplayName:  stringProp(mon.Props, "display-name"),
			BuiltIn:      boolProp(mon.Props, "is-builtin"),
			Primary:      lm.Primary,
			X:            int(lm.X),
			Y:            int(lm.Y),
			Current:      modeFromMutter(cur),
			Scale:        scalePercent(lm.Scale),
			Orientation:  orientationFromTransform(lm.Transform),
			HDR:          hdrState(mon),
			Orientations: []display.Orientation{display.Landscape, display.Portrait, display.LandscapeFlipped, display.PortraitFlipped},
		}
		for _, m := range mon.Modes {
			o.Modes = append(o.Modes, modeFromMutter(m))
		}
		o.Modes = catalog.Normalize(o.Modes)
		o.Scales = scalePercents(cur.SupportedScales)
		out = append(out, o)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Primary != out[j].Primary {
			return out[i].Primary
		}
		return out[i].X < out[j].X
	})
	return out
}

// modeFromMutter rounds the fractional refresh rate Mutter reports. Mutter
// modes carry no bit depth, so 32 bpp is assumed.
func modeFromMutter(m Mode) display.Mode {
	return display.Mode{
		Width:     int(m.Width),
		Height:    int(m.Height),
		BitDepth:  32,
		RefreshHz: int(math.Round(m.Refresh)),
	}
}

func scalePercent(scale float64) int {
	return int(math.Round(scale * 100))
}

func scalePercents(scales []float64) []int {
	seen := map[int]bool{}
	var out []int
	for _, s := range scales {
		p := scalePercent(s)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

// nearestScale maps a percent onto the exact fractional scale Mutter
// accepts for the mode.
func nearestScale(scales []float64, percent int) (float64, bool) {
	best, found := 0.0, false
	for _, s := range scales {
		if scalePercent(s) == percent {
			return s, true
		}
		if !found || math.Abs(s*100-float64(percent)) < math.Abs(best*100-float64(percent)) {
			best, found = s, true
		}
	}
	return best, false
}

func hdrState(m Monitor) display.HDRState {
	supported := false
	for _, mode := range uint32sProp(m.Props, "supported-color-modes") {
		if mode == colorModeBT2100 {
			supported = true
		}
	}
	if !supported {
		return display.HDRUnsupported
	}
	if cur, _ := uint32Prop(m.Props, "color-mode"); cur == colorModeBT2100 {
		return display.HDROn
	}
	return display.HDROff
}

// Transforms 0-3 are rotations; 4-7 are the flipped variants.
func orientationFromTransform(t uint32) display.Orientation {
	return display.Orientation((t % 4) * 90)
}

func transformFromOrientation(current uint32, o display.Orientation) uint32 {
	flipped := current & 4
	return flipped | uint32(o/90)
}
