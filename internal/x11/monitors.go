package x11

import (
	"fmt"
	"sort"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/monctl/internal/catalog"
	"github.com/1broseidon/monctl/internal/display"
)

// Output is a connected RandR output driven by a CRTC.
type Output struct {
	ID           randr.Output
	Name         string
	Crtc         randr.Crtc
	Primary      bool
	X            int
	Y            int
	Current      display.Mode
	Modes        []display.Mode
	Orientation  display.Orientation
	Orientations []display.Orientation
	EDID         []byte
	WidthMM      int
	HeightMM     int
}

// screenState is one consistent read of the RandR configuration.
type screenState struct {
	resources *randr.GetScreenResourcesCurrentReply
	modeInfo  map[randr.Mode]randr.ModeInfo
	depth     int
}

func (c *Connection) readState() (*screenState, error) {
	resources, err := randr.GetScreenResourcesCurrent(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}
	st := &screenState{
		resources: resources,
		modeInfo:  make(map[randr.Mode]randr.ModeInfo, len(resources.Modes)),
		depth:     int(c.XUtil.Screen().RootDepth),
	}
	for _, mi := range resources.Modes {
		st.modeInfo[randr.Mode(mi.Id)] = mi
	}
	return st, nil
}

// Outputs retrieves all connected and enabled outputs using XRandR
func (c *Connection) Outputs() ([]Output, error) {
	st, err := c.readState()
	if err != nil {
		return nil, err
	}

	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(c.XUtil.Conn(), c.Root).Reply(); err == nil {
		primary = reply.Output
	}
	edidAtom := c.atom("EDID")

	var outputs []Output
	for _, id := range st.resources.Outputs {
		info, err := randr.GetOutputInfo(c.XUtil.Conn(), id, st.resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}
		// Skip disconnected outputs and connected ones without a CRTC
		if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
			continue
		}
		crtc, err := randr.GetCrtcInfo(c.XUtil.Conn(), info.Crtc, st.resources.ConfigTimestamp).Reply()
		if err != nil || crtc.Mode == 0 {
			continue
		}

		out := Output{
			ID:           id,
			Name:         string(info.Name),
			Crtc:         info.Crtc,
			Primary:      id == primary,
			X:            int(crtc.X),
			Y:            int(crtc.Y),
			Orientation:  orientationFromRotation(crtc.Rotation),
			Orientations: orientationsFromMask(crtc.Rotations),
			WidthMM:      int(info.MmWidth),
			HeightMM:     int(info.MmHeight),
		}
		for _, m := range info.Modes {
			if mi, ok := st.modeInfo[m]; ok {
				out.Modes = append(out.Modes, modeFromInfo(mi, st.depth))
			}
		}
		out.Modes = catalog.Normalize(out.Modes)
		if mi, ok := st.modeInfo[crtc.Mode]; ok {
			out.Current = modeFromInfo(mi, st.depth)
		}
		if edidAtom != 0 {
			out.EDID = c.outputProperty(id, edidAtom)
		}
		outputs = append(outputs, out)
	}

	sort.SliceStable(outputs, func(i, j int) bool {
		if outputs[i].Primary != outputs[j].Primary {
			return outputs[i].Primary
		}
		if outputs[i].X != outputs[j].X {
			return outputs[i].X < outputs[j].X
		}
		return outputs[i].Y < outputs[j].Y
	})
	return outputs, nil
}

func (c *Connection) atom(name string) xproto.Atom {
	reply, err := xproto.InternAtom(c.XUtil.Conn(), true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0
	}
	return reply.Atom
}

func (c *Connection) outputProperty(id randr.Output, prop xproto.Atom) []byte {
	reply, err := randr.GetOutputProperty(c.XUtil.Conn(), id, prop, xproto.AtomAny, 0, 256, false, false).Reply()
	if err != nil || reply.Format != 8 {
		return nil
	}
	return reply.Data
}

// modeFromInfo converts a RandR mode line into a display mode. The refresh
// rate is derived from the pixel clock and rounded to whole hertz.
func modeFromInfo(mi randr.ModeInfo, depth int) display.Mode {
	return display.Mode{
		Width:     int(mi.Width),
		Height:    int(mi.Height),
		BitDepth:  depth,
		RefreshHz: refreshRate(mi),
	}
}

func refreshRate(mi randr.ModeInfo) int {
	if mi.Htotal == 0 || mi.Vtotal == 0 {
		return 0
	}
	vtotal := float64(mi.Vtotal)
	if mi.ModeFlags&randr.ModeFlagDoubleScan != 0 {
		vtotal *= 2
	}
	if mi.ModeFlags&randr.ModeFlagInterlace != 0 {
		vtotal /= 2
	}
	hz := float64(mi.DotClock) / (float64(mi.Htotal) * vtotal)
	return int(hz + 0.5)
}

func orientationFromRotation(rotation uint16) display.Orientation {
	switch {
	case rotation&randr.RotationRotate90 != 0:
		return display.Portrait
	case rotation&randr.RotationRotate180 != 0:
		return display.LandscapeFlipped
	case rotation&randr.RotationRotate270 != 0:
		return display.PortraitFlipped
	}
	return display.Landscape
}

func rotationFromOrientation(o display.Orientation) uint16 {
	switch o {
	case display.Portrait:
		return randr.RotationRotate90
	case display.LandscapeFlipped:
		return randr.RotationRotate180
	case display.PortraitFlipped:
		return randr.RotationRotate270
	}
	return randr.RotationRotate0
}

func orientationsFromMask(mask uint16) []display.Orientation {
	var out []display.Orientation
	for _, o := range []display.Orientation{display.Landscape, display.Portrait, display.LandscapeFlipped, display.PortraitFlipped} {
		if mask&rotationFromOrientation(o) != 0 {
			out = append(out, o)
		}
	}
	return out
}
