package x11

import (
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/monctl/internal/display"
)

// crtcChange is the new mode and rotation for an output's CRTC.
type crtcChange struct {
	mode     randr.Mode
	rotation uint16
}

type crtcPicker func(st *screenState, crtc *randr.GetCrtcInfoReply) (crtcChange, error)

// SetMode switches the output to the mode matching width, height and refresh.
func (c *Connection) SetMode(id randr.Output, name string, mode display.Mode) error {
	return c.reconfigure(id, name, "set_mode", func(st *screenState, crtc *randr.GetCrtcInfoReply) (crtcChange, error) {
		info, err := randr.GetOutputInfo(c.XUtil.Conn(), id, st.resources.ConfigTimestamp).Reply()
		if err != nil {
			return crtcChange{}, err
		}
		for _, m := range info.Modes {
			mi, ok := st.modeInfo[m]
			if !ok {
				continue
			}
			if int(mi.Width) == mode.Width && int(mi.Height) == mode.Height && refreshRate(mi) == mode.RefreshHz {
				return crtcChange{mode: m, rotation: crtc.Rotation}, nil
			}
		}
		return crtcChange{}, display.Errorf(display.KindInvalidRequest, "set_mode", name, "mode %s not offered by output", mode)
	})
}

// SetOrientation rotates the output, keeping its current mode.
func (c *Connection) SetOrientation(id randr.Output, name string, o display.Orientation) error {
	return c.reconfigure(id, name, "set_orientation", func(_ *screenState, crtc *randr.GetCrtcInfoReply) (crtcChange, error) {
		rotation := rotationFromOrientation(o)
		if crtc.Rotations&rotation == 0 {
			return crtcChange{}, display.Errorf(display.KindUnsupported, "set_orientation", name, "rotation %d not supported by crtc", o)
		}
		// Keep reflection bits, replace the rotation.
		keep := crtc.Rotation &^ (randr.RotationRotate0 | randr.RotationRotate90 | randr.RotationRotate180 | randr.RotationRotate270)
		return crtcChange{mode: crtc.Mode, rotation: keep | rotation}, nil
	})
}

// crtcMode returns the current mode and rotation of an output.
func (c *Connection) crtcMode(id randr.Output, name string) (display.Mode, display.Orientation, error) {
	st, err := c.readState()
	if err != nil {
		return display.Mode{}, 0, display.Wrap(err, "get_mode", name)
	}
	crtc, err := c.outputCrtc(st, id, name)
	if err != nil {
		return display.Mode{}, 0, err
	}
	mi, ok := st.modeInfo[crtc.Mode]
	if !ok {
		return display.Mode{}, 0, display.Errorf(display.KindTransient, "get_mode", name, "crtc mode %d not in screen resources", crtc.Mode)
	}
	return modeFromInfo(mi, st.depth), orientationFromRotation(crtc.Rotation), nil
}

func (c *Connection) outputCrtc(st *screenState, id randr.Output, name string) (*randr.GetCrtcInfoReply, error) {
	info, err := randr.GetOutputInfo(c.XUtil.Conn(), id, st.resources.ConfigTimestamp).Reply()
	if err != nil {
		return nil, display.Errorf(display.KindDeviceGone, "get_output", name, "%v", err)
	}
	if info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
		return nil, display.Errorf(display.KindDeviceGone, "get_output", name, "output disconnected or disabled")
	}
	crtc, err := randr.GetCrtcInfo(c.XUtil.Conn(), info.Crtc, st.resources.ConfigTimestamp).Reply()
	if err != nil {
		return nil, display.Errorf(display.KindTransient, "get_crtc", name, "%v", err)
	}
	return crtc, nil
}

// reconfigure applies a CRTC change, growing the framebuffer first when the
// new layout needs more room and shrinking it afterwards when it needs less.
func (c *Connection) reconfigure(id randr.Output, name, op string, pick crtcPicker) error {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	conn := c.XUtil.Conn()
	st, err := c.readState()
	if err != nil {
		return display.Wrap(err, op, name)
	}
	info, err := randr.GetOutputInfo(conn, id, st.resources.ConfigTimestamp).Reply()
	if err != nil || info.Connection != randr.ConnectionConnected || info.Crtc == 0 {
		return display.Errorf(display.KindDeviceGone, op, name, "output disconnected or disabled")
	}
	crtc, err := randr.GetCrtcInfo(conn, info.Crtc, st.resources.ConfigTimestamp).Reply()
	if err != nil {
		return display.Errorf(display.KindTransient, op, name, "failed to get crtc info: %v", err)
	}

	change, err := pick(st, crtc)
	if err != nil {
		return err
	}
	if change.mode == crtc.Mode && change.rotation == crtc.Rotation {
		return nil
	}

	mi := st.modeInfo[change.mode]
	w, h := int(mi.Width), int(mi.Height)
	if change.rotation&(randr.RotationRotate90|randr.RotationRotate270) != 0 {
		w, h = h, w
	}

	needW, needH := c.framebufferFor(st, info.Crtc, int(crtc.X), int(crtc.Y), w, h)
	limits, err := randr.GetScreenSizeRange(conn, c.Root).Reply()
	if err == nil && (needW > int(limits.MaxWidth) || needH > int(limits.MaxHeight)) {
		return display.Errorf(display.KindInvalidRequest, op, name,
			"layout %dx%d exceeds maximum screen size %dx%d", needW, needH, limits.MaxWidth, limits.MaxHeight)
	}

	geom, err := xproto.GetGeometry(conn, xproto.Drawable(c.Root)).Reply()
	if err != nil {
		return display.Errorf(display.KindTransient, op, name, "failed to get root geometry: %v", err)
	}
	curW, curH := int(geom.Width), int(geom.Height)

	if needW > curW || needH > curH {
		if err := c.setScreenSize(max(needW, curW), max(needH, curH)); err != nil {
			return display.Errorf(display.KindFailed, op, name, "failed to grow screen: %v", err)
		}
	}

	reply, err := randr.SetCrtcConfig(conn, info.Crtc, xproto.TimeCurrentTime, st.resources.ConfigTimestamp,
		crtc.X, crtc.Y, change.mode, change.rotation, crtc.Outputs).Reply()
	if err != nil {
		return display.Errorf(display.KindFailed, op, name, "set crtc config: %v", err)
	}
	switch reply.Status {
	case randr.SetConfigSuccess:
	case randr.SetConfigInvalidConfigTime, randr.SetConfigInvalidTime:
		// Configuration changed underneath us; a fresh read will succeed.
		return display.Errorf(display.KindTransient, op, name, "stale randr configuration timestamp")
	default:
		return display.Errorf(display.KindFailed, op, name, "server rejected crtc configuration (status %d)", reply.Status)
	}

	if needW < curW || needH < curH {
		// Best effort; a larger framebuffer is harmless.
		_ = c.setScreenSize(needW, needH)
	}
	return nil
}

// framebufferFor computes the bounding box of every active CRTC with the
// target CRTC resized to w x h.
func (c *Connection) framebufferFor(st *screenState, target randr.Crtc, x, y, w, h int) (int, int) {
	maxW, maxH := x+w, y+h
	for _, id := range st.resources.Crtcs {
		if id == target {
			continue
		}
		info, err := randr.GetCrtcInfo(c.XUtil.Conn(), id, st.resources.ConfigTimestamp).Reply()
		if err != nil || info.Mode == 0 {
			continue
		}
		maxW = max(maxW, int(info.X)+int(info.Width))
		maxH = max(maxH, int(info.Y)+int(info.Height))
	}
	return maxW, maxH
}

func (c *Connection) setScreenSize(w, h int) error {
	screen := c.XUtil.Screen()
	// 96 DPI when the server reports no physical size.
	mmW, mmH := uint32(w*254/960), uint32(h*254/960)
	if screen.WidthInPixels > 0 && screen.HeightInPixels > 0 {
		mmW = uint32(w * int(screen.WidthInMillimeters) / int(screen.WidthInPixels))
		mmH = uint32(h * int(screen.HeightInMillimeters) / int(screen.HeightInPixels))
	}
	return randr.SetScreenSizeChecked(c.XUtil.Conn(), c.Root, uint16(w), uint16(h), mmW, mmH).Check()
}
