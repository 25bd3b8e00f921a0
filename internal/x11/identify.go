package x11

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/xgb/xproto"
)

// Identify colors
const (
	ColorLabelText = 0xf5f7fa
	ColorLabelBg   = 0x1f2933
	ColorPrimaryBg = 0x2563eb
)

const (
	labelPaddingX = 24
	labelPaddingY = 18
	labelGap      = 8
)

// Label is the text shown on one monitor while identifying.
type Label struct {
	X, Y          int
	Width, Height int
	Lines         []string
	Primary       bool
}

// labelWindow is an override-redirect window with its drawing resources.
type labelWindow struct {
	window xproto.Window
	gc     xproto.Gcontext
	label  Label
	lineH  int
}

// Identify shows a label centered on each monitor for duration, redrawing
// periodically so the text survives expose events we do not listen for.
func (c *Connection) Identify(ctx context.Context, labels []Label, duration time.Duration) error {
	conn := c.XUtil.Conn()

	font, ascent, descent, charW, err := c.openLabelFont()
	if err != nil {
		return err
	}
	defer xproto.CloseFont(conn, font)

	var windows []*labelWindow
	defer func() {
		for _, w := range windows {
			xproto.FreeGC(conn, w.gc)
			xproto.DestroyWindow(conn, w.window)
		}
		conn.Sync()
	}()

	lineH := ascent + descent + labelGap
	for _, l := range labels {
		width := 0
		for _, line := range l.Lines {
			width = max(width, len(line)*charW)
		}
		width += 2 * labelPaddingX
		height := len(l.Lines)*lineH - labelGap + 2*labelPaddingY

		bg := uint32(ColorLabelBg)
		if l.Primary {
			bg = ColorPrimaryBg
		}
		x := l.X + (l.Width-width)/2
		y := l.Y + (l.Height-height)/2
		wid, err := c.createOverrideRedirectWindow(x, y, width, height, bg)
		if err != nil {
			return fmt.Errorf("failed to create identify window: %w", err)
		}
		gc, err := xproto.NewGcontextId(conn)
		if err != nil {
			xproto.DestroyWindow(conn, wid)
			return err
		}
		err = xproto.CreateGCChecked(
			conn,
			gc,
			xproto.Drawable(wid),
			xproto.GcForeground|xproto.GcBackground|xproto.GcFont|xproto.GcGraphicsExposures,
			[]uint32{ColorLabelText, bg, uint32(font), 0},
		).Check()
		if err != nil {
			xproto.DestroyWindow(conn, wid)
			return fmt.Errorf("failed to create identify gc: %w", err)
		}
		l.Width, l.Height = width, height
		windows = append(windows, &labelWindow{window: wid, gc: gc, label: l, lineH: lineH})
		xproto.MapWindow(conn, wid)
	}

	deadline := time.NewTimer(duration)
	defer deadline.Stop()
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		for _, w := range windows {
			c.drawLabel(w, ascent)
		}
		conn.Sync()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Connection) drawLabel(w *labelWindow, ascent int) {
	conn := c.XUtil.Conn()
	xproto.ClearArea(conn, false, w.window, 0, 0, 0, 0)
	for i, line := range w.label.Lines {
		if len(line) > 255 {
			line = line[:255]
		}
		y := labelPaddingY + ascent + i*w.lineH
		xproto.ImageText8(conn, byte(len(line)), xproto.Drawable(w.window), w.gc, int16(labelPaddingX), int16(y), line)
	}
}

// openLabelFont opens the largest available core font and returns its metrics.
func (c *Connection) openLabelFont() (xproto.Font, int, int, int, error) {
	conn := c.XUtil.Conn()
	font, err := xproto.NewFontId(conn)
	if err != nil {
		return 0, 0, 0, 0, err
	}

	fontNames := []string{"12x24", "10x20", "9x15bold", "9x15", "fixed"}
	for _, fontName := range fontNames {
		if err := xproto.OpenFontChecked(conn, font, uint16(len(fontName)), fontName).Check(); err != nil {
			continue
		}
		info, err := xproto.QueryFont(conn, xproto.Fontable(font)).Reply()
		if err != nil {
			xproto.CloseFont(conn, font)
			continue
		}
		return font,
			int(info.MaxBounds.Ascent),
			int(info.MaxBounds.Descent),
			int(info.MaxBounds.CharacterWidth),
			nil
	}
	return 0, 0, 0, 0, fmt.Errorf("no usable core font for identify overlay")
}

// createOverrideRedirectWindow creates a single override-redirect window
func (c *Connection) createOverrideRedirectWindow(x, y, width, height int, bg uint32) (xproto.Window, error) {
	conn := c.XUtil.Conn()
	screen := c.XUtil.Screen()

	wid, err := xproto.NewWindowId(conn)
	if err != nil {
		return 0, err
	}

	err = xproto.CreateWindowChecked(
		conn,
		screen.RootDepth,
		wid,
		c.Root,
		int16(x), int16(y),
		uint16(max(width, 1)), uint16(max(height, 1)),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		xproto.CwOverrideRedirect|xproto.CwBackPixel,
		// Value list order follows the bit positions of the mask (low to high).
		[]uint32{bg, 1},
	).Check()
	if err != nil {
		return 0, err
	}
	return wid, nil
}
