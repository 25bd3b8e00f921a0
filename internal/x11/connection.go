package x11

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
)

// Connection manages the X11 connection and core X resources
type Connection struct {
	XUtil *xgbutil.XUtil
	Root  xproto.Window

	// configMu serializes screen reconfiguration so that two CRTC changes
	// never race on the framebuffer size.
	configMu sync.Mutex

	loopOnce sync.Once
	loopDone chan struct{}
}

// NewConnection establishes a connection to the X11 server and initializes RandR.
// An empty display uses $DISPLAY.
func NewConnection(display string) (*Connection, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, err
	}

	if err := randr.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("randr init failed: %w", err)
	}
	version, err := randr.QueryVersion(xu.Conn(), 1, 3).Reply()
	if err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("randr version query failed: %w", err)
	}
	if version.MajorVersion < 1 || (version.MajorVersion == 1 && version.MinorVersion < 3) {
		xu.Conn().Close()
		return nil, fmt.Errorf("randr 1.3 required, server has %d.%d", version.MajorVersion, version.MinorVersion)
	}

	return &Connection{
		XUtil:    xu,
		Root:     xu.RootWin(),
		loopDone: make(chan struct{}),
	}, nil
}

// EventLoop starts the X11 event loop in the background. Safe to call more
// than once.
func (c *Connection) EventLoop() {
	c.loopOnce.Do(func() {
		go func() {
			defer close(c.loopDone)
			xevent.Main(c.XUtil)
		}()
	})
}

// Close cleanly disconnects from the X11 server
func (c *Connection) Close() {
	xevent.Quit(c.XUtil)
	c.XUtil.Conn().Close()
}
