package x11

import (
	"context"
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
)

// RandRSource reports RandR screen, CRTC and output change notifications.
type RandRSource struct {
	conn *Connection
}

// NewRandRSource subscribes the root window to RandR notifications.
func NewRandRSource(conn *Connection) (*RandRSource, error) {
	mask := uint16(randr.NotifyMaskScreenChange | randr.NotifyMaskCrtcChange | randr.NotifyMaskOutputChange)
	if err := randr.SelectInputChecked(conn.XUtil.Conn(), conn.Root, mask).Check(); err != nil {
		return nil, fmt.Errorf("failed to select randr input: %w", err)
	}
	return &RandRSource{conn: conn}, nil
}

func (s *RandRSource) Name() string { return "randr" }

// Run forwards notifications to notify until ctx is done. The X event loop
// is started on first use.
func (s *RandRSource) Run(ctx context.Context, notify func()) error {
	events := make(chan struct{}, 1)
	xevent.HookFun(func(_ *xgbutil.XUtil, ev interface{}) bool {
		switch ev.(type) {
		case randr.ScreenChangeNotifyEvent, randr.NotifyEvent:
			select {
			case events <- struct{}{}:
			default:
			}
		}
		return true
	}).Connect(s.conn.XUtil)
	s.conn.EventLoop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.conn.loopDone:
			return fmt.Errorf("x11 event loop stopped")
		case <-events:
			notify()
		}
	}
}
