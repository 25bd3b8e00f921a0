package x11

import (
	"context"

	"github.com/BurntSushi/xgb/randr"

	"github.com/1broseidon/monctl/internal/channel"
	"github.com/1broseidon/monctl/internal/display"
)

// Channel drives mode and orientation of one output through RandR.
type Channel struct {
	channel.Unsupported
	conn   *Connection
	output randr.Output
	name   string
}

var _ channel.Channel = (*Channel)(nil)

// NewChannel returns a RandR channel for the output.
func (c *Connection) NewChannel(o Output) *Channel {
	return &Channel{conn: c, output: o.ID, name: o.Name}
}

func (ch *Channel) Capabilities() display.Capabilities {
	return display.NewCapabilities(display.AttrMode, display.AttrOrientation)
}

func (ch *Channel) Mode(ctx context.Context) (display.Mode, error) {
	if err := ctx.Err(); err != nil {
		return display.Mode{}, err
	}
	mode, _, err := ch.conn.crtcMode(ch.output, ch.name)
	return mode, err
}

func (ch *Channel) SetMode(ctx context.Context, mode display.Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ch.conn.SetMode(ch.output, ch.name, mode)
}

func (ch *Channel) Orientation(ctx context.Context) (display.Orientation, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, o, err := ch.conn.crtcMode(ch.output, ch.name)
	return o, err
}

func (ch *Channel) SetOrientation(ctx context.Context, o display.Orientation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ch.conn.SetOrientation(ch.output, ch.name, o)
}
