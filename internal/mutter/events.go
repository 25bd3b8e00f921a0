package mutter

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// SignalSource reports Mutter's MonitorsChanged signal.
type SignalSource struct {
	client *Client
}

// NewSignalSource returns an event source bound to the client's bus connection.
func (c *Client) NewSignalSource() *SignalSource {
	return &SignalSource{client: c}
}

func (s *SignalSource) Name() string { return "mutter" }

// Run calls notify for every MonitorsChanged signal until ctx is done.
func (s *SignalSource) Run(ctx context.Context, notify func()) error {
	conn := s.client.conn
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objPath),
		dbus.WithMatchInterface(iface),
		dbus.WithMatchMember(sigChange),
	); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", sigChange, err)
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("session bus connection closed")
			}
			if sig.Name == iface+"."+sigChange {
				notify()
			}
		}
	}
}
