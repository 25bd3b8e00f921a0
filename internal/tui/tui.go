// Package tui is an interactive monitor dashboard driven over the daemon's
// IPC socket.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/ipc"
	"github.com/1broseidon/monctl/internal/service"
)

// Controller is the daemon surface the dashboard drives. *ipc.Client
// satisfies it.
type Controller interface {
	ListMonitors(refresh bool) (*display.Snapshot, error)
	SetResolution(ref string, width, height, hz int) (*service.Result, error)
	SetBrightness(ref string, percent int) (*service.Result, error)
	SetScale(ref string, percent int) (*service.Result, error)
	SetOrientation(ref string, degrees int) (*service.Result, error)
	SetPower(ref string, on bool) (*service.Result, error)
	SetHDR(ref string, enable bool) (*service.Result, error)
	SetInput(ref, input string) (*service.Result, error)
	Identify() error
	Watch(ctx context.Context, fn func(events.Event) error) error
}

var _ Controller = (*ipc.Client)(nil)

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, ctrl Controller) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui requires an interactive terminal (stdin/stdout must be TTYs)")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream := make(chan events.Event, 16)
	go func() {
		defer close(stream)
		_ = ctrl.Watch(ctx, func(ev events.Event) error {
			select {
			case stream <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	p := tea.NewProgram(newModel(ctrl, stream), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("tui failed: %w", err)
	}
	return nil
}
