package tui

import (
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/1broseidon/monctl/internal/catalog"
	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/service"
)

// picker is a one-question huh form that ends in a single mutation.
type picker struct {
	form     *huh.Form
	describe func() string
	apply    func(Controller) (*service.Result, error)
}

func newModePicker(mon display.Monitor) (*picker, error) {
	if !mon.Capabilities.Has(display.AttrMode) || len(mon.Modes) == 0 {
		return nil, fmt.Errorf("resolution is not adjustable on %s", mon.ID)
	}

	current := display.Mode{Width: mon.Current.Width, Height: mon.Current.Height, RefreshHz: mon.Current.RefreshHz}
	var opts []huh.Option[display.Mode]
	for _, r := range catalog.Choices(mon.Modes, mon.Current, mon.Orientation) {
		for _, hz := range catalog.RefreshRates(mon.Modes, r.Width, r.Height) {
			mode := display.Mode{Width: r.Width, Height: r.Height, RefreshHz: hz}
			label := fmt.Sprintf("%d × %d @ %dHz", r.Width, r.Height, hz)
			if mode == current {
				label += " (current)"
			}
			opts = append(opts, huh.NewOption(label, mode))
		}
	}

	choice := current
	p := &picker{
		describe: func() string { return "resolution " + choice.String() },
		apply: func(c Controller) (*service.Result, error) {
			return c.SetResolution(mon.ID, choice.Width, choice.Height, choice.RefreshHz)
		},
	}
	p.form = huh.NewForm(huh.NewGroup(
		huh.NewSelect[display.Mode]().
			Title("Resolution for " + mon.ID).
			Options(opts...).
			Height(12).
			Value(&choice),
	))
	return p, nil
}

func newScalePicker(mon display.Monitor) (*picker, error) {
	if !mon.Capabilities.Has(display.AttrScale) || len(mon.Scales) == 0 {
		return nil, fmt.Errorf("scale is not adjustable on %s", mon.ID)
	}

	opts := make([]huh.Option[int], 0, len(mon.Scales))
	for _, s := range mon.Scales {
		label := fmt.Sprintf("%d%%", s)
		if s == mon.Scale {
			label += " (current)"
		}
		opts = append(opts, huh.NewOption(label, s))
	}

	choice := mon.Scale
	p := &picker{
		describe: func() string { return fmt.Sprintf("scale %d%%", choice) },
		apply: func(c Controller) (*service.Result, error) {
			return c.SetScale(mon.ID, choice)
		},
	}
	p.form = huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().
			Title("Scale for " + mon.ID).
			Options(opts...).
			Value(&choice),
	))
	return p, nil
}

func newInputPicker(mon display.Monitor) (*picker, error) {
	if !mon.Capabilities.Has(display.AttrInput) || len(mon.Inputs) == 0 {
		return nil, fmt.Errorf("input source is not switchable on %s", mon.ID)
	}

	opts := make([]huh.Option[uint8], 0, len(mon.Inputs))
	for _, code := range mon.Inputs {
		label := fmt.Sprintf("%s (0x%02X)", display.InputLabel(code), code)
		if mon.Input.Supported && code == mon.Input.Code {
			label += " (active)"
		}
		opts = append(opts, huh.NewOption(label, code))
	}

	choice := mon.Input.Code
	p := &picker{
		describe: func() string { return "input " + display.InputLabel(choice) },
		apply: func(c Controller) (*service.Result, error) {
			return c.SetInput(mon.ID, fmt.Sprintf("0x%02X", choice))
		},
	}
	p.form = huh.NewForm(huh.NewGroup(
		huh.NewSelect[uint8]().
			Title("Input source for " + mon.ID).
			Description("Switching away may leave this machine without a picture on that monitor.").
			Options(opts...).
			Value(&choice),
	))
	return p, nil
}
