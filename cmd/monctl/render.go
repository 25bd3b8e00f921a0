package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/service"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)
	primaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Padding(0, 1)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("248")).Width(14)
)

// isTTY reports whether w is an interactive terminal. Styling is dropped
// otherwise so output stays greppable.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 0
}

var monitorHeaders = []string{"#", "ID", "NAME", "MODE", "SCALE", "ROTATION", "BRIGHTNESS", "POWER", "HDR", "INPUT"}

func monitorRow(index int, m display.Monitor) []string {
	name := m.FriendlyName
	if name == "" {
		name = m.Name
	}
	if m.Primary {
		name += " *"
	}
	id := m.ID
	if m.Stale {
		id += " (stale)"
	}
	return []string{
		strconv.Itoa(index),
		id,
		name,
		m.Current.String(),
		fmt.Sprintf("%d%%", m.Scale),
		fmt.Sprintf("%d°", int(m.Orientation)),
		formatBrightness(m.Brightness),
		string(m.Power),
		string(m.HDR),
		formatInput(m.Input),
	}
}

func formatBrightness(b display.Brightness) string {
	if !b.Supported {
		return "-"
	}
	return fmt.Sprintf("%d%%", b.Percent)
}

func formatInput(in display.Input) string {
	if !in.Supported {
		return "-"
	}
	return display.InputLabel(in.Code)
}

// renderMonitors writes the snapshot as a table. Plain tab-separated rows
// are used when w is not a terminal.
func renderMonitors(w io.Writer, snap *display.Snapshot) {
	rows := make([][]string, 0, len(snap.Monitors))
	for i, m := range snap.Monitors {
		rows = append(rows, monitorRow(i+1, m))
	}

	if !isTTY(w) {
		fmt.Fprintln(w, strings.Join(monitorHeaders, "\t"))
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(monitorHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(snap.Monitors) && snap.Monitors[row].Primary && col == 2:
				return primaryStyle
			case row >= 0 && row < len(snap.Monitors) && snap.Monitors[row].Stale:
				return dimStyle
			default:
				return cellStyle
			}
		})
	if width := terminalWidth(w); width > 0 {
		t = t.Width(width)
	}
	fmt.Fprintln(w, t.Render())
}

// renderMonitor writes the details of one monitor as label/value lines.
func renderMonitor(w io.Writer, m display.Monitor) {
	line := func(label, value string) {
		if value == "" {
			return
		}
		if isTTY(w) {
			fmt.Fprintf(w, "%s%s\n", labelStyle.Render(label), value)
			return
		}
		fmt.Fprintf(w, "%-14s%s\n", label, value)
	}

	line("ID", m.ID)
	line("Name", m.FriendlyName)
	line("Manufacturer", strings.TrimSpace(m.Manufacturer+" "+m.Model))
	line("Serial", m.Serial)
	line("Connection", string(m.Connection))
	line("Position", fmt.Sprintf("%d,%d", m.Position.X, m.Position.Y))
	line("Mode", m.Current.String())
	if m.MaxNative.Width > 0 {
		line("Native", m.MaxNative.String())
	}
	line("Scale", fmt.Sprintf("%d%%", m.Scale))
	line("Rotation", fmt.Sprintf("%d°", int(m.Orientation)))
	line("Brightness", formatBrightness(m.Brightness))
	line("Power", string(m.Power))
	line("HDR", string(m.HDR))
	line("Input", formatInput(m.Input))
	if len(m.Inputs) > 0 {
		labels := make([]string, 0, len(m.Inputs))
		for _, code := range m.Inputs {
			labels = append(labels, fmt.Sprintf("%s (0x%02X)", display.InputLabel(code), code))
		}
		line("Inputs", strings.Join(labels, ", "))
	}
	var writable []string
	for _, a := range m.Capabilities.List() {
		writable = append(writable, string(a))
	}
	line("Writable", strings.Join(writable, ", "))
}

// renderResult reports a verified mutation.
func renderResult(w io.Writer, what string, res *service.Result) {
	mark := "ok"
	if isTTY(w) {
		mark = okStyle.Render("✓")
	}
	fmt.Fprintf(w, "%s %s on %s (attempts: %d, request %s)\n", mark, what, res.Monitor.ID, res.Attempts, res.RequestID)
}
