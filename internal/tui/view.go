package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
)

// monitorItem implements list.Item for the monitor sidebar.
type monitorItem struct {
	index   int
	monitor display.Monitor
}

func (i monitorItem) Title() string {
	name := i.monitor.FriendlyName
	if name == "" {
		name = i.monitor.Name
	}
	prefix := "  "
	if i.monitor.Primary {
		prefix = "* "
	}
	return fmt.Sprintf("%s%d. %s", prefix, i.index, name)
}

func (i monitorItem) Description() string {
	desc := i.monitor.ID + "  " + i.monitor.Current.Key()
	if i.monitor.Stale {
		desc += "  (stale)"
	}
	return desc
}

func (i monitorItem) FilterValue() string { return i.monitor.ID }

var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("248")).
			Width(13)

	detailStyle = lipgloss.NewStyle().
			Padding(1, 2)

	pickerStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(1, 2)

	barOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	barOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// renderDetails renders the selected monitor's properties.
func renderDetails(m display.Monitor, width int) string {
	var lines []string
	line := func(label, value string) {
		if value == "" {
			return
		}
		lines = append(lines, labelStyle.Render(label)+value)
	}

	line("ID", m.ID)
	line("Manufacturer", strings.TrimSpace(m.Manufacturer+" "+m.Model))
	line("Connection", string(m.Connection))
	line("Mode", m.Current.String())
	if m.MaxNative.Width > 0 {
		line("Native", m.MaxNative.Key())
	}
	line("Scale", fmt.Sprintf("%d%%", m.Scale))
	line("Rotation", fmt.Sprintf("%d°", int(m.Orientation)))
	if m.Brightness.Supported {
		line("Brightness", brightnessBar(m.Brightness.Percent, 20)+fmt.Sprintf(" %d%%", m.Brightness.Percent))
	} else {
		line("Brightness", "-")
	}
	line("Power", string(m.Power))
	line("HDR", string(m.HDR))
	if m.Input.Supported {
		line("Input", fmt.Sprintf("%s (0x%02X)", display.InputLabel(m.Input.Code), m.Input.Code))
	}
	var writable []string
	for _, a := range m.Capabilities.List() {
		writable = append(writable, string(a))
	}
	line("Writable", strings.Join(writable, ", "))
	if m.Stale {
		lines = append(lines, "", errorStyle.Render("Last read failed; values may be out of date."))
	}

	return detailStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func brightnessBar(percent, width int) string {
	filled := clamp(percent*width/100, 0, width)
	return barOnStyle.Render(strings.Repeat("█", filled)) + barOffStyle.Render(strings.Repeat("░", width-filled))
}

// renderStatusBar renders the daemon connection state and the last status line.
func renderStatusBar(connected bool, snap *display.Snapshot, text string, isErr bool, width int) string {
	var parts []string
	if connected {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
		parts = append(parts, dot+" daemon connected")
		if snap != nil {
			parts = append(parts, fmt.Sprintf("monitors:%d", len(snap.Monitors)), fmt.Sprintf("generation:%d", snap.Generation))
		}
	} else {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("●")
		parts = append(parts, dot+" daemon not reachable")
	}
	if text != "" {
		if isErr {
			text = errorStyle.Render(text)
		}
		parts = append(parts, text)
	}

	style := lipgloss.NewStyle().
		Width(width).
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("250")).
		Padding(0, 1)
	return style.Render(strings.Join(parts, "  "))
}

// renderHelpBar renders the bottom keybinding bar.
func renderHelpBar(picking bool, width int) string {
	help := "↑/↓: select  ←/→: brightness  m: mode  s: scale  o: rotate  p: power  h: hdr  i: input  I: identify  r: refresh  q: quit"
	if picking {
		help = "↑/↓: choose  enter: apply  esc: cancel"
	}
	style := lipgloss.NewStyle().
		Width(width).
		Foreground(lipgloss.Color("241")).
		Padding(0, 1)
	return style.Render(help)
}

func describeEvent(ev events.Event) string {
	var b strings.Builder
	b.WriteString(ev.Type)
	if len(ev.Added) > 0 {
		fmt.Fprintf(&b, " added=%s", strings.Join(ev.Added, ","))
	}
	if len(ev.Removed) > 0 {
		fmt.Fprintf(&b, " removed=%s", strings.Join(ev.Removed, ","))
	}
	if len(ev.Changed) > 0 {
		fmt.Fprintf(&b, " changed=%s", strings.Join(ev.Changed, ","))
	}
	return b.String()
}
