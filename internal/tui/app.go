package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/monctl/internal/display"
	"github.com/1broseidon/monctl/internal/events"
	"github.com/1broseidon/monctl/internal/service"
)

const (
	brightnessStep = 5
	listWidth      = 32
	statusTTL      = 4 * time.Second
)

// snapshotMsg carries a fresh enumeration from the daemon.
type snapshotMsg struct {
	snap *display.Snapshot
	err  error
}

// resultMsg is sent after a mutation completes.
type resultMsg struct {
	what string
	res  *service.Result
	err  error
}

// eventMsg is one topology event from the watch stream.
type eventMsg struct {
	ev events.Event
}

// watchEndedMsg reports that the event stream closed.
type watchEndedMsg struct{}

// clearStatusMsg clears the status line if nothing newer replaced it.
type clearStatusMsg struct {
	seq int
}

// model is the root bubbletea model for the dashboard.
type model struct {
	ctrl   Controller
	stream <-chan events.Event

	list list.Model
	snap *display.Snapshot

	// Picker overlay (mode, scale or input)
	picker *picker

	statusText string
	statusErr  bool
	statusSeq  int
	connected  bool

	width  int
	height int
}

func newModel(ctrl Controller, stream <-chan events.Event) model {
	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)

	l := list.New(nil, delegate, listWidth, 0)
	l.Title = "Monitors"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return model{
		ctrl:   ctrl,
		stream: stream,
		list:   l,
	}
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(m.load(false), m.waitEvent())
}

func (m model) load(refresh bool) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		snap, err := ctrl.ListMonitors(refresh)
		return snapshotMsg{snap: snap, err: err}
	}
}

func (m model) waitEvent() tea.Cmd {
	if m.stream == nil {
		return nil
	}
	stream := m.stream
	return func() tea.Msg {
		ev, ok := <-stream
		if !ok {
			return watchEndedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// The picker captures all input while open
	if m.picker != nil {
		switch msg := msg.(type) {
		case tea.KeyMsg:
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc":
				m.picker = nil
				return m, nil
			}
			return m.updatePicker(msg)
		case tea.WindowSizeMsg, snapshotMsg, resultMsg, eventMsg, watchEndedMsg, clearStatusMsg:
		default:
			return m.updatePicker(msg)
		}
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(listWidth, m.contentHeight())
		return m, nil

	case snapshotMsg:
		if msg.err != nil {
			m.connected = false
			return m.setStatus(fmt.Sprintf("daemon: %v", msg.err), true)
		}
		m.connected = true
		m.applySnapshot(msg.snap)
		return m, nil

	case resultMsg:
		if msg.err != nil {
			return m.setStatus(msg.err.Error(), true)
		}
		m.applyMonitor(msg.res.Monitor)
		return m.setStatus(fmt.Sprintf("%s on %s (attempts: %d)", msg.what, msg.res.Monitor.ID, msg.res.Attempts), false)

	case eventMsg:
		if msg.ev.Snapshot != nil {
			m.applySnapshot(msg.ev.Snapshot)
		}
		next, cmd := m.setStatus(describeEvent(msg.ev), false)
		return next, tea.Batch(cmd, m.waitEvent())

	case watchEndedMsg:
		m.stream = nil
		return m.setStatus("event stream closed; press r to refresh", true)

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.statusText = ""
			m.statusErr = false
		}
		return m, nil

	case tea.KeyMsg:
		if next, cmd, handled := m.handleKey(msg); handled {
			return next, cmd
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit, true
	case "r":
		next, cmd := m.setStatus("refreshing...", false)
		return next, tea.Batch(cmd, m.load(true)), true
	case "I":
		ctrl := m.ctrl
		return m, func() tea.Msg {
			if err := ctrl.Identify(); err != nil {
				return resultMsg{err: err}
			}
			return nil
		}, true
	}

	mon, ok := m.selected()
	if !ok {
		return m, nil, false
	}

	switch msg.String() {
	case "left", "-":
		return m.adjustBrightness(mon, -brightnessStep)
	case "right", "+", "=":
		return m.adjustBrightness(mon, brightnessStep)
	case "o":
		next := nextOrientation(mon)
		return m, m.mutate(fmt.Sprintf("orientation %d°", int(next)), func(c Controller) (*service.Result, error) {
			return c.SetOrientation(mon.ID, int(next))
		}), true
	case "p":
		on := mon.Power != display.PowerOn
		return m, m.mutate("power "+onOff(on), func(c Controller) (*service.Result, error) {
			return c.SetPower(mon.ID, on)
		}), true
	case "h":
		enable := mon.HDR != display.HDROn
		return m, m.mutate("HDR "+onOff(enable), func(c Controller) (*service.Result, error) {
			return c.SetHDR(mon.ID, enable)
		}), true
	case "m":
		return m.openPicker(newModePicker(mon))
	case "s":
		return m.openPicker(newScalePicker(mon))
	case "i":
		return m.openPicker(newInputPicker(mon))
	}
	return m, nil, false
}

func (m model) adjustBrightness(mon display.Monitor, delta int) (tea.Model, tea.Cmd, bool) {
	if !mon.Brightness.Supported {
		next, cmd := m.setStatus(fmt.Sprintf("brightness is not adjustable on %s", mon.ID), true)
		return next, cmd, true
	}
	target := clamp(mon.Brightness.Percent+delta, 0, 100)
	if target == mon.Brightness.Percent {
		return m, nil, true
	}
	return m, m.mutate(fmt.Sprintf("brightness %d%%", target), func(c Controller) (*service.Result, error) {
		return c.SetBrightness(mon.ID, target)
	}), true
}

func (m model) openPicker(p *picker, err error) (tea.Model, tea.Cmd, bool) {
	if err != nil {
		next, cmd := m.setStatus(err.Error(), true)
		return next, cmd, true
	}
	p.form = p.form.WithWidth(max(m.width-listWidth-6, 40)).WithShowHelp(true)
	m.picker = p
	return m, p.form.Init(), true
}

func (m model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := m.picker.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.picker.form = f
	}

	switch m.picker.form.State {
	case huh.StateCompleted:
		p := m.picker
		m.picker = nil
		return m, m.mutate(p.describe(), p.apply)
	case huh.StateAborted:
		m.picker = nil
		return m, nil
	}
	return m, cmd
}

// mutate runs fn against the controller off the UI goroutine.
func (m model) mutate(what string, fn func(Controller) (*service.Result, error)) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		res, err := fn(ctrl)
		return resultMsg{what: what, res: res, err: err}
	}
}

func (m model) setStatus(text string, isErr bool) (model, tea.Cmd) {
	m.statusSeq++
	m.statusText = text
	m.statusErr = isErr
	seq := m.statusSeq
	return m, tea.Tick(statusTTL, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

func (m *model) applySnapshot(snap *display.Snapshot) {
	if snap == nil {
		return
	}
	prev := ""
	if mon, ok := m.selected(); ok {
		prev = mon.ID
	}
	m.snap = snap

	items := make([]list.Item, 0, len(snap.Monitors))
	selected := 0
	for i, mon := range snap.Monitors {
		items = append(items, monitorItem{index: i + 1, monitor: mon})
		if mon.ID == prev {
			selected = i
		}
	}
	m.list.SetItems(items)
	m.list.Select(selected)
}

// applyMonitor replaces one monitor in the current snapshot with a
// verified post-mutation reading.
func (m *model) applyMonitor(mon display.Monitor) {
	if m.snap == nil {
		return
	}
	next := &display.Snapshot{
		Generation: m.snap.Generation,
		TakenAt:    m.snap.TakenAt,
		Monitors:   make([]display.Monitor, len(m.snap.Monitors)),
	}
	copy(next.Monitors, m.snap.Monitors)
	for i := range next.Monitors {
		if next.Monitors[i].ID == mon.ID {
			next.Monitors[i] = mon
		}
	}
	m.applySnapshot(next)
}

func (m model) selected() (display.Monitor, bool) {
	item, ok := m.list.SelectedItem().(monitorItem)
	if !ok {
		return display.Monitor{}, false
	}
	return item.monitor, true
}

// contentHeight returns the height available between the status and help bars.
func (m model) contentHeight() int {
	return max(m.height-2, 1)
}

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	statusBar := renderStatusBar(m.connected, m.snap, m.statusText, m.statusErr, m.width)
	helpBar := renderHelpBar(m.picker != nil, m.width)

	detailWidth := max(m.width-listWidth-2, 20)
	var right string
	if m.picker != nil {
		right = pickerStyle.Width(detailWidth).Render(m.picker.form.View())
	} else if mon, ok := m.selected(); ok {
		right = renderDetails(mon, detailWidth)
	} else {
		right = emptyStyle.Width(detailWidth).Render("No monitors detected")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), right)
	body = lipgloss.NewStyle().Height(m.contentHeight()).MaxHeight(m.contentHeight()).Render(body)

	return lipgloss.JoinVertical(lipgloss.Left, statusBar, body, helpBar)
}

func nextOrientation(mon display.Monitor) display.Orientation {
	order := mon.Orientations
	if len(order) == 0 {
		order = []display.Orientation{display.Landscape, display.Portrait, display.LandscapeFlipped, display.PortraitFlipped}
	}
	for i, o := range order {
		if o == mon.Orientation {
			return order[(i+1)%len(order)]
		}
	}
	return order[0]
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
