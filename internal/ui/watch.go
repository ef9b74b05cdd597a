package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/stikjit/jitstub/internal/jit"
)

// SnapshotMsg delivers a session snapshot to the watch view.
type SnapshotMsg jit.Snapshot

// WatchEndedMsg reports that the snapshot stream stopped.
type WatchEndedMsg struct {
	Err error
}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Up   key.Binding
	Down key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Up, k.Down}, {k.Quit}}
}

var watchKeys = watchKeyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "scroll up"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "scroll down"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// WatchModel is the live view of a remote session.
type WatchModel struct {
	Addr string

	Snapshot jit.Snapshot
	Received bool
	Ended    bool
	Err      error

	Width  int
	Height int

	spinner spinner.Model
	regions table.Model
	help    help.Model
	keys    watchKeyMap
}

// NewWatchModel creates the view for the monitor at addr
func NewWatchModel(addr string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	t := table.New(
		table.WithColumns(regionColumns()),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = styles.Selected.
		Foreground(TextColor).
		Background(PrimaryColor)
	t.SetStyles(styles)

	width, height := GetTerminalSize()
	return WatchModel{
		Addr:    addr,
		Width:   width,
		Height:  height,
		spinner: s,
		regions: t,
		help:    help.New(),
		keys:    watchKeys,
	}
}

func regionColumns() []table.Column {
	return []table.Column{
		{Title: "#", Width: 5},
		{Title: "Address", Width: 20},
		{Title: "Size", Width: 14},
		{Title: "Status", Width: 24},
	}
}

// RegionRows converts regions into table rows, newest first.
func RegionRows(regions []jit.Region) []table.Row {
	rows := make([]table.Row, 0, len(regions))
	for i := len(regions) - 1; i >= 0; i-- {
		r := regions[i]
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", r.Sequence),
			fmt.Sprintf("0x%x", r.Address),
			jit.FormatSize(r.Size),
			r.Status,
		})
	}
	return rows
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = clampWidth(msg.Width)
		m.Height = msg.Height
		if h := msg.Height - 9; h > 3 {
			m.regions.SetHeight(h)
		}
		return m, nil

	case SnapshotMsg:
		m.Snapshot = jit.Snapshot(msg)
		m.Received = true
		m.regions.SetRows(RegionRows(m.Snapshot.Regions))
		return m, nil

	case WatchEndedMsg:
		m.Ended = true
		m.Err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.regions, cmd = m.regions.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	b.WriteString(NewHeader("JIT session monitor", "jitstub watch "+m.Addr, nil).SetWidth(m.Width).Render())
	b.WriteString("\n")

	if !m.Received {
		b.WriteString(StatusStyle.Render(m.spinner.View() + " Waiting for the first snapshot..."))
		b.WriteString("\n")
		return b.String()
	}

	snap := m.Snapshot
	status := fmt.Sprintf("%s pid %d   state %s", m.spinner.View(), snap.PID, snap.State)
	if m.Ended {
		status = fmt.Sprintf("%s pid %d   state %s   (stream closed)", FailureMarker, snap.PID, snap.State)
	}
	b.WriteString(StatusStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(StatusStyle.Render(CountersLine(snap.Counters)))
	b.WriteString("\n")
	if snap.LastStop != "" {
		b.WriteString(MutedStyle.Render("last stop: " + snap.LastStop))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.regions.View())
	b.WriteString("\n")
	b.WriteString(MutedStyle.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	b.WriteString("\n")
	return b.String()
}

// CountersLine renders the counters on one line.
func CountersLine(c jit.Counters) string {
	return fmt.Sprintf("continues %d   jit requests %d   mapped %s   skipped %d   stepped %d",
		c.TotalContinues, c.ValidJitRequests, jit.FormatSize(c.TotalBytesMapped), c.SkippedStops, c.SteppedOver)
}

// SubscribeFunc streams snapshots from addr to fn until ctx ends.
type SubscribeFunc func(ctx context.Context, addr string, fn func(jit.Snapshot)) error

// RunWatch runs the watch view until the user quits or the stream ends.
// It returns the stream error, if any.
func RunWatch(ctx context.Context, addr string, subscribe SubscribeFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewWatchModel(addr), tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		err := subscribe(ctx, addr, func(s jit.Snapshot) {
			p.Send(SnapshotMsg(s))
		})
		p.Send(WatchEndedMsg{Err: err})
	}()

	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch view failed: %w", err)
	}
	if m, ok := final.(WatchModel); ok && m.Err != nil {
		return m.Err
	}
	return nil
}
