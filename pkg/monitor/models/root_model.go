package models

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/fleetctl/pkg/monitor"
	"github.com/go-go-golems/fleetctl/pkg/monitor/styles"
	"github.com/go-go-golems/fleetctl/pkg/monitor/widgets"
)

const maxEvents = 200

type RootModel struct {
	width  int
	height int

	title    string
	snapshot *monitor.Snapshot
	events   []monitor.EventLogEntry
}

func NewRootModel(title string) RootModel {
	return RootModel{title: title}
}

func (m RootModel) Init() tea.Cmd { return nil }

func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = v.Width, v.Height
	case tea.KeyMsg:
		switch v.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "c":
			m.events = nil
		}
	case monitor.SnapshotMsg:
		snap := v.Snapshot
		m.snapshot = &snap
	case monitor.EventLogAppendMsg:
		m.events = append(m.events, v.Entry)
		if len(m.events) > maxEvents {
			m.events = m.events[len(m.events)-maxEvents:]
		}
	}
	return m, nil
}

func (m RootModel) View() string {
	theme := styles.DefaultTheme()
	header := widgets.NewHeader(m.title).WithWidth(m.width)

	var body string
	switch {
	case m.snapshot == nil:
		body = theme.TitleMuted.Render("waiting for first sample…")
	default:
		s := m.snapshot
		running := s.RunningCount()
		header = header.
			WithStatus(fmt.Sprintf("%d/%d running", running, len(s.Services)), running == len(s.Services)).
			WithUpdated(s.At)
		body = widgets.ServiceTable(s.Services)
		if s.Error != "" {
			body += "\n" + theme.StateDown.Render("status error: "+s.Error)
		}
	}

	var b strings.Builder
	b.WriteString(header.Render())
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n\n")
	b.WriteString(theme.Title.Render("Events"))
	b.WriteString("\n")
	b.WriteString(m.renderEvents(theme))
	b.WriteString("\n")
	b.WriteString(widgets.Footer([]widgets.Keybind{{Key: "q", Label: "quit"}, {Key: "c", Label: "clear events"}}, m.width))
	return b.String()
}

func (m RootModel) renderEvents(theme styles.Theme) string {
	if len(m.events) == 0 {
		return theme.TitleMuted.Render("(none)")
	}
	limit := 8
	if m.height > 0 {
		if avail := m.height - 16; avail > limit {
			limit = avail
		}
	}
	start := 0
	if len(m.events) > limit {
		start = len(m.events) - limit
	}
	lines := make([]string, 0, len(m.events)-start)
	for _, e := range m.events[start:] {
		style := theme.TitleMuted
		switch e.Level {
		case monitor.LogLevelWarn:
			style = theme.LevelWarn
		case monitor.LogLevelError:
			style = theme.StateDown
		}
		lines = append(lines, style.Render(fmt.Sprintf("%s %s %s", e.At.Format("15:04:05"), styles.LevelIcon(string(e.Level)), e.Text)))
	}
	return strings.Join(lines, "\n")
}
