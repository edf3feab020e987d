package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/fleetctl/pkg/monitor/styles"
	"github.com/go-go-golems/fleetctl/pkg/status"
)

type column struct {
	header string
	width  int
}

var serviceColumns = []column{
	{"SERVICE", 22}, {"ROLE", 18}, {"STATE", 12}, {"HEALTH", 10}, {"CPU", 8}, {"MEMORY", 22},
}

// ServiceTable renders one line per service with a state icon.
func ServiceTable(rows []status.ServiceStatus) string {
	theme := styles.DefaultTheme()
	if len(rows) == 0 {
		return theme.TitleMuted.Render("(no services)")
	}

	header := []string{"  "}
	for _, c := range serviceColumns {
		header = append(header, theme.Title.Width(c.width).Render(c.header))
	}
	lines := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}

	for _, r := range rows {
		iconStyle := theme.StateDown
		switch {
		case r.Running():
			iconStyle = theme.StateUp
		case r.State == status.StateNotCreated:
			iconStyle = theme.StateMissing
		}
		name := r.Service
		if r.Optional {
			name += "*"
		}
		health := r.Health
		if health == "" {
			health = "-"
		}
		cells := []string{name, r.Role, r.State, health, r.CPU, r.Memory}
		parts := []string{iconStyle.Render(styles.StateIcon(r.State)) + " "}
		for i, cell := range cells {
			w := serviceColumns[i].width
			parts = append(parts, lipgloss.NewStyle().Width(w).Foreground(theme.TextDim).Render(truncate(cell, w)))
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, parts...))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, w int) string {
	r := []rune(s)
	if len(r) < w {
		return s
	}
	return string(r[:w-2]) + "…"
}
