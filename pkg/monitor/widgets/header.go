package widgets

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/fleetctl/pkg/monitor/styles"
)

type Keybind struct {
	Key   string
	Label string
}

// Header renders the title bar: project, running count, last refresh.
type Header struct {
	Title   string
	Status  string
	OK      bool
	Updated time.Time
	Width   int
	theme   styles.Theme
}

func NewHeader(title string) Header {
	return Header{Title: title, theme: styles.DefaultTheme()}
}

func (h Header) WithStatus(status string, ok bool) Header {
	h.Status, h.OK = status, ok
	return h
}

func (h Header) WithUpdated(t time.Time) Header {
	h.Updated = t
	return h
}

func (h Header) WithWidth(w int) Header {
	h.Width = w
	return h
}

func (h Header) Render() string {
	theme := h.theme
	left := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.Text).
		Background(theme.Primary).
		Padding(0, 1).
		Render(h.Title)

	if h.Status != "" {
		st := theme.StateDown
		if h.OK {
			st = theme.StateUp
		}
		left = lipgloss.JoinHorizontal(lipgloss.Center, left, "  ", st.Render(styles.IconUp)+" "+h.Status)
	}

	right := ""
	if !h.Updated.IsZero() {
		right = theme.TitleMuted.Render(fmt.Sprintf("updated %s", h.Updated.Format("15:04:05")))
	}

	spacing := h.width() - lipgloss.Width(left) - lipgloss.Width(right)
	if spacing < 1 {
		spacing = 1
	}
	line := left + strings.Repeat(" ", spacing) + right
	return lipgloss.JoinVertical(lipgloss.Left, line, separator(h.width(), theme))
}

func (h Header) width() int {
	if h.Width <= 0 {
		return 80
	}
	return h.Width
}

func separator(width int, theme styles.Theme) string {
	return lipgloss.NewStyle().Foreground(theme.Muted).Render(strings.Repeat("━", width))
}

// Footer renders keybinding hints under a separator.
func Footer(keybinds []Keybind, width int) string {
	theme := styles.DefaultTheme()
	if width <= 0 {
		width = 80
	}
	parts := make([]string, 0, len(keybinds))
	for _, kb := range keybinds {
		parts = append(parts, theme.KeybindKey.Render("["+kb.Key+"]")+theme.Keybind.Render(" "+kb.Label))
	}
	return lipgloss.JoinVertical(lipgloss.Left, separator(width, theme), strings.Join(parts, "  "))
}
