package styles

import "github.com/charmbracelet/lipgloss"

// Theme holds the colors and base styles of the monitor.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Muted   lipgloss.Color
	Text    lipgloss.Color
	TextDim lipgloss.Color

	Title      lipgloss.Style
	TitleMuted lipgloss.Style
	Keybind    lipgloss.Style
	KeybindKey lipgloss.Style

	StateUp      lipgloss.Style
	StateDown    lipgloss.Style
	StateMissing lipgloss.Style
	LevelWarn    lipgloss.Style
}

func DefaultTheme() Theme {
	primary := lipgloss.Color("#7C3AED")
	secondary := lipgloss.Color("#06B6D4")
	success := lipgloss.Color("#22C55E")
	warning := lipgloss.Color("#EAB308")
	errorC := lipgloss.Color("#EF4444")
	muted := lipgloss.Color("#6B7280")
	text := lipgloss.Color("#F9FAFB")
	textDim := lipgloss.Color("#9CA3AF")

	return Theme{
		Primary: primary,
		Success: success,
		Warning: warning,
		Error:   errorC,
		Muted:   muted,
		Text:    text,
		TextDim: textDim,

		Title:      lipgloss.NewStyle().Bold(true).Foreground(text),
		TitleMuted: lipgloss.NewStyle().Foreground(textDim),
		Keybind:    lipgloss.NewStyle().Foreground(textDim),
		KeybindKey: lipgloss.NewStyle().Bold(true).Foreground(secondary),

		StateUp:      lipgloss.NewStyle().Foreground(success),
		StateDown:    lipgloss.NewStyle().Foreground(errorC),
		StateMissing: lipgloss.NewStyle().Foreground(muted),
		LevelWarn:    lipgloss.NewStyle().Foreground(warning),
	}
}
