package styles

const (
	IconUp      = "●"
	IconDown    = "✗"
	IconMissing = "○"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
)

// StateIcon maps a container state to an icon.
func StateIcon(state string) string {
	switch state {
	case "running":
		return IconUp
	case "", "not created":
		return IconMissing
	default:
		return IconDown
	}
}

func LevelIcon(level string) string {
	switch level {
	case "warn", "error":
		return IconWarning
	default:
		return IconInfo
	}
}
