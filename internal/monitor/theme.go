package monitor

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the monitor.
type Theme struct {
	BorderColor   tcell.Color
	TitleColor    tcell.Color
	TableHeaderFg tcell.Color
	TableCursorFg tcell.Color
	TableCursorBg tcell.Color
	LogRoomColor  string
	LogEventColor string
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BorderColor:   tcell.ColorDodgerBlue,
		TitleColor:    tcell.ColorFuchsia,
		TableHeaderFg: tcell.ColorWhite,
		TableCursorFg: tcell.ColorBlack,
		TableCursorBg: tcell.ColorAqua,
		LogRoomColor:  "aqua",
		LogEventColor: "orange",
	}
}

// StatusColor maps an instance status to its table color.
func StatusColor(status string) tcell.Color {
	switch status {
	case "connected":
		return tcell.ColorGreen
	case "qr":
		return tcell.ColorYellow
	case "init":
		return tcell.ColorLightSkyBlue
	case "disconnected":
		return tcell.ColorOrangeRed
	default:
		return tcell.ColorGray
	}
}
