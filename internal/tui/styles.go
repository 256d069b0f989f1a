package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/tutor/internal/status"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	recordingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	busyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	sessionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	activeSessionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("86"))

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("237"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	confirmStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("196")).
			Padding(1, 3)
)

// levelStyles colours the status bar per level.
var levelStyles = map[status.Level]lipgloss.Style{
	status.LevelInfo:    statusBarStyle.Foreground(lipgloss.Color("39")),
	status.LevelSuccess: statusBarStyle.Foreground(lipgloss.Color("82")),
	status.LevelError:   statusBarStyle.Foreground(lipgloss.Color("196")).Bold(true),
}

func panelStyle(active bool) lipgloss.Style {
	border := lipgloss.NormalBorder()
	if active {
		return lipgloss.NewStyle().
			Border(border, true).
			BorderForeground(lipgloss.Color("39"))
	}
	return lipgloss.NewStyle().
		Border(border, true).
		BorderForeground(lipgloss.Color("240"))
}
