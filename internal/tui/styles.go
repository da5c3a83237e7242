package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00D9FF")).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666680")).
			Italic(true)

	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD700"))

	// user turns are yellow, replies white, stopped replies orange
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))
	stoppedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500"))

	assistantLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#4ECDC4"))

	summaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8A8AA3")).
			Italic(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A0A0B0"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4A4A6A"))
)
