package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	accent    = lipgloss.Color("#A78BFA")
	hintGreen = lipgloss.Color("#86EFAC")
	mutedGray = lipgloss.Color("#6B7280")
	softWhite = lipgloss.Color("#F9FAFB")
	errorRed  = lipgloss.Color("#FCA5A5")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	sectionStyle = lipgloss.NewStyle().
			Foreground(softWhite).
			Bold(true).
			MarginTop(1)

	problemStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	controlStyle = lipgloss.NewStyle().
			Foreground(softWhite).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)

	disabledControlStyle = controlStyle.
				Foreground(mutedGray).
				BorderForeground(mutedGray)

	panelStyle = lipgloss.NewStyle().
			Foreground(hintGreen)

	listStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorRed)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true).
			MarginTop(1)

	frameStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Width(64)
)
