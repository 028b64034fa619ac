package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorPrimary   = lipgloss.Color("12")  // bright blue
	colorSlop      = lipgloss.Color("9")   // bright red
	colorGenuine   = lipgloss.Color("10")  // bright green
	colorDim       = lipgloss.Color("240") // gray
	colorHighlight = lipgloss.Color("11")  // bright yellow
	colorBorder    = lipgloss.Color("238") // dark gray

	styleInput = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleInputPrompt = lipgloss.NewStyle().
				Foreground(colorPrimary).
				Bold(true)

	styleListSelected = lipgloss.NewStyle().
				Foreground(colorHighlight).
				Bold(true)

	styleVerdictSlop = lipgloss.NewStyle().
				Foreground(colorSlop).
				Bold(true)

	styleVerdictGenuine = lipgloss.NewStyle().
				Foreground(colorGenuine)

	styleVerdictOther = lipgloss.NewStyle().
				Foreground(colorDim)

	stylePanelBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorBorder)

	styleActiveBorder = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorPrimary)

	styleStatusBar = lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(0, 1)

	styleStateMonitoring = lipgloss.NewStyle().
				Foreground(colorGenuine).
				Bold(true)

	styleStateIdle = lipgloss.NewStyle().
			Foreground(colorHighlight).
			Bold(true)
)
