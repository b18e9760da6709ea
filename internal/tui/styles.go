package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor = lipgloss.Color("#A78BFA") // Purple
	mutedColor   = lipgloss.Color("#9CA3AF") // Gray
	textColor    = lipgloss.Color("#F9FAFB") // Light text

	// Run-state badge colors
	stateRunning  = lipgloss.Color("#10B981") // Green
	stateStarting = lipgloss.Color("#F59E0B") // Amber
	stateStopping = lipgloss.Color("#60A5FA") // Blue
	stateStopped  = lipgloss.Color("#9CA3AF") // Gray
	stateCrashed  = lipgloss.Color("#F87171") // Red

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			Background(primaryColor)

	rowStyle = lipgloss.NewStyle().
			Foreground(textColor)

	badgeStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("#1F2937"))

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			MarginTop(1)
)

// stateColor maps a run-state string to its badge color.
func stateColor(state string) lipgloss.Color {
	switch state {
	case "running":
		return stateRunning
	case "starting":
		return stateStarting
	case "stopping":
		return stateStopping
	case "crashed":
		return stateCrashed
	default:
		return stateStopped
	}
}
