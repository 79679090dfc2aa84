package ui

import "github.com/charmbracelet/lipgloss"

var (
	neonCyan    = lipgloss.Color("#00FFFF")
	neonMagenta = lipgloss.Color("#FF00FF")
	neonGreen   = lipgloss.Color("#39FF14")
	neonYellow  = lipgloss.Color("#FFFF00")
	neonOrange  = lipgloss.Color("#FF6700")
	darkBg      = lipgloss.Color("#0A0E27")
	dimWhite    = lipgloss.Color("#B0B0B0")

	logoStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(neonCyan).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(neonYellow)

	successStyle = lipgloss.NewStyle().
			Foreground(neonGreen).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(neonOrange).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimWhite).
			Faint(true)

	// per-tag header bar
	titleStyle = lipgloss.NewStyle().
			Background(neonMagenta).
			Foreground(darkBg).
			Bold(true).
			Padding(0, 1)

	headerCellStyle = lipgloss.NewStyle().
			Foreground(neonMagenta).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	tableBorderStyle = lipgloss.NewStyle().
				Foreground(neonMagenta)
)

// reasonStyle colours a stop reason in the summary table
func reasonStyle(failed bool, reason string) lipgloss.Style {
	switch {
	case failed:
		return cellStyle.Foreground(lipgloss.Color("#FF0000"))
	case reason == "cancelled" || reason == "stale":
		return cellStyle.Foreground(neonOrange)
	default:
		return cellStyle.Foreground(neonGreen)
	}
}
