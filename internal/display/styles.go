package display

import "github.com/charmbracelet/lipgloss"

// Color palette
var (
	colorHighlight = lipgloss.Color("#F5C2E7") // pink highlight
	colorSuccess   = lipgloss.Color("#22C55E") // green
	colorError     = lipgloss.Color("#EF4444") // red
	colorInfo      = lipgloss.Color("#3B82F6") // blue
	colorMuted     = lipgloss.Color("#6B7280") // gray
	colorText      = lipgloss.Color("#CDD6F4") // light text
	colorBorder    = lipgloss.Color("#45475A") // border
)

type styles struct {
	title   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	muted   lipgloss.Style
	section lipgloss.Style
	status  lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
}

// newStyles binds the palette to r so color output follows the destination writer.
func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title: r.NewStyle().
			Bold(true).
			Foreground(colorHighlight),
		label: r.NewStyle().
			Foreground(colorInfo).
			Bold(true).
			Width(16),
		value: r.NewStyle().
			Foreground(colorText),
		muted: r.NewStyle().
			Foreground(colorMuted),
		section: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1),
		status: r.NewStyle().
			Foreground(colorInfo),
		success: r.NewStyle().
			Foreground(colorSuccess),
		err: r.NewStyle().
			Foreground(colorError).
			Bold(true),
	}
}
