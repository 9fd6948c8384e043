// Package ui holds the terminal views of the receiptgen CLI.
package ui

import "github.com/charmbracelet/lipgloss"

// Palette taken from the receipt template header band.
var (
	Primary     = lipgloss.Color("#1E3A8A")
	Accent      = lipgloss.Color("#10B981")
	Muted       = lipgloss.Color("#6B7280")
	Warning     = lipgloss.Color("#F59E0B")
	Destructive = lipgloss.Color("#DC2626")
)

// Styles groups the lipgloss styles used by the CLI.
type Styles struct {
	Title   lipgloss.Style
	Stage   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style
	Box     lipgloss.Style
}

// DefaultStyles returns the CLI styles.
func DefaultStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(Primary).Padding(0, 1),
		Stage:   lipgloss.NewStyle().Bold(true).Foreground(Primary),
		Muted:   lipgloss.NewStyle().Foreground(Muted),
		Success: lipgloss.NewStyle().Bold(true).Foreground(Accent),
		Warning: lipgloss.NewStyle().Foreground(Warning),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(Destructive),
		Key:     lipgloss.NewStyle().Foreground(Muted).Width(14),
		Box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Primary).Padding(0, 1),
	}
}

// KeyValues renders aligned "key  value" rows.
func (s Styles) KeyValues(rows [][2]string) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, s.Key.Render(r[0]), r[1]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
