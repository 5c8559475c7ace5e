package status

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title    lipgloss.Style
	header   lipgloss.Style
	section  lipgloss.Style
	label    lipgloss.Style
	detail   lipgloss.Style
	good     lipgloss.Style
	pending  lipgloss.Style
	warning  lipgloss.Style
	empty    lipgloss.Style
	sender   lipgloss.Style
	own      lipgloss.Style
	stamp    lipgloss.Style
	receipts lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:    lipgloss.NewStyle().Bold(true),
		header:   lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		section:  lipgloss.NewStyle().MarginTop(1),
		label:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		good:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		empty:    lipgloss.NewStyle().Faint(true),
		sender:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		own:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		stamp:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		receipts: lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}
