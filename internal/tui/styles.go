package tui

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of every screen.
type Styles struct {
	Title  lipgloss.Style
	Muted  lipgloss.Style
	Hint   lipgloss.Style
	Error  lipgloss.Style
	Key    lipgloss.Style
	Ghost  lipgloss.Style
	User   lipgloss.Style
	Speech lipgloss.Style
	Cursor lipgloss.Style
}

// DefaultStyles returns the dark theme.
func DefaultStyles() Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#b865ad")),
		Muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("#6c6c6c")),
		Hint:   lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#9e9e9e")),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("#b8211d")),
		Key:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e0e0e0")),
		Ghost:  lipgloss.NewStyle().Foreground(lipgloss.Color("#d7d7ff")),
		User:   lipgloss.NewStyle().Foreground(lipgloss.Color("#87afaf")),
		Speech: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		Cursor: lipgloss.NewStyle().Foreground(lipgloss.Color("#b865ad")),
	}
}

// speechBox returns the speech area style tinted with the ambient colour.
func (s Styles) speechBox(color string, width int) lipgloss.Style {
	st := s.Speech
	if color != "" {
		st = st.BorderForeground(lipgloss.Color(color))
	}
	if width > 4 {
		st = st.Width(width - 2)
	}
	return st
}
