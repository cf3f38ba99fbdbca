package tui

import "github.com/charmbracelet/lipgloss"

// Palette (256-color codes).
const (
	colorAccent = lipgloss.Color("205")
	colorTitle  = lipgloss.Color("99")
	colorSelect = lipgloss.Color("170")
	colorText   = lipgloss.Color("252")
	colorMuted  = lipgloss.Color("241")
	colorError  = lipgloss.Color("196")
	colorTag    = lipgloss.Color("111")
	colorBorder = lipgloss.Color("62")
	colorInk    = lipgloss.Color("0")
)

var (
	// TitleStyle heads the view picker.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle).Padding(0, 1)

	// SelectedItemStyle and NormalItemStyle render picker rows.
	SelectedItemStyle = lipgloss.NewStyle().Foreground(colorSelect).Bold(true)
	NormalItemStyle   = lipgloss.NewStyle().Foreground(colorText)

	// ErrorStyle renders fatal errors and the failure banner.
	ErrorStyle = lipgloss.NewStyle().Foreground(colorError).Bold(true)

	// PromptStyle heads inline forms.
	PromptStyle = lipgloss.NewStyle().Foreground(colorTitle)

	accentStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
	tagStyle    = lipgloss.NewStyle().Foreground(colorTag)

	// Filled pills: the active tag and the FILTER/MOVE/SEARCH mode badge.
	activeTagStyle = lipgloss.NewStyle().Background(colorAccent).Foreground(colorInk).Padding(0, 1)
	modeBadgeStyle = activeTagStyle

	helpBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			MarginTop(2)
)
