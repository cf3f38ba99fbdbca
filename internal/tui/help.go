package tui

import (
	"github.com/charmbracelet/bubbles/help"
)

// HelpModel is the "?" overlay shared by the board and notes views.
type HelpModel struct {
	title  string
	help   help.Model
	keymap help.KeyMap
}

// NewHelpModel lists every binding of keymap under title.
func NewHelpModel(title string, keymap help.KeyMap) HelpModel {
	h := help.New()
	h.ShowAll = true
	return HelpModel{title: title, help: h, keymap: keymap}
}

// View renders the overlay boxed to width.
func (m HelpModel) View(width int) string {
	m.help.Width = max(width-8, 20) // border and padding
	return helpBoxStyle.Render(boldStyle.Render(m.title) + "\n\n" + m.help.View(m.keymap))
}
