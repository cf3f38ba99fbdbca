package tui

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/browser"

	"github.com/h0rv/opsdash/internal/board"
	"github.com/h0rv/opsdash/internal/domain"
)

// Layout constants
const (
	leftPanelRatio = 0.35
	minLeftWidth   = 30
	maxLeftWidth   = 50
	headerHeight   = 1
	footerHeight   = 1
	borderSize     = 2 // Top + bottom border
)

// bodyColumns are the long-text columns shown (and edited) in the right panel, by preference.
var bodyColumns = []string{"script", "description", "notes", "content"}

var (
	detailTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorAccent)

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(colorMuted)

	detailValueStyle = lipgloss.NewStyle().
				Foreground(colorText)

	panelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("240"))

	focusedPanelBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorAccent)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228")).
			Bold(true)
)

type detailField struct {
	label string
	value string
}

// DetailModel shows one entity or note in a split view: scalar fields on the left and the
// long-text body on the right. Board bodies can be edited in place.
type DetailModel struct {
	title  string
	url    string
	fields []detailField

	bodyLabel string
	body      string
	save      func(text string) error // nil when the body is read-only

	editor   textarea.Model
	viewport viewport.Model

	editMode    bool
	confirmExit bool
	errorMsg    string
	successMsg  string

	width  int
	height int
}

func newDetailModel(title, url string, fields []detailField, bodyLabel, body string, save func(string) error) DetailModel {
	ta := textarea.New()
	ta.CharLimit = 65535
	ta.SetHeight(8)
	ta.ShowLineNumbers = false
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()

	vp := viewport.New(40, 10) // Resized on WindowSizeMsg
	vp.MouseWheelEnabled = true
	vp.MouseWheelDelta = 3

	m := DetailModel{
		title:     title,
		url:       url,
		fields:    fields,
		bodyLabel: bodyLabel,
		body:      body,
		save:      save,
		editor:    ta,
		viewport:  vp,
	}
	m.updateViewportContent()
	return m
}

// NewEntityDetail builds the detail view of a board entity. The first long-text column the
// board declares becomes the editable body.
func NewEntityDetail(c *board.Controller, e domain.Entity) DetailModel {
	def := c.Def()
	fields := []detailField{{label: "Stage", value: stageLabel(def, e.Stage)}}

	bodyKey := ""
	for _, col := range bodyColumns {
		if slices.Contains(def.Columns, col) {
			bodyKey = col
			break
		}
	}

	var keys []string
	for k := range e.Fields {
		if k != bodyKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := formatValue(e.Fields[k]); v != "" {
			fields = append(fields, detailField{label: k, value: v})
		}
	}
	fields = append(fields, timeFields(e.CreatedAt, e.UpdatedAt)...)

	var save func(string) error
	if bodyKey != "" {
		id := e.ID
		save = func(text string) error {
			return c.Edit(id, map[string]any{bodyKey: text})
		}
	}
	url := ""
	if def.URLField != "" {
		url = e.Text(def.URLField)
	}
	return newDetailModel(e.Title, url, fields, bodyKey, e.Text(bodyKey), save)
}

// NewNoteDetail builds the read-only detail view of a note.
func NewNoteDetail(n domain.Note) DetailModel {
	fields := []detailField{
		{label: "tags", value: strings.Join(n.Tags, ", ")},
		{label: "source", value: n.Source},
		{label: "date", value: n.MemoryDate},
	}
	fields = append(fields, timeFields(time.Time{}, n.UpdatedAt)...)
	return newDetailModel(n.Title, "", fields, "content", n.Content, nil)
}

func stageLabel(def domain.BoardDef, id string) string {
	if i := def.StageIndex(id); i >= 0 {
		return def.Stages[i].Label
	}
	return id
}

func timeFields(created, updated time.Time) []detailField {
	var out []detailField
	if !created.IsZero() {
		out = append(out, detailField{label: "created", value: created.Local().Format("2006-01-02 15:04")})
	}
	if !updated.IsZero() {
		out = append(out, detailField{label: "updated", value: updated.Local().Format("2006-01-02 15:04")})
	}
	return out
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return strings.Join(v, ", ")
	case []any:
		parts := make([]string, 0, len(v))
		for _, p := range v {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
	}
	return fmt.Sprint(v)
}

// Init initializes the detail model.
func (m DetailModel) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update handles messages.
func (m DetailModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeComponents()
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.MouseMsg:
		if !m.editMode {
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}

	if m.editMode {
		var cmd tea.Cmd
		m.editor, cmd = m.editor.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *DetailModel) resizeComponents() {
	_, rightWidth := m.panelWidths()

	contentHeight := m.height - headerHeight - footerHeight - borderSize
	if contentHeight < 10 {
		contentHeight = 10
	}

	m.viewport.Width = rightWidth - borderSize - 2
	m.viewport.Height = contentHeight - borderSize
	if m.editMode {
		m.viewport.Height -= m.editor.Height() + 2
	}
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
	m.editor.SetWidth(rightWidth - borderSize - 4)
	m.updateViewportContent()
}

func (m DetailModel) panelWidths() (left, right int) {
	width := m.width
	if width == 0 {
		width = 100
	}
	left = int(float64(width) * leftPanelRatio)
	left = max(minLeftWidth, min(left, maxLeftWidth))
	right = width - left - 1
	if right < 30 {
		right = 30
	}
	return left, right
}

func (m *DetailModel) updateViewportContent() {
	width := m.viewport.Width
	if width < 10 {
		width = 10
	}
	body := m.body
	if strings.TrimSpace(body) == "" {
		body = dimStyle.Render("(empty)")
	}
	m.viewport.SetContent(wordwrap.String(body, width))
}

func (m DetailModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.confirmExit {
		switch msg.String() {
		case "y", "Y":
			m.confirmExit = false
			m.stopEditing()
			return m, nil
		case "n", "N", "esc":
			m.confirmExit = false
			return m, nil
		case "s", "S":
			m.confirmExit = false
			m.saveEdit()
			return m, nil
		}
		return m, nil
	}

	if m.editMode {
		switch msg.String() {
		case "esc":
			if m.editor.Value() != m.body {
				m.confirmExit = true
				return m, nil
			}
			m.stopEditing()
			return m, nil
		case "ctrl+s":
			m.saveEdit()
			return m, nil
		default:
			var cmd tea.Cmd
			m.editor, cmd = m.editor.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "esc":
		return m, func() tea.Msg { return closeDetailMsg{} }
	case "o":
		if m.url != "" {
			_ = browser.OpenURL(m.url)
		}
	case "e":
		if m.save != nil {
			m.editMode = true
			m.errorMsg, m.successMsg = "", ""
			m.editor.SetValue(m.body)
			m.editor.Focus()
			m.resizeComponents()
			return m, textarea.Blink
		}
	case "j", "down":
		m.viewport.LineDown(1)
	case "k", "up":
		m.viewport.LineUp(1)
	case "ctrl+d":
		m.viewport.HalfViewDown()
	case "ctrl+u":
		m.viewport.HalfViewUp()
	case "g":
		m.viewport.GotoTop()
	case "G":
		m.viewport.GotoBottom()
	}
	return m, nil
}

// saveEdit applies the editor text through the board controller. The change is optimistic:
// a failed write is reported on the board, not here.
func (m *DetailModel) saveEdit() {
	text := m.editor.Value()
	if err := m.save(text); err != nil {
		m.errorMsg = fmt.Sprintf("Save failed: %v", err)
		return
	}
	m.body = text
	m.successMsg = "Saved"
	m.stopEditing()
}

func (m *DetailModel) stopEditing() {
	m.editMode = false
	m.editor.Blur()
	m.editor.Reset()
	m.resizeComponents()
}

// View renders the split-screen detail view.
func (m DetailModel) View() string {
	height := m.height
	if height == 0 {
		height = 30
	}
	leftWidth, rightWidth := m.panelWidths()
	contentHeight := max(height-headerHeight-footerHeight, 10)

	header := m.renderHeader()

	left := panelBorderStyle.
		Width(leftWidth - borderSize).
		Height(contentHeight - borderSize).
		Render(m.renderFields(leftWidth - borderSize - 2))

	rightBorder := focusedPanelBorderStyle
	if m.editMode {
		rightBorder = panelBorderStyle
	}
	right := rightBorder.
		Width(rightWidth - borderSize).
		Height(contentHeight - borderSize).
		Render(m.renderBody())

	panels := lipgloss.JoinHorizontal(lipgloss.Top, left, " ", right)
	return lipgloss.JoinVertical(lipgloss.Left, header, panels, m.renderFooter())
}

func (m DetailModel) renderHeader() string {
	if m.confirmExit {
		return warningStyle.Render("Unsaved changes! [Y]discard [N]cancel [S]save")
	}
	if m.editMode {
		return dimStyle.Render("[Ctrl+S]save [ESC]cancel") + "  " + accentStyle.Render("Editing "+m.bodyLabel)
	}
	parts := []string{"[q]back", "[j/k]scroll", "[g/G]top/bottom"}
	if m.url != "" {
		parts = append(parts, "[o]open")
	}
	if m.save != nil {
		parts = append(parts, "[e]edit "+m.bodyLabel)
	}
	return dimStyle.Render(strings.Join(parts, " "))
}

func (m DetailModel) renderFields(width int) string {
	width = max(width, 10)
	lines := []string{detailTitleStyle.Render(wordwrap.String(m.title, width)), ""}
	for _, f := range m.fields {
		if f.value == "" {
			continue
		}
		lines = append(lines,
			detailLabelStyle.Render(f.label),
			detailValueStyle.Render(wordwrap.String(f.value, width)),
		)
	}
	if m.url != "" {
		lines = append(lines, detailLabelStyle.Render("link"), truncate.StringWithTail(m.url, uint(width), "…"))
	}
	return strings.Join(lines, "\n")
}

func (m DetailModel) renderBody() string {
	sections := []string{detailLabelStyle.Render(m.bodyLabel), m.viewport.View()}
	if m.editMode {
		sections = append(sections, m.editor.View())
	}
	return strings.Join(sections, "\n")
}

func (m DetailModel) renderFooter() string {
	switch {
	case m.errorMsg != "":
		return ErrorStyle.Render(m.errorMsg)
	case m.successMsg != "":
		return accentStyle.Render(m.successMsg)
	}
	return dimStyle.Render(fmt.Sprintf("%3.f%%", m.viewport.ScrollPercent()*100))
}
