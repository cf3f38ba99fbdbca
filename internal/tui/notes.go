package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/search"
)

// noteLines is the height of one rendered note in the list.
const noteLines = 2

// Add form fields, in tab order.
const (
	formTitle = iota
	formContent
	formTags
	formSource
	formDate
	formFields
)

var formLabels = [formFields]string{"title", "content", "tags", "source", "date"}

// NotesModel is the search view of the note store.
type NotesModel struct {
	store *search.Store
	ctx   context.Context

	keymap  KeyMap
	help    HelpModel
	spinner spinner.Model
	query   textinput.Model
	form    [formFields]textinput.Model

	// Snapshot of the store, refreshed by sync
	window  search.Window
	tags    []string
	status  search.Status
	active  search.Query
	pending bool

	cursor    int
	offset    int
	tagCursor int

	width         int
	height        int
	showHelp      bool
	searching     bool
	tagMode       bool
	formOpen      bool
	formFocus     int
	submitting    bool
	confirmDelete bool
	toast         string
}

// NewNotesModel creates a notes view over store.
func NewNotesModel(store *search.Store, ctx context.Context) NotesModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorAccent)

	q := textinput.New()
	q.Prompt = "search: "
	q.Placeholder = "type to filter title and content"

	var form [formFields]textinput.Model
	for i := range form {
		form[i] = textinput.New()
		form[i].Prompt = fmt.Sprintf("%-8s ", formLabels[i]+":")
	}
	form[formTags].Placeholder = "comma separated"
	form[formSource].Placeholder = "manual"
	form[formDate].Placeholder = "YYYY-MM-DD, default today"

	km := DefaultKeyMap()
	m := NotesModel{
		store:   store,
		ctx:     ctx,
		keymap:  km,
		help:    NewHelpModel("Notes keys", notesHelp{km}),
		spinner: sp,
		query:   q,
		form:    form,
	}
	m.sync()
	return m
}

// Init starts the first fetch of the window and the tag universe.
func (m NotesModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tea.WindowSize(), m.refresh())
}

// Update handles messages.
func (m NotesModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.adjustScroll()
		return m, nil

	case notesEventMsg, notesLoadedMsg:
		m.sync()
		return m, nil

	case noteAddedMsg:
		m.submitting = false
		if msg.err != nil && msg.id == "" {
			m.toast = fmt.Sprintf("Add failed: %v", msg.err)
			if errors.Is(msg.err, domain.ErrValidation) {
				m.toast = msg.err.Error()
			}
			m.sync()
			return m, nil
		}
		m.closeForm()
		m.toast = ""
		m.sync()
		m.selectNote(msg.id)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	}

	return m, nil
}

func (m NotesModel) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keymap.ForceQuit) {
		return m, tea.Quit
	}

	switch {
	case m.showHelp:
		if msg.String() == "?" || msg.String() == "q" || msg.String() == "esc" {
			m.showHelp = false
		}
		return m, nil
	case m.formOpen:
		return m.handleForm(msg)
	case m.searching:
		return m.handleSearch(msg)
	case m.tagMode:
		return m.handleTagMode(msg)
	case m.confirmDelete:
		m.confirmDelete = false
		if key.Matches(msg, m.keymap.Confirm) {
			if n, ok := m.selectedNote(); ok {
				m.report(m.store.DeleteEntry(n.ID))
			}
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keymap.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keymap.Back):
		return m, func() tea.Msg { return BackMsg{} }
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = true
	case key.Matches(msg, m.keymap.Search):
		m.searching = true
		m.query.CursorEnd()
		cmd := m.query.Focus()
		return m, cmd
	case key.Matches(msg, m.keymap.Tags):
		if len(m.tags) > 0 {
			m.tagMode = true
			m.tagCursor = max(0, min(m.tagCursor, len(m.tags)-1))
		}
	case key.Matches(msg, m.keymap.Down):
		cmd := m.moveCursor(1)
		return m, cmd
	case key.Matches(msg, m.keymap.Up):
		cmd := m.moveCursor(-1)
		return m, cmd
	case msg.String() == "ctrl+d":
		cmd := m.moveCursor(pageJumpSize)
		return m, cmd
	case msg.String() == "ctrl+u":
		cmd := m.moveCursor(-pageJumpSize)
		return m, cmd
	case key.Matches(msg, m.keymap.Top):
		m.cursor = 0
		m.adjustScroll()
	case key.Matches(msg, m.keymap.Bot):
		cmd := m.moveCursor(len(m.window.Entries))
		return m, cmd
	case key.Matches(msg, m.keymap.LoadMore):
		return m, m.loadMore()
	case key.Matches(msg, m.keymap.Refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keymap.Add):
		m.openForm()
		return m, textinput.Blink
	case key.Matches(msg, m.keymap.Delete):
		if _, ok := m.selectedNote(); ok {
			m.confirmDelete = true
		}
	case key.Matches(msg, m.keymap.Dismiss):
		m.store.ClearError()
		m.toast = ""
		m.sync()
	case key.Matches(msg, m.keymap.Detail):
		if n, ok := m.selectedNote(); ok {
			detail := NewNoteDetail(n)
			return m, func() tea.Msg { return openDetailMsg{detail: detail} }
		}
	}
	return m, nil
}

// handleSearch feeds keystrokes to the query input. Every change is handed to the store,
// which refetches once typing pauses.
func (m NotesModel) handleSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "enter", "down":
		m.searching = false
		m.query.Blur()
		return m, nil
	}
	before := m.query.Value()
	var cmd tea.Cmd
	m.query, cmd = m.query.Update(msg)
	if after := m.query.Value(); after != before {
		m.store.SetQuery(after)
		m.sync()
	}
	return m, cmd
}

func (m NotesModel) handleTagMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Cancel), key.Matches(msg, m.keymap.Tags):
		m.tagMode = false
	case key.Matches(msg, m.keymap.Left):
		m.tagCursor = max(m.tagCursor-1, 0)
	case key.Matches(msg, m.keymap.Right):
		m.tagCursor = min(m.tagCursor+1, len(m.tags)-1)
	case msg.String() == "enter", msg.String() == " ":
		if m.tagCursor < len(m.tags) {
			m.tagMode = false
			return m, m.setTag(m.tags[m.tagCursor])
		}
	}
	return m, nil
}

func (m *NotesModel) openForm() {
	m.formOpen = true
	m.formFocus = formTitle
	m.toast = ""
	for i := range m.form {
		m.form[i].Reset()
		m.form[i].Blur()
	}
	m.form[formTitle].Focus()
}

func (m *NotesModel) closeForm() {
	m.formOpen = false
	for i := range m.form {
		m.form[i].Blur()
	}
}

func (m NotesModel) handleForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.submitting {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keymap.Cancel):
		m.closeForm()
		return m, nil
	case key.Matches(msg, m.keymap.SubmitForm),
		msg.String() == "enter" && m.formFocus == formFields-1:
		m.submitting = true
		return m, m.addEntry(domain.NoteInput{
			Title:      m.form[formTitle].Value(),
			Content:    m.form[formContent].Value(),
			Tags:       m.form[formTags].Value(),
			Source:     m.form[formSource].Value(),
			MemoryDate: m.form[formDate].Value(),
		})
	case key.Matches(msg, m.keymap.NextField), msg.String() == "enter":
		m.form[m.formFocus].Blur()
		if msg.String() == "shift+tab" {
			m.formFocus = (m.formFocus + formFields - 1) % formFields
		} else {
			m.formFocus = (m.formFocus + 1) % formFields
		}
		cmd := m.form[m.formFocus].Focus()
		return m, cmd
	}
	var cmd tea.Cmd
	m.form[m.formFocus], cmd = m.form[m.formFocus].Update(msg)
	return m, cmd
}

// moveCursor moves the selection and asks for the next page once it reaches the last entry.
func (m *NotesModel) moveCursor(delta int) tea.Cmd {
	n := len(m.window.Entries)
	if n == 0 {
		return nil
	}
	m.cursor = max(0, min(m.cursor+delta, n-1))
	m.adjustScroll()
	if m.cursor == n-1 && m.window.HasMore() && !m.status.Loading {
		return m.loadMore()
	}
	return nil
}

func (m *NotesModel) report(err error) {
	if err != nil {
		m.toast = fmt.Sprintf("Failed: %v", err)
	} else {
		m.toast = ""
	}
	m.sync()
}

func (m NotesModel) refresh() tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		return notesLoadedMsg{err: errors.Join(store.Refresh(ctx), store.RefreshTags(ctx))}
	}
}

func (m NotesModel) loadMore() tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		return notesLoadedMsg{err: store.LoadMore(ctx)}
	}
}

func (m NotesModel) setTag(tag string) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		return notesLoadedMsg{err: store.SetActiveTag(ctx, tag)}
	}
}

func (m NotesModel) addEntry(in domain.NoteInput) tea.Cmd {
	store, ctx := m.store, m.ctx
	return func() tea.Msg {
		id, err := store.AddEntry(ctx, in)
		return noteAddedMsg{id: id, err: err}
	}
}

// sync takes a fresh snapshot of the store.
func (m *NotesModel) sync() {
	prev := ""
	if n, ok := m.selectedNote(); ok {
		prev = n.ID
	}
	m.window = m.store.Window()
	m.tags = m.store.Tags()
	m.status = m.store.Status()
	m.active, _, m.pending = m.store.Query()
	if m.tagCursor >= len(m.tags) {
		m.tagCursor = max(len(m.tags)-1, 0)
	}
	if prev != "" {
		m.selectNote(prev)
	}
	if m.cursor >= len(m.window.Entries) {
		m.cursor = max(len(m.window.Entries)-1, 0)
	}
	m.adjustScroll()
}

func (m *NotesModel) selectNote(id string) {
	for i, n := range m.window.Entries {
		if n.ID == id {
			m.cursor = i
			m.adjustScroll()
			return
		}
	}
}

func (m NotesModel) selectedNote() (domain.Note, bool) {
	if m.cursor < len(m.window.Entries) {
		return m.window.Entries[m.cursor], true
	}
	return domain.Note{}, false
}

func (m NotesModel) size() (int, int) {
	width, height := m.width, m.height
	if width == 0 {
		width = 80
	}
	if height == 0 {
		height = 24
	}
	return width, height
}

// visibleNotes is how many notes fit under the header, search, tag and footer lines.
func (m NotesModel) visibleNotes() int {
	_, height := m.size()
	lines := height - 5
	if m.formOpen {
		lines -= formFields + 1
	}
	return max(lines/noteLines, 1)
}

func (m *NotesModel) adjustScroll() {
	visible := m.visibleNotes()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+visible {
		m.offset = m.cursor - visible + 1
	}
}

// View renders the notes view.
func (m NotesModel) View() string {
	width, height := m.size()
	sections := []string{m.renderHeader(width), m.query.View(), m.renderTags(width)}

	if m.showHelp {
		lines := strings.Split(m.help.View(width), "\n")
		if limit := height - len(sections); len(lines) > limit {
			lines = lines[:max(limit, 1)]
		}
		return lipgloss.JoinVertical(lipgloss.Left, append(sections, strings.Join(lines, "\n"))...)
	}

	if m.formOpen {
		sections = append(sections, m.renderForm())
	}
	sections = append(sections, m.renderList(width), m.renderFooter(width))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m NotesModel) renderHeader(width int) string {
	title := "Memory Notes"

	var parts []string
	if m.status.Loading || m.submitting {
		parts = append(parts, m.spinner.View()+"loading")
	}
	if m.pending {
		parts = append(parts, "typing…")
	}
	if m.status.Deleting > 0 {
		parts = append(parts, fmt.Sprintf("deleting %d", m.status.Deleting))
	}
	parts = append(parts, fmt.Sprintf("%d/%d", m.window.Fetched, m.window.Total))
	if m.active.Tag != "" {
		parts = append(parts, "#"+m.active.Tag)
	}
	parts = append(parts, "[?]help")
	status := strings.Join(parts, " | ")

	padding := max(width-lipgloss.Width(title)-lipgloss.Width(status)-2, 1)
	return boldStyle.Render(title) + strings.Repeat(" ", padding) + dimStyle.Render(status)
}

// renderTags renders the tag universe on one line, highlighting the active tag.
func (m NotesModel) renderTags(width int) string {
	if len(m.tags) == 0 {
		return dimStyle.Render("no tags")
	}
	parts := make([]string, 0, len(m.tags))
	for i, t := range m.tags {
		label := "#" + t
		switch {
		case t == m.active.Tag:
			label = activeTagStyle.Render(label)
		case m.tagMode && i == m.tagCursor:
			label = selectedCardStyle.Underline(true).Render(label)
		default:
			label = tagStyle.Render(label)
		}
		parts = append(parts, label)
	}
	line := strings.Join(parts, " ")
	if m.tagMode {
		line = modeBadgeStyle.Render("TAG") + " " + line
	}
	return truncate.StringWithTail(line, uint(width), "…")
}

func (m NotesModel) renderForm() string {
	lines := []string{PromptStyle.Render("New note  tab:next  ctrl+s:save  esc:cancel")}
	for i := range m.form {
		lines = append(lines, m.form[i].View())
	}
	return strings.Join(lines, "\n")
}

func (m NotesModel) renderList(width int) string {
	entries := m.window.Entries
	if len(entries) == 0 {
		msg := "No notes match."
		if m.status.Loading {
			msg = m.spinner.View() + " Loading..."
		}
		return dimStyle.Render(msg)
	}

	end := min(m.offset+m.visibleNotes(), len(entries))
	lines := make([]string, 0, (end-m.offset)*noteLines)
	for i := m.offset; i < end; i++ {
		n := entries[i]
		title := truncate.StringWithTail(n.Title, uint(max(width-2, 10)), "…")
		if i == m.cursor {
			title = selectedCardStyle.Render("> " + title)
		} else {
			title = cardStyle.Render("  " + title)
		}
		lines = append(lines, title, "  "+dimStyle.Render(truncate.StringWithTail(noteSummary(n), uint(max(width-4, 10)), "…")))
	}
	return strings.Join(lines, "\n")
}

// noteSummary is the second list line: date, tags and the start of the content.
func noteSummary(n domain.Note) string {
	var parts []string
	if n.MemoryDate != "" {
		parts = append(parts, n.MemoryDate)
	}
	if len(n.Tags) > 0 {
		parts = append(parts, "#"+strings.Join(n.Tags, " #"))
	}
	parts = append(parts, strings.Join(strings.Fields(n.Content), " "))
	return strings.Join(parts, " · ")
}

func (m NotesModel) renderFooter(width int) string {
	switch {
	case m.confirmDelete:
		n, _ := m.selectedNote()
		return warningStyle.Render(fmt.Sprintf("Delete %q? [y]es / any key to cancel", n.Title))
	case m.toast != "":
		return ErrorStyle.Render(m.toast)
	case m.status.Err != nil:
		return ErrorStyle.Render(truncate.StringWithTail(m.status.Err.Error(), uint(max(width-4, 10)), "…") + " [x]")
	case m.window.HasMore():
		return dimStyle.Render(fmt.Sprintf("n: load %d more of %d", min(m.store.PageSize(), m.window.Total-m.window.Fetched), m.window.Total-m.window.Fetched))
	}
	return dimStyle.Render("end of results")
}
