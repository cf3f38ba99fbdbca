package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/h0rv/opsdash/internal/domain"
)

// viewItem is one entry of the view picker.
type viewItem struct {
	name  string
	title string
	desc  string
}

func (i viewItem) FilterValue() string { return i.title }
func (i viewItem) Title() string       { return i.title }
func (i viewItem) Description() string { return i.desc }

func boardItem(def domain.BoardDef) viewItem {
	labels := make([]string, len(def.Stages))
	for i, s := range def.Stages {
		labels[i] = s.Label
	}
	return viewItem{
		name:  def.Name,
		title: def.Title,
		desc:  strings.Join(labels, " → "),
	}
}

func notesItem() viewItem {
	return viewItem{
		name:  NotesView,
		title: "Memory Notes",
		desc:  "search, tag and capture notes",
	}
}

// viewDelegate renders picker items on two lines.
type viewDelegate struct{}

func (d viewDelegate) Height() int                             { return 2 }
func (d viewDelegate) Spacing() int                            { return 1 }
func (d viewDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }
func (d viewDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	i, ok := item.(viewItem)
	if !ok {
		return
	}

	str := fmt.Sprintf("%d. %s", index+1, i.Title())
	if index == m.Index() {
		fmt.Fprint(w, SelectedItemStyle.Render("> "+str))
		fmt.Fprint(w, "\n  "+NormalItemStyle.Render(i.Description()))
	} else {
		fmt.Fprint(w, NormalItemStyle.Render("  "+str))
		fmt.Fprint(w, "\n  "+dimStyle.Render(i.Description()))
	}
}

// ViewPickerModel lists the boards and the notes view for the user to choose from.
type ViewPickerModel struct {
	list list.Model
	err  error
}

// NewViewPickerModel creates a picker over boards followed by the notes view.
func NewViewPickerModel(boards []domain.BoardDef) ViewPickerModel {
	items := make([]list.Item, 0, len(boards)+1)
	for _, def := range boards {
		items = append(items, boardItem(def))
	}
	items = append(items, notesItem())

	l := list.New(items, viewDelegate{}, 80, 24)
	l.Title = "opsdash"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = TitleStyle

	return ViewPickerModel{list: l}
}

// Init asks for the terminal size so the list can lay itself out.
func (m ViewPickerModel) Init() tea.Cmd {
	return tea.WindowSize()
}

// Update selects a view on enter and quits on q or esc.
func (m ViewPickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(msg.Width - 2)
		m.list.SetHeight(msg.Height - 2)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, func() tea.Msg { return QuitMsg{} }
		case "enter":
			if item, ok := m.list.SelectedItem().(viewItem); ok {
				return m, func() tea.Msg { return ViewSelectedMsg{View: item.name} }
			}
		}

	case ErrorMsg:
		m.err = msg.Err
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list with any error below it.
func (m ViewPickerModel) View() string {
	view := m.list.View()
	if m.err != nil {
		view += ErrorStyle.Render(fmt.Sprintf("\nError: %v", m.err))
	}
	return view
}
