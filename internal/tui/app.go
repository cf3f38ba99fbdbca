package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// AppScreen represents the different screens in the application flow.
type AppScreen int

const (
	ScreenPicker AppScreen = iota
	ScreenBoard
	ScreenNotes
	ScreenDetail
)

// AppModel is the root Bubble Tea model that manages screen transitions:
// view picker -> board or notes -> detail.
type AppModel struct {
	session *Session
	ctx     context.Context

	// Initial view from the command line; empty shows the picker.
	initialView string

	currentScreen AppScreen
	currentModel  tea.Model
	err           error

	// Cached models preserve cursor and filter state across screen transitions
	picker ViewPickerModel
	boards map[string]BoardModel
	notes  *NotesModel

	// Screen and view to return to from the detail view
	returnScreen AppScreen
	currentView  string
}

// NewAppModel creates the app over session. initialView may name a board or NotesView.
func NewAppModel(session *Session, ctx context.Context, initialView string) AppModel {
	picker := NewViewPickerModel(session.Boards())
	return AppModel{
		session:       session,
		ctx:           ctx,
		initialView:   initialView,
		currentScreen: ScreenPicker,
		currentModel:  picker,
		picker:        picker,
		boards:        make(map[string]BoardModel),
	}
}

// Init starts the event pump and opens the initial view.
func (m AppModel) Init() tea.Cmd {
	cmds := []tea.Cmd{m.session.waitForEvent()}
	if m.initialView != "" {
		view := m.initialView
		cmds = append(cmds, func() tea.Msg { return ViewSelectedMsg{View: view} })
	} else {
		cmds = append(cmds, m.picker.Init())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and transitions between screens.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.err != nil {
			return m, nil
		}

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case QuitMsg:
		return m, tea.Quit

	case boardEventMsg, notesEventMsg:
		// Re-arm the pump, then let the current view resync.
		next := m.session.waitForEvent()
		var cmd tea.Cmd
		m, cmd = m.delegate(msg)
		return m, tea.Batch(next, cmd)

	case ViewSelectedMsg:
		return m.open(msg.View)

	case BackMsg:
		m.saveCurrent()
		m.currentScreen = ScreenPicker
		m.currentModel = m.picker
		m.currentView = ""
		return m, tea.WindowSize()

	case openDetailMsg:
		m.saveCurrent()
		m.returnScreen = m.currentScreen
		m.currentScreen = ScreenDetail
		m.currentModel = msg.detail
		return m, msg.detail.Init()

	case closeDetailMsg:
		m.currentScreen = m.returnScreen
		switch m.returnScreen {
		case ScreenBoard:
			bm := m.boards[m.currentView]
			bm.sync()
			m.currentModel = bm
		case ScreenNotes:
			nm := *m.notes
			nm.sync()
			m.currentModel = nm
		default:
			m.currentModel = m.picker
		}
		return m, tea.WindowSize()
	}

	return m.delegate(msg)
}

// open switches to the named board or the notes view, creating its controller on first use.
func (m AppModel) open(view string) (tea.Model, tea.Cmd) {
	m.saveCurrent()
	m.currentView = view

	if view == NotesView {
		m.currentScreen = ScreenNotes
		if m.notes != nil {
			m.currentModel = *m.notes
			return m, tea.WindowSize()
		}
		nm := NewNotesModel(m.session.Notes(), m.ctx)
		m.notes = &nm
		m.currentModel = nm
		return m, nm.Init()
	}

	if bm, ok := m.boards[view]; ok {
		m.currentScreen = ScreenBoard
		bm.sync()
		m.currentModel = bm
		return m, tea.Batch(tea.WindowSize(), bm.Init())
	}
	ctrl, err := m.session.Board(view)
	if err != nil {
		m.err = fmt.Errorf("open %q: %w", view, err)
		return m, nil
	}
	bm := NewBoardModel(ctrl, m.ctx)
	m.boards[view] = bm
	m.currentScreen = ScreenBoard
	m.currentModel = bm
	return m, bm.Init()
}

// saveCurrent writes the current screen's model back to its cache.
func (m *AppModel) saveCurrent() {
	switch cur := m.currentModel.(type) {
	case BoardModel:
		m.boards[cur.ctrl.Def().Name] = cur
	case NotesModel:
		m.notes = &cur
	case ViewPickerModel:
		m.picker = cur
	}
}

// delegate forwards msg to the current screen and keeps the cache in sync.
func (m AppModel) delegate(msg tea.Msg) (AppModel, tea.Cmd) {
	if m.currentModel == nil {
		return m, nil
	}
	var cmd tea.Cmd
	m.currentModel, cmd = m.currentModel.Update(msg)
	m.saveCurrent()
	return m, cmd
}

// View renders the current screen.
func (m AppModel) View() string {
	if m.err != nil {
		return ErrorStyle.Render(fmt.Sprintf("Error: %v\n\nPress Ctrl+C to quit", m.err))
	}
	if m.currentModel != nil {
		return m.currentModel.View()
	}
	return ""
}
