package tui

import (
	"github.com/h0rv/opsdash/internal/board"
	"github.com/h0rv/opsdash/internal/search"
)

// ViewSelectedMsg is sent when the user picks a board or the notes view.
type ViewSelectedMsg struct {
	View string // Board name, or NotesView
}

// BackMsg returns to the view picker.
type BackMsg struct{}

// ErrorMsg is sent when a fatal error occurs during app setup.
type ErrorMsg struct {
	Err error
}

// QuitMsg is sent when the user wants to quit.
type QuitMsg struct{}

// boardEventMsg carries a controller event into the program loop.
type boardEventMsg struct {
	event board.Event
}

// notesEventMsg carries a search store event into the program loop.
type notesEventMsg struct {
	event search.Event
}

// Results of blocking commands.
type (
	boardLoadedMsg struct {
		board string
		err   error
	}
	entityAddedMsg struct {
		board string
		id    string
		err   error
	}
	notesLoadedMsg struct{ err error }
	noteAddedMsg   struct {
		id  string
		err error
	}
	openDetailMsg  struct{ detail DetailModel }
	closeDetailMsg struct{}
)
