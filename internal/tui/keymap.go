package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the key bindings shared by the board and notes views.
type KeyMap struct {
	// Navigation
	Left  key.Binding
	Right key.Binding
	Up    key.Binding
	Down  key.Binding
	Top   key.Binding
	Bot   key.Binding

	// Board actions
	MovePrev key.Binding
	MoveNext key.Binding
	Move     key.Binding
	Open     key.Binding
	Edit     key.Binding

	// Shared actions
	Add        key.Binding
	Delete     key.Binding
	Detail     key.Binding
	Filter     key.Binding
	Search     key.Binding
	Tags       key.Binding
	LoadMore   key.Binding
	Refresh    key.Binding
	Dismiss    key.Binding
	Back       key.Binding
	Help       key.Binding
	Quit       key.Binding
	ForceQuit  key.Binding
	Confirm    key.Binding
	Cancel     key.Binding
	NextField  key.Binding
	SubmitForm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "previous column"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next column"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous item"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next item"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first item"),
		),
		Bot: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last item"),
		),
		MovePrev: key.NewBinding(
			key.WithKeys("[", "H"),
			key.WithHelp("[/H", "move to previous stage"),
		),
		MoveNext: key.NewBinding(
			key.WithKeys("]", "L"),
			key.WithHelp("]/L", "move to next stage"),
		),
		Move: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "move to stage 1-9"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open link in browser"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "rename"),
		),
		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),
		Detail: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "details"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter cards"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		Tags: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "filter by tag"),
		),
		LoadMore: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "load more"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "dismiss error"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "backspace"),
			key.WithHelp("esc", "back to views"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQuit: key.NewBinding(
			key.WithKeys("ctrl+c"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y", "enter"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
		),
		SubmitForm: key.NewBinding(
			key.WithKeys("ctrl+s"),
		),
	}
}

// boardHelp lists the board bindings for the help overlay.
type boardHelp struct{ KeyMap }

func (k boardHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Back, k.Quit}
}

func (k boardHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right, k.Top, k.Bot},
		{k.MovePrev, k.MoveNext, k.Move, k.Open, k.Detail},
		{k.Add, k.Edit, k.Delete, k.Filter, k.Refresh},
		{k.Dismiss, k.Back, k.Help, k.Quit},
	}
}

// notesHelp lists the notes bindings for the help overlay.
type notesHelp struct{ KeyMap }

func (k notesHelp) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Back, k.Quit}
}

func (k notesHelp) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bot, k.Detail},
		{k.Search, k.Tags, k.LoadMore, k.Refresh},
		{k.Add, k.Delete, k.Dismiss},
		{k.Back, k.Help, k.Quit},
	}
}
