package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/h0rv/opsdash/internal/board"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
	"github.com/h0rv/opsdash/internal/search"
)

// NotesView is the view name of the note store screen.
const NotesView = "notes"

// eventBuffer bounds how many controller events may queue before new ones are dropped.
// Views re-read controller state on every event, so dropping is harmless.
const eventBuffer = 64

// SessionConfig configures a Session.
type SessionConfig struct {
	Boards []domain.BoardDef // Defaults to domain.Boards()
	Search search.Options
	Logger logrus.FieldLogger
}

// Session owns the controllers behind the views. Controllers are created on first use and
// kept until Close, so switching views keeps their state. A Session is used from the program
// loop only; Close is called after the program exits.
type Session struct {
	ctx    context.Context
	gw     gateway.Gateway
	cfg    SessionConfig
	log    logrus.FieldLogger
	events chan tea.Msg

	boards map[string]*board.Controller
	notes  *search.Store
}

// NewSession creates a session on gw. ctx bounds the change-feed subscriptions.
func NewSession(ctx context.Context, gw gateway.Gateway, cfg SessionConfig) *Session {
	if len(cfg.Boards) == 0 {
		cfg.Boards = domain.Boards()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Session{
		ctx:    ctx,
		gw:     gw,
		cfg:    cfg,
		log:    cfg.Logger,
		events: make(chan tea.Msg, eventBuffer),
		boards: make(map[string]*board.Controller),
	}
}

// Boards returns the board definitions offered by the session.
func (s *Session) Boards() []domain.BoardDef { return s.cfg.Boards }

// Board returns the controller for the named board, creating and subscribing it on first use.
func (s *Session) Board(name string) (*board.Controller, error) {
	if c, ok := s.boards[name]; ok {
		return c, nil
	}
	var def domain.BoardDef
	found := false
	for _, d := range s.cfg.Boards {
		if d.Name == name {
			def, found = d, true
			break
		}
	}
	if !found {
		return nil, domain.ErrNotFound
	}

	c, err := board.New(def, s.gw, board.Options{
		Logger:  s.log,
		OnEvent: func(ev board.Event) { s.send(boardEventMsg{event: ev}) },
	})
	if err != nil {
		return nil, err
	}
	if err := c.Watch(s.ctx); err != nil {
		// Without a feed the board still works; it just never reconciles on its own.
		s.log.WithError(err).WithField("board", name).Warn("change feed unavailable")
	}
	s.boards[name] = c
	return c, nil
}

// Notes returns the note store, creating and subscribing it on first use.
func (s *Session) Notes() *search.Store {
	if s.notes != nil {
		return s.notes
	}
	opts := s.cfg.Search
	if opts.Logger == nil {
		opts.Logger = s.log
	}
	opts.OnEvent = func(ev search.Event) { s.send(notesEventMsg{event: ev}) }
	s.notes = search.New(s.gw, opts)
	if err := s.notes.Watch(s.ctx); err != nil {
		s.log.WithError(err).Warn("notes change feed unavailable")
	}
	return s.notes
}

// send queues msg for the program loop without ever blocking the caller.
func (s *Session) send(msg tea.Msg) {
	select {
	case s.events <- msg:
	default:
	}
}

// waitForEvent returns a command that delivers the next controller event. The receiver
// re-issues it after handling each event.
func (s *Session) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-s.events:
			return msg
		case <-s.ctx.Done():
			return nil
		}
	}
}

// Close closes every controller and waits for their background writes.
func (s *Session) Close() error {
	var errs []error
	for _, c := range s.boards {
		errs = append(errs, c.Close())
	}
	if s.notes != nil {
		errs = append(errs, s.notes.Close())
	}
	for _, c := range s.boards {
		c.Wait()
	}
	if s.notes != nil {
		s.notes.Wait()
	}
	return errors.Join(errs...)
}
