// Package search implements the paginated note search store: a window over the filtered note
// collection that grows page by page, a debounced free-text query, a single active tag facet,
// and the tag universe of the whole collection.
package search

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/h0rv/opsdash/internal/clock"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

// Defaults for Options.
const (
	DefaultPageSize = 30
	DefaultDebounce = 300 * time.Millisecond
)

// Query is the filter of a window: free text matched against title and content, AND an
// optional single tag.
type Query struct {
	Text string
	Tag  string
}

// Window is a snapshot of the materialized prefix of the filtered, ordered note collection.
type Window struct {
	Entries []domain.Note
	Fetched int   // len(Entries)
	Total   int   // Server-reported count matching Query
	Query   Query // Filter the window was fetched for
}

// HasMore reports whether another page exists.
func (w Window) HasMore() bool { return w.Fetched < w.Total }

// EventKind classifies store events.
type EventKind int

const (
	// EventRefreshed means the window was rebuilt from offset 0.
	EventRefreshed EventKind = iota
	// EventAppended means LoadMore appended a page.
	EventAppended
	// EventTags means the tag universe was refreshed.
	EventTags
	// EventFailed means a fetch or write failed; state is unchanged.
	EventFailed
)

// Event reports completed work to the UI layer.
type Event struct {
	Kind EventKind
	Err  error
}

// Status is a snapshot of the store's progress indicators.
type Status struct {
	Loading  bool  // A fetch is in flight
	Pending  bool  // A typed query is waiting for the debounce deadline
	Deleting int   // Background deletes in flight
	Err      error // Last surfaced error, cleared by the next applied refresh
}

// Options configures a Store. Zero values select defaults.
type Options struct {
	PageSize int
	Debounce time.Duration
	Clock    clock.Clock
	Logger   logrus.FieldLogger
	OnEvent  func(Event)
}

// Store holds the search state of the note table. It is safe for concurrent use.
type Store struct {
	gw       gateway.Gateway
	table    string
	pageSize int
	clock    clock.Clock
	log      logrus.FieldLogger
	onEvent  func(Event)

	// ctx bounds fetches started by the store itself (debounce, watch). Cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	// more serializes LoadMore so each call captures the offset left by the previous one.
	more chan struct{}

	mu        sync.Mutex
	query     Query // Active filter: applied query text and tag
	debounce  debouncer
	gen       uint64 // Incremented by every page-0 request
	window    Window
	windowGen uint64 // gen of the request that built window
	inflight  int
	deleting  int
	tags      []string
	tagSeq    uint64
	tagsSeq   uint64 // tagSeq of the applied tag universe
	err       error
	closed    bool
	sub       *gateway.Subscription

	bg sync.WaitGroup
}

// New creates a search store over the note table of gw.
func New(gw gateway.Gateway, opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		gw:       gw,
		table:    domain.NotesTable,
		pageSize: opts.PageSize,
		clock:    opts.Clock,
		log:      opts.Logger.WithField("table", domain.NotesTable),
		onEvent:  opts.OnEvent,
		ctx:      ctx,
		cancel:   cancel,
		more:     make(chan struct{}, 1),
		debounce: debouncer{clock: opts.Clock, delay: opts.Debounce},
		tags:     []string{},
		window:   Window{Entries: []domain.Note{}},
	}
}

// PageSize returns the page size W.
func (s *Store) PageSize() int { return s.pageSize }

// SetQuery records text as the pending query. The window is refetched once the input has
// been stable for the debounce interval; each call resets the deadline.
func (s *Store) SetQuery(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.debounce.arm(text, s.fire)
}

// fire runs when a debounce deadline elapses.
func (s *Store) fire(token uint64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	text, ok := s.debounce.take(token)
	if !ok || text == s.query.Text {
		s.mu.Unlock()
		return
	}
	s.query.Text = text
	s.bg.Add(1)
	s.mu.Unlock()

	s.log.WithField("query", text).Debug("debounce fired")
	go func() {
		defer s.bg.Done()
		_ = s.Refresh(s.ctx)
	}()
}

// Query returns the active filter and the pending query text, if any.
func (s *Store) Query() (active Query, pending string, isPending bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query, s.debounce.pending, s.debounce.armed
}

// SetActiveTag selects tag as the tag filter and refetches at once. Selecting the active tag
// again, or "", clears it.
func (s *Store) SetActiveTag(ctx context.Context, tag string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if tag == s.query.Tag {
		tag = ""
	}
	s.query.Tag = tag
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh rebuilds the window from offset 0 for the active filter. It supersedes every fetch
// issued before it: their results are discarded when they arrive.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.gen++
	gen, q := s.gen, s.query
	s.inflight++
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"gen": gen, "query": q.Text, "tag": q.Tag})
	rows, total, err := s.gw.FetchPage(ctx, s.table, gatewayFilter(q), domain.NoteOrder, 0, s.pageSize)

	s.mu.Lock()
	s.inflight--
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if gen != s.gen {
		s.mu.Unlock()
		log.Debug("stale page discarded")
		return nil
	}
	if err != nil {
		s.err = err
		s.mu.Unlock()
		log.WithError(err).Warn("refresh failed")
		s.emit(Event{Kind: EventFailed, Err: err})
		return err
	}
	entries := appendNew(make([]domain.Note, 0, len(rows)), rows)
	s.window = Window{
		Entries: entries,
		Fetched: len(entries),
		Total:   max(total, len(entries)),
		Query:   q,
	}
	s.windowGen = gen
	s.err = nil
	s.mu.Unlock()

	log.WithFields(logrus.Fields{"fetched": len(entries), "total": total}).Debug("window rebuilt")
	s.emit(Event{Kind: EventRefreshed})
	return nil
}

// LoadMore appends the next page of the current window. It is a no-op when the window is
// complete or a rebuild is in flight. Concurrent calls run one after another, each at the
// offset the previous one left, and ids already in the window are never appended twice.
func (s *Store) LoadMore(ctx context.Context) error {
	select {
	case s.more <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.more }()

	s.mu.Lock()
	if s.closed || s.windowGen != s.gen || s.window.Fetched >= s.window.Total {
		s.mu.Unlock()
		return nil
	}
	gen, q, offset := s.windowGen, s.window.Query, s.window.Fetched
	s.inflight++
	s.mu.Unlock()

	log := s.log.WithFields(logrus.Fields{"gen": gen, "offset": offset})
	rows, total, err := s.gw.FetchPage(ctx, s.table, gatewayFilter(q), domain.NoteOrder, offset, s.pageSize)

	s.mu.Lock()
	s.inflight--
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if gen != s.windowGen || gen != s.gen {
		s.mu.Unlock()
		log.Debug("page for replaced window discarded")
		return nil
	}
	if err != nil {
		s.err = err
		s.mu.Unlock()
		log.WithError(err).Warn("load more failed")
		s.emit(Event{Kind: EventFailed, Err: err})
		return err
	}
	entries := appendNew(s.window.Entries, rows)
	s.window.Entries = entries
	s.window.Fetched = len(entries)
	s.window.Total = max(total, len(entries))
	s.mu.Unlock()

	log.WithField("fetched", len(entries)).Debug("page appended")
	s.emit(Event{Kind: EventAppended})
	return nil
}

// appendNew decodes rows onto entries, skipping ids already present.
func appendNew(entries []domain.Note, rows []gateway.Row) []domain.Note {
	for _, row := range rows {
		n := decodeNote(row)
		if n.ID == "" || slices.ContainsFunc(entries, func(e domain.Note) bool { return e.ID == n.ID }) {
			continue
		}
		entries = append(entries, n)
	}
	return entries
}

// HasMore reports whether the current window has another page.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.HasMore()
}

// Window returns a snapshot of the current window.
func (s *Store) Window() Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := s.window
	w.Entries = slices.Clone(s.window.Entries)
	return w
}

// Tags returns the sorted tag universe of the whole collection.
func (s *Store) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tags)
}

// RefreshTags rescans every note and rebuilds the tag universe. The latest issued refresh wins.
func (s *Store) RefreshTags(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.tagSeq++
	seq := s.tagSeq
	s.mu.Unlock()

	rows, err := s.gw.FetchAll(ctx, s.table, domain.NoteOrder)
	var tags []string
	if err == nil {
		sets := make([][]string, 0, len(rows))
		for _, row := range rows {
			sets = append(sets, decodeNote(row).Tags)
		}
		tags = domain.TagUniverse(sets...)
	}

	s.mu.Lock()
	if s.closed || seq < s.tagsSeq {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.err = err
		s.mu.Unlock()
		s.log.WithError(err).Warn("tag refresh failed")
		s.emit(Event{Kind: EventFailed, Err: err})
		return err
	}
	s.tags = tags
	s.tagsSeq = seq
	s.mu.Unlock()

	s.emit(Event{Kind: EventTags})
	return nil
}

// DeleteEntry removes note id from the window, decrements the total, and deletes it in the
// background. Once the delete succeeds the tag universe is refreshed, and so is page 0 when
// the window holds no more than one page; a longer window keeps its loaded pages. A failed
// delete is surfaced; the note stays removed until the next refresh.
func (s *Store) DeleteEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	idx := slices.IndexFunc(s.window.Entries, func(n domain.Note) bool { return n.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: note %s", domain.ErrNotFound, id)
	}
	s.window.Entries = slices.Delete(slices.Clone(s.window.Entries), idx, idx+1)
	s.window.Fetched = len(s.window.Entries)
	s.window.Total = max(s.window.Total-1, s.window.Fetched)

	firstPage := s.window.Fetched < s.pageSize
	s.deleting++
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		err := s.gw.Delete(context.Background(), s.table, id)

		s.mu.Lock()
		s.deleting--
		closed := s.closed
		if err != nil && !closed {
			s.err = err
		}
		s.mu.Unlock()
		if closed {
			return
		}
		if err != nil {
			s.log.WithField("id", id).WithError(err).Warn("delete failed")
			s.emit(Event{Kind: EventFailed, Err: err})
			return
		}
		if firstPage {
			_ = s.Refresh(s.ctx)
		}
		_ = s.RefreshTags(s.ctx)
	}()
	return nil
}

// AddEntry inserts a note. Title and content are required; tags are comma separated.
// Source defaults to "manual" and the memory date to today. On success the window and
// the tag universe are refreshed.
func (s *Store) AddEntry(ctx context.Context, in domain.NoteInput) (string, error) {
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	switch {
	case title == "":
		return "", domain.Required(domain.NoteTitleColumn)
	case content == "":
		return "", domain.Required(domain.NoteContentColumn)
	}

	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = "manual"
	}
	date := strings.TrimSpace(in.MemoryDate)
	if date == "" {
		date = s.clock.Now().Format(time.DateOnly)
	}
	tags := domain.ParseTags(in.Tags)
	if tags == nil {
		tags = []string{}
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", nil
	}

	row, err := s.gw.Insert(ctx, s.table, gateway.Row{
		domain.NoteTitleColumn:   title,
		domain.NoteContentColumn: content,
		domain.NoteTagsColumn:    tags,
		"source":                 source,
		"memory_date":            date,
	})
	if err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.log.WithError(err).Warn("add failed")
		s.emit(Event{Kind: EventFailed, Err: err})
		return "", err
	}

	id := row.ID()
	s.log.WithField("id", id).Info("note added")
	return id, errors.Join(s.Refresh(ctx), s.RefreshTags(ctx))
}

// Status returns the current progress indicators.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Loading:  s.inflight > 0,
		Pending:  s.debounce.armed,
		Deleting: s.deleting,
		Err:      s.err,
	}
}

// ClearError dismisses the surfaced error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = nil
}

// Watch subscribes to the note table's change feed. Each signal refreshes the window from
// offset 0 and the tag universe. Calling Watch again is a no-op.
func (s *Store) Watch(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.sub != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	wctx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	sub, err := s.gw.Subscribe(wctx, s.table)
	if err != nil {
		stop()
		cancel()
		return fmt.Errorf("watch %s: %w", s.table, err)
	}

	s.mu.Lock()
	if s.closed || s.sub != nil {
		s.mu.Unlock()
		stop()
		cancel()
		_ = sub.Close()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	go func() {
		defer stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-sub.C:
				s.log.Debug("change signal")
				if err := errors.Join(s.Refresh(wctx), s.RefreshTags(wctx)); err != nil && wctx.Err() == nil {
					s.log.WithError(err).Warn("reconcile failed")
				}
			}
		}
	}()
	return nil
}

// Wait blocks until background work started so far (debounced fetches, deletes) completes.
func (s *Store) Wait() {
	s.bg.Wait()
}

// Close cancels the pending debounce and store-initiated fetches and releases the change
// feed. Afterwards every operation is a no-op. Deletes already issued still run.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.debounce.stop()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	s.cancel()
	if sub != nil {
		return sub.Close()
	}
	return nil
}

func (s *Store) emit(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}
