// Package board implements the optimistic board controller. A controller caches one board's
// entities, applies user mutations to the cache immediately, persists them in the background
// and reconciles with the remote store whenever the table's change feed fires.
package board

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/h0rv/opsdash/internal/clock"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
)

// Direction selects a neighbouring stage for MoveRelative.
type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// EventKind classifies controller events.
type EventKind int

const (
	// EventLoaded means a load replaced the local collection.
	EventLoaded EventKind = iota
	// EventLoadFailed means a load failed; the previous collection is kept.
	EventLoadFailed
	// EventSaved means a background write completed.
	EventSaved
	// EventSaveFailed means a background write failed; the optimistic change is kept.
	EventSaveFailed
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load failed"
	case EventSaved:
		return "saved"
	case EventSaveFailed:
		return "save failed"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event reports a completed load or write to the UI layer.
type Event struct {
	Board string
	Kind  EventKind
	ID    string // Entity id for write events
	Err   error
}

// Status is a snapshot of the controller's progress indicators.
type Status struct {
	Loaded  bool  // At least one load has been applied
	Loading bool  // A load is in flight
	Saving  int   // Background writes in flight
	Err     error // Last surfaced error, cleared by the next applied load
}

// Column is one stage of the board with its entities in collection order.
type Column struct {
	Stage    domain.StageDef
	Entities []domain.Entity
}

// Options configures a Controller. Zero values select defaults.
type Options struct {
	Clock      clock.Clock
	Logger     logrus.FieldLogger
	Reconciler Reconciler // Default FullReload

	// OnEvent is called after every load and write completes, outside the controller lock.
	OnEvent func(Event)
}

// Controller holds the client-side state of one board. It is safe for concurrent use.
type Controller struct {
	def        domain.BoardDef
	gw         gateway.Gateway
	clock      clock.Clock
	log        logrus.FieldLogger
	reconciler Reconciler
	onEvent    func(Event)

	mu         sync.Mutex
	entities   []domain.Entity
	issuedSeq  uint64
	appliedSeq uint64
	loading    int
	saving     int
	err        error
	closed     bool
	sub        *gateway.Subscription
	stopWatch  context.CancelFunc

	writes sync.WaitGroup
}

// New creates a controller for def on gw.
func New(def domain.BoardDef, gw gateway.Gateway, opts Options) (*Controller, error) {
	if err := validateDef(def); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Reconciler == nil {
		opts.Reconciler = FullReload{}
	}
	return &Controller{
		def:        def,
		gw:         gw,
		clock:      opts.Clock,
		log:        opts.Logger.WithFields(logrus.Fields{"board": def.Name, "table": def.Table}),
		reconciler: opts.Reconciler,
		onEvent:    opts.OnEvent,
	}, nil
}

func validateDef(def domain.BoardDef) error {
	switch {
	case def.Table == "":
		return fmt.Errorf("board %q: table is required", def.Name)
	case def.StageField == "":
		return fmt.Errorf("board %q: stage field is required", def.Name)
	case def.TitleField == "":
		return fmt.Errorf("board %q: title field is required", def.Name)
	case len(def.Stages) == 0:
		return fmt.Errorf("board %q: at least one stage is required", def.Name)
	}
	seen := make(map[string]bool, len(def.Stages))
	for _, s := range def.Stages {
		if s.ID == "" || seen[s.ID] {
			return fmt.Errorf("board %q: stage ids must be unique and non-empty", def.Name)
		}
		seen[s.ID] = true
	}
	return nil
}

// Def returns the board definition.
func (c *Controller) Def() domain.BoardDef { return c.def }

// Load fetches every entity and replaces the local collection. Concurrent loads are ordered
// by issue: a response is applied only if no later-issued load has been applied already.
// On failure the previous collection is kept and the error is surfaced.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.issuedSeq++
	seq := c.issuedSeq
	c.loading++
	c.mu.Unlock()

	log := c.log.WithField("seq", seq)
	log.Debug("load issued")
	rows, err := c.gw.FetchAll(ctx, c.def.Table, c.def.OrderBy)

	var entities []domain.Entity
	if err == nil {
		entities = make([]domain.Entity, 0, len(rows))
		seen := make(map[string]bool, len(rows))
		for _, row := range rows {
			e, derr := decode(c.def, row)
			if derr != nil {
				log.WithField("id", row.ID()).WithError(derr).Warn("skipping row")
				continue
			}
			if seen[e.ID] {
				log.WithField("id", e.ID).Warn("skipping duplicate row")
				continue
			}
			seen[e.ID] = true
			entities = append(entities, e)
		}
	}

	c.mu.Lock()
	c.loading--
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if applied := c.appliedSeq; seq < applied {
		c.mu.Unlock()
		log.WithField("applied", applied).Debug("load discarded")
		return nil
	}
	if err != nil {
		c.err = err
		c.mu.Unlock()
		log.WithError(err).Warn("load failed")
		c.emit(Event{Board: c.def.Name, Kind: EventLoadFailed, Err: err})
		return err
	}
	c.entities = entities
	c.appliedSeq = seq
	c.err = nil
	c.mu.Unlock()

	log.WithField("entities", len(entities)).Debug("load applied")
	c.emit(Event{Board: c.def.Name, Kind: EventLoaded})
	return nil
}

// MoveStage sets the stage of entity id. The local change is visible as soon as MoveStage
// returns; the write runs in the background and a failure is surfaced without reverting.
// Moving to the current stage does nothing.
func (c *Controller) MoveStage(id, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	if !c.def.HasStage(target) {
		return fmt.Errorf("%w: %q is not a stage of board %s", domain.ErrInvalidStage, target, c.def.Name)
	}
	idx := c.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: entity %s", domain.ErrNotFound, id)
	}
	e := &c.entities[idx]
	if e.Stage == target {
		return nil
	}

	now := c.clock.Now()
	e.Stage = target
	e.UpdatedAt = now

	patch := gateway.Row{c.def.StageField: target, "updated_at": gateway.Timestamp(now)}
	c.log.WithFields(logrus.Fields{"id": id, "stage": target}).Debug("move")
	c.persist(id, func(ctx context.Context) error {
		return c.gw.Update(ctx, c.def.Table, id, patch)
	})
	return nil
}

// MoveRelative moves entity id one stage in direction dir. At the first or last stage it
// does nothing.
func (c *Controller) MoveRelative(id string, dir Direction) error {
	c.mu.Lock()
	idx := c.index(id)
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%w: entity %s", domain.ErrNotFound, id)
	}
	next := c.def.StageIndex(c.entities[idx].Stage) + int(dir)
	c.mu.Unlock()

	if next < 0 || next >= len(c.def.Stages) {
		return nil
	}
	return c.MoveStage(id, c.def.Stages[next].ID)
}

// AddEntity inserts a new entity in the board's initial stage and reloads to pick up the
// server-assigned fields. fields must carry a non-empty title. It returns the new id.
func (c *Controller) AddEntity(ctx context.Context, fields map[string]any) (string, error) {
	title, _ := fields[c.def.TitleField].(string)
	if strings.TrimSpace(title) == "" {
		return "", domain.Required(c.def.TitleField)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", nil
	}
	row := newRow(c.def, fields)
	if c.def.SequenceField != "" {
		row[c.def.SequenceField] = len(c.entities)
	}
	if f := c.def.TimeField; f != "" {
		if v, _ := row[f].(string); v == "" {
			row[f] = gateway.Timestamp(c.clock.Now())
		}
	}
	c.mu.Unlock()

	inserted, err := c.gw.Insert(ctx, c.def.Table, row)
	if err != nil {
		c.fail("", err)
		return "", err
	}
	id := inserted.ID()
	c.log.WithField("id", id).Info("entity added")
	if err := c.Load(ctx); err != nil {
		return id, err
	}
	return id, nil
}

// DeleteEntity removes entity id locally and deletes it in the background. A failed delete
// is surfaced; the entity stays removed until the next load.
func (c *Controller) DeleteEntity(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	idx := c.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: entity %s", domain.ErrNotFound, id)
	}
	c.entities = slices.Delete(c.entities, idx, idx+1)

	c.log.WithField("id", id).Debug("delete")
	c.persist(id, func(ctx context.Context) error {
		return c.gw.Delete(ctx, c.def.Table, id)
	})
	return nil
}

// Edit merges patch into the payload of entity id, optimistically like MoveStage.
// Use MoveStage to change stages; patches touching id or the stage field are rejected.
func (c *Controller) Edit(id string, patch map[string]any) error {
	for k := range patch {
		if k == "id" || k == c.def.StageField {
			return &domain.ValidationError{Field: k, Reason: "cannot be edited"}
		}
	}
	if v, ok := patch[c.def.TitleField]; ok {
		if s, _ := v.(string); strings.TrimSpace(s) == "" {
			return domain.Required(c.def.TitleField)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || len(patch) == 0 {
		return nil
	}
	idx := c.index(id)
	if idx < 0 {
		return fmt.Errorf("%w: entity %s", domain.ErrNotFound, id)
	}

	now := c.clock.Now()
	e := &c.entities[idx]
	fields := make(map[string]any, len(e.Fields)+len(patch))
	for k, v := range e.Fields {
		fields[k] = v
	}
	row := gateway.Row{"updated_at": gateway.Timestamp(now)}
	for k, v := range patch {
		row[k] = v
		if k == c.def.TitleField {
			e.Title = v.(string)
			continue
		}
		fields[k] = v
	}
	e.Fields = fields
	e.UpdatedAt = now

	c.log.WithField("id", id).Debug("edit")
	c.persist(id, func(ctx context.Context) error {
		return c.gw.Update(ctx, c.def.Table, id, row)
	})
	return nil
}

// persist runs write in the background. Writes are not cancelled by Close.
// Callers must hold c.mu.
func (c *Controller) persist(id string, write func(ctx context.Context) error) {
	c.saving++
	c.writes.Add(1)
	go func() {
		defer c.writes.Done()
		err := write(context.Background())

		c.mu.Lock()
		c.saving--
		closed := c.closed
		if err != nil && !closed {
			c.err = err
		}
		c.mu.Unlock()
		if closed {
			return
		}

		if err != nil {
			c.log.WithField("id", id).WithError(err).Warn("write failed")
			c.emit(Event{Board: c.def.Name, Kind: EventSaveFailed, ID: id, Err: err})
			return
		}
		c.emit(Event{Board: c.def.Name, Kind: EventSaved, ID: id})
	}()
}

func (c *Controller) fail(id string, err error) {
	c.mu.Lock()
	closed := c.closed
	if !closed {
		c.err = err
	}
	c.mu.Unlock()
	if closed {
		return
	}
	c.log.WithField("id", id).WithError(err).Warn("write failed")
	c.emit(Event{Board: c.def.Name, Kind: EventSaveFailed, ID: id, Err: err})
}

// Wait blocks until every background write issued so far has completed.
func (c *Controller) Wait() {
	c.writes.Wait()
}

func (c *Controller) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Controller) index(id string) int {
	return slices.IndexFunc(c.entities, func(e domain.Entity) bool { return e.ID == id })
}

// Entities returns a copy of the local collection in load order.
func (c *Controller) Entities() []domain.Entity {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Entity, len(c.entities))
	for i, e := range c.entities {
		out[i] = e.Clone()
	}
	return out
}

// Entity returns a copy of entity id.
func (c *Controller) Entity(id string) (domain.Entity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx := c.index(id); idx >= 0 {
		return c.entities[idx].Clone(), true
	}
	return domain.Entity{}, false
}

// Partition groups the collection by stage. Every declared stage has an entry; entities keep
// their relative collection order within a stage.
func (c *Controller) Partition() map[string][]domain.Entity {
	cols := c.Columns()
	out := make(map[string][]domain.Entity, len(cols))
	for _, col := range cols {
		out[col.Stage.ID] = col.Entities
	}
	return out
}

// Columns is Partition in stage order.
func (c *Controller) Columns() []Column {
	entities := c.Entities()
	cols := make([]Column, len(c.def.Stages))
	pos := make(map[string]int, len(c.def.Stages))
	for i, s := range c.def.Stages {
		cols[i] = Column{Stage: s, Entities: []domain.Entity{}}
		pos[s.ID] = i
	}
	for _, e := range entities {
		if i, ok := pos[e.Stage]; ok {
			cols[i].Entities = append(cols[i].Entities, e)
		}
	}
	return cols
}

// Status returns the current progress indicators.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Loaded:  c.appliedSeq > 0,
		Loading: c.loading > 0,
		Saving:  c.saving,
		Err:     c.err,
	}
}

// ClearError dismisses the surfaced error.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = nil
}

// Watch subscribes to the board table's change feed and hands every signal to the
// reconciler until ctx is done or Close is called. Calling Watch again is a no-op.
func (c *Controller) Watch(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.sub != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	wctx, cancel := context.WithCancel(ctx)
	sub, err := c.gw.Subscribe(wctx, c.def.Table)
	if err != nil {
		cancel()
		return fmt.Errorf("watch %s: %w", c.def.Table, err)
	}

	c.mu.Lock()
	if c.closed || c.sub != nil {
		c.mu.Unlock()
		cancel()
		_ = sub.Close()
		return nil
	}
	c.sub = sub
	c.stopWatch = cancel
	c.mu.Unlock()

	go c.watch(wctx, sub)
	return nil
}

func (c *Controller) watch(ctx context.Context, sub *gateway.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sub.C:
			if c.isClosed() {
				return
			}
			c.log.WithField("at", sig.At).Debug("change signal")
			if err := c.reconciler.Reconcile(ctx, c, sig); err != nil && !errors.Is(err, context.Canceled) {
				c.log.WithError(err).Warn("reconcile failed")
			}
		}
	}
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close releases the change feed subscription. Afterwards every operation is a no-op and
// late completions are dropped. Background writes already issued still run; see Wait.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub, stop := c.sub, c.stopWatch
	c.sub, c.stopWatch = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if sub != nil {
		return sub.Close()
	}
	return nil
}
