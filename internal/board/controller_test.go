package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/opsdash/internal/clock"
	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/gateway"
	"github.com/h0rv/opsdash/internal/testutil"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// reportBoard is a three-stage board with an ascending sequence order.
func reportBoard() domain.BoardDef {
	return domain.BoardDef{
		Name:       "report",
		Title:      "Reports",
		Table:      "reports",
		StageField: "status",
		TitleField: "title",
		Stages: []domain.StageDef{
			{ID: "TODO", Label: "To Do"},
			{ID: "DOING", Label: "Doing"},
			{ID: "DONE", Label: "Done"},
		},
		OrderBy: domain.Order{Column: "created_at"},
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []EventKind
	for _, ev := range l.events {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestController(t *testing.T, def domain.BoardDef, rows ...gateway.Row) (*Controller, *testutil.FakeGateway, *eventLog) {
	t.Helper()
	gw := testutil.NewFakeGateway()
	gw.Seed(def.Table, rows...)
	events := &eventLog{}
	c, err := New(def, gw, Options{Clock: clock.Fake(t0), OnEvent: events.record})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		c.Wait()
	})
	return c, gw, events
}

func row(id, title, stage string, minute int) gateway.Row {
	return gateway.Row{
		"id":         id,
		"title":      title,
		"status":     stage,
		"created_at": gateway.Timestamp(t0.Add(time.Duration(minute) * time.Minute)),
	}
}

func stageOf(t *testing.T, c *Controller, id string) string {
	t.Helper()
	e, ok := c.Entity(id)
	require.True(t, ok, "entity %s not held", id)
	return e.Stage
}

func TestNew_ValidatesDefinition(t *testing.T) {
	gw := testutil.NewFakeGateway()

	noStages := reportBoard()
	noStages.Stages = nil
	_, err := New(noStages, gw, Options{})
	assert.Error(t, err)

	dup := reportBoard()
	dup.Stages = append(dup.Stages, domain.StageDef{ID: "TODO"})
	_, err = New(dup, gw, Options{})
	assert.Error(t, err)

	for _, def := range domain.Boards() {
		_, err := New(def, gw, Options{})
		assert.NoError(t, err, def.Name)
	}
}

func TestLoad(t *testing.T) {
	c, _, events := newTestController(t, reportBoard(),
		row("r1", "Write report", "TODO", 1),
		row("r2", "Review", "DONE", 2),
		row("r3", "Stray", "ARCHIVED", 3),
	)

	assert.False(t, c.Status().Loaded)
	require.NoError(t, c.Load(context.Background()))

	entities := c.Entities()
	require.Len(t, entities, 2, "rows with undeclared stages are skipped")
	assert.Equal(t, "r1", entities[0].ID)
	assert.Equal(t, "Write report", entities[0].Title)
	assert.Equal(t, t0.Add(time.Minute), entities[0].CreatedAt)
	assert.NotContains(t, entities[0].Fields, "status")
	assert.True(t, c.Status().Loaded)
	assert.Equal(t, []EventKind{EventLoaded}, events.kinds())

	// Load is idempotent.
	require.NoError(t, c.Load(context.Background()))
	assert.Equal(t, entities, c.Entities())
}

func TestPartition_CoversCollection(t *testing.T) {
	tests := []struct {
		name string
		rows []gateway.Row
	}{
		{"empty", nil},
		{"one stage", []gateway.Row{row("a", "A", "TODO", 1), row("b", "B", "TODO", 2)}},
		{"mixed", []gateway.Row{
			row("a", "A", "DONE", 1),
			row("b", "B", "TODO", 2),
			row("c", "C", "DOING", 3),
			row("d", "D", "DONE", 4),
			row("e", "E", "TODO", 5),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestController(t, reportBoard(), tt.rows...)
			require.NoError(t, c.Load(context.Background()))

			parts := c.Partition()
			assert.Len(t, parts, 3, "every declared stage has an entry")

			var ids []string
			seen := map[string]int{}
			for _, s := range c.Def().Stages {
				for _, e := range parts[s.ID] {
					assert.Equal(t, s.ID, e.Stage)
					seen[e.ID]++
					ids = append(ids, e.ID)
				}
			}
			assert.Len(t, ids, len(c.Entities()))
			for id, n := range seen {
				assert.Equal(t, 1, n, "entity %s appears once", id)
			}

			// Relative order within a stage follows the collection.
			var flat []string
			for _, e := range c.Entities() {
				flat = append(flat, e.ID)
			}
			for _, s := range c.Def().Stages {
				last := -1
				for _, e := range parts[s.ID] {
					pos := indexOf(flat, e.ID)
					assert.Greater(t, pos, last)
					last = pos
				}
			}
		})
	}
}

func indexOf(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func TestMoveStage_IsSynchronous(t *testing.T) {
	c, gw, _ := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	gate := testutil.NewGate()
	gw.Hooks.Update = gate.Hold(1)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.MoveStage("r1", "DOING"))
	assert.Equal(t, "DOING", stageOf(t, c, "r1"), "visible before the write completes")
	assert.Equal(t, 1, c.Status().Saving)

	<-gate.Entered()
	assert.Equal(t, "TODO", gw.Get("reports", "r1")["status"], "write still held")

	gate.Release()
	c.Wait()
	assert.Equal(t, "DOING", gw.Get("reports", "r1")["status"])
	assert.Equal(t, gateway.Timestamp(t0), gw.Get("reports", "r1")["updated_at"])
	assert.Equal(t, 0, c.Status().Saving)
	assert.NoError(t, c.Status().Err)
}

func TestMoveStage_Invalid(t *testing.T) {
	c, gw, _ := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	require.NoError(t, c.Load(context.Background()))
	before := c.Entities()

	err := c.MoveStage("r1", "SHIPPED")
	assert.ErrorIs(t, err, domain.ErrInvalidStage)
	assert.Equal(t, before, c.Entities())

	err = c.MoveStage("missing", "DONE")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.MoveStage("r1", "TODO"), "same stage is a no-op")
	c.Wait()
	assert.Equal(t, 0, gw.Calls().Update)
}

func TestMoveRelative(t *testing.T) {
	c, gw, _ := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.MoveRelative("r1", Prev))
	assert.Equal(t, "TODO", stageOf(t, c, "r1"), "first stage boundary")

	require.NoError(t, c.MoveRelative("r1", Next))
	require.NoError(t, c.MoveRelative("r1", Next))
	assert.Equal(t, "DONE", stageOf(t, c, "r1"))

	require.NoError(t, c.MoveRelative("r1", Next))
	assert.Equal(t, "DONE", stageOf(t, c, "r1"), "last stage boundary")

	c.Wait()
	assert.Equal(t, 2, gw.Calls().Update)
	assert.ErrorIs(t, c.MoveRelative("missing", Next), domain.ErrNotFound)
}

// Board [TODO, DOING, DONE] with "Write report" in TODO: moving it to DOING shows it there at
// once, and a failed write leaves it there with the error reported.
func TestMoveStage_PersistenceFailureKeepsMove(t *testing.T) {
	c, gw, events := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	require.NoError(t, c.Load(context.Background()))
	gw.Hooks.Update = testutil.Fail(errors.New("connection reset"))

	require.NoError(t, c.MoveStage("r1", "DOING"))
	parts := c.Partition()
	require.Len(t, parts["DOING"], 1)
	assert.Equal(t, "Write report", parts["DOING"][0].Title)
	assert.Empty(t, parts["TODO"])

	c.Wait()
	assert.Equal(t, "DOING", stageOf(t, c, "r1"), "no rollback")
	assert.Equal(t, "TODO", gw.Get("reports", "r1")["status"])

	err := c.Status().Err
	require.Error(t, err)
	assert.ErrorIs(t, err, gateway.ErrPersistence)
	var pe *gateway.PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "r1", pe.ID)

	assert.Equal(t, []EventKind{EventLoaded, EventSaveFailed}, events.kinds())

	c.ClearError()
	assert.NoError(t, c.Status().Err)
}

// Loads A then B; B's response arrives first. A must be discarded when it finally returns.
func TestLoad_SkipsDuplicateRows(t *testing.T) {
	c, _, _ := newTestController(t, reportBoard(),
		row("r1", "Q1", "TODO", 1),
		row("r2", "Q2", "DOING", 2),
		row("r2", "Q2 again", "DONE", 3),
	)
	require.NoError(t, c.Load(context.Background()))

	require.Len(t, c.Entities(), 2)
	p := c.Partition()
	assert.Len(t, p["DOING"], 1)
	assert.Empty(t, p["DONE"], "the first copy of r2 wins")
	assert.Equal(t, "DOING", stageOf(t, c, "r2"))
}

func TestLoad_LastIssuedWins(t *testing.T) {
	c, gw, _ := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	gate := testutil.NewGate()
	gw.Hooks.FetchAll = gate.Hold(1)
	ctx := context.Background()

	errA := make(chan error, 1)
	go func() { errA <- c.Load(ctx) }()
	<-gate.Entered() // A holds the one-row snapshot

	gw.Seed("reports", row("r2", "Review", "DONE", 2))
	require.NoError(t, c.Load(ctx)) // B
	require.Len(t, c.Entities(), 2)

	gate.Release()
	require.NoError(t, <-errA)
	assert.Len(t, c.Entities(), 2, "stale load A discarded")
	assert.False(t, c.Status().Loading)
}

func TestLoad_FailureKeepsState(t *testing.T) {
	c, gw, events := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	require.NoError(t, c.Load(context.Background()))

	gw.Hooks.FetchAll = testutil.Fail(errors.New("401 unauthorized"))
	err := c.Load(context.Background())
	assert.ErrorIs(t, err, gateway.ErrTransport)
	assert.Len(t, c.Entities(), 1, "stale data beats empty data")
	assert.ErrorIs(t, c.Status().Err, gateway.ErrTransport)
	assert.Equal(t, []EventKind{EventLoaded, EventLoadFailed}, events.kinds())

	gw.Hooks.FetchAll = nil
	require.NoError(t, c.Load(context.Background()))
	assert.NoError(t, c.Status().Err, "an applied load clears the error")
}

func TestAddEntity(t *testing.T) {
	def := domain.TasksBoard()
	c, gw, _ := newTestController(t, def)
	ctx := context.Background()

	_, err := c.AddEntity(ctx, map[string]any{"title": "   "})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 0, gw.Calls().Insert, "validation happens before the gateway")

	id, err := c.AddEntity(ctx, map[string]any{
		"title":    "Ship it",
		"status":   domain.TaskDone,
		"priority": "high",
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	e, ok := c.Entity(id)
	require.True(t, ok, "reloaded after insert")
	assert.Equal(t, domain.TaskTodo, e.Stage, "new entities start in the initial stage")
	assert.Equal(t, "high", e.Text("priority"))
	assert.Equal(t, "aurora", e.Text("assignee"))
	assert.False(t, e.CreatedAt.IsZero())
	assert.Equal(t, 1, gw.Calls().FetchAll)
}

func TestAddEntity_SequenceField(t *testing.T) {
	def := domain.TeamBoard()
	c, gw, _ := newTestController(t, def,
		gateway.Row{"id": "m1", "name": "Aurora", "status": "active", "sort_order": 0},
		gateway.Row{"id": "m2", "name": "Orion", "status": "idle", "sort_order": 1},
	)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	id, err := c.AddEntity(ctx, map[string]any{"name": "Vega", "role": "research"})
	require.NoError(t, err)
	stored := gw.Get(def.Table, id)
	assert.Equal(t, 2, stored["sort_order"])
	assert.Equal(t, "idle", stored["status"])
	assert.Equal(t, "agent", stored["type"])

	entities := c.Entities()
	require.Len(t, entities, 3)
	assert.Equal(t, "Vega", entities[2].Title, "ordered by sort_order")
}

func TestAddEntity_TimeField(t *testing.T) {
	def := domain.CalendarBoard()
	c, gw, _ := newTestController(t, def,
		gateway.Row{"id": "e1", "title": "Standup", "type": "meeting", "start_time": "2025-06-02T09:00:00Z"},
		gateway.Row{"id": "e2", "title": "Backup", "type": "cron", "start_time": "2025-05-31T02:00:00Z"},
	)
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))

	id, err := c.AddEntity(ctx, map[string]any{"title": "Call mom"})
	require.NoError(t, err)
	stored := gw.Get(def.Table, id)
	assert.Equal(t, gateway.Timestamp(t0), stored["start_time"], "start defaults to now")
	assert.Equal(t, "task", stored["type"])
	assert.Equal(t, "#6366f1", stored["color"])

	id, err = c.AddEntity(ctx, map[string]any{"title": "Retro", "start_time": "2025-06-03T15:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-03T15:00:00Z", gw.Get(def.Table, id)["start_time"], "explicit start kept")

	var titles []string
	for _, e := range c.Entities() {
		titles = append(titles, e.Title)
	}
	assert.Equal(t, []string{"Backup", "Call mom", "Standup", "Retro"}, titles, "ordered by start time")
}

func TestAddEntity_InsertFailure(t *testing.T) {
	c, gw, events := newTestController(t, reportBoard())
	gw.Hooks.Insert = testutil.Fail(errors.New("quota exceeded"))

	_, err := c.AddEntity(context.Background(), map[string]any{"title": "Write report"})
	assert.ErrorIs(t, err, gateway.ErrPersistence)
	assert.ErrorIs(t, c.Status().Err, gateway.ErrPersistence)
	assert.Equal(t, []EventKind{EventSaveFailed}, events.kinds())
}

func TestDeleteEntity(t *testing.T) {
	c, gw, _ := newTestController(t, reportBoard(),
		row("r1", "Write report", "TODO", 1),
		row("r2", "Review", "DONE", 2),
	)
	require.NoError(t, c.Load(context.Background()))

	require.NoError(t, c.DeleteEntity("r1"))
	_, ok := c.Entity("r1")
	assert.False(t, ok, "removed before the write completes")
	c.Wait()
	assert.Equal(t, 1, gw.Len("reports"))

	gw.Hooks.Delete = testutil.Fail(errors.New("forbidden"))
	require.NoError(t, c.DeleteEntity("r2"))
	c.Wait()
	assert.Empty(t, c.Entities(), "no rollback")
	assert.ErrorIs(t, c.Status().Err, gateway.ErrPersistence)

	assert.ErrorIs(t, c.DeleteEntity("r2"), domain.ErrNotFound)
}

func TestEdit(t *testing.T) {
	c, gw, _ := newTestController(t, domain.ContentBoard(), gateway.Row{
		"id": "c1", "title": "Launch video", "stage": "script", "script": "draft",
	})
	require.NoError(t, c.Load(context.Background()))

	assert.ErrorIs(t, c.Edit("c1", map[string]any{"stage": "idea"}), domain.ErrValidation)
	assert.ErrorIs(t, c.Edit("c1", map[string]any{"id": "c2"}), domain.ErrValidation)
	assert.ErrorIs(t, c.Edit("c1", map[string]any{"title": ""}), domain.ErrValidation)
	assert.ErrorIs(t, c.Edit("missing", map[string]any{"script": "x"}), domain.ErrNotFound)

	require.NoError(t, c.Edit("c1", map[string]any{"script": "final cut", "title": "Launch video v2"}))
	e, _ := c.Entity("c1")
	assert.Equal(t, "final cut", e.Text("script"))
	assert.Equal(t, "Launch video v2", e.Title)

	c.Wait()
	stored := gw.Get("content_items", "c1")
	assert.Equal(t, "final cut", stored["script"])
	assert.Equal(t, "script", stored["stage"])
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	c, gw, _ := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.Watch(ctx))
	require.NoError(t, c.Watch(ctx), "second watch is a no-op")
	assert.Equal(t, 1, gw.Hub.Subscribers("reports"))

	// Another client inserts a row.
	_, err := gw.Store.Insert(ctx, "reports", gateway.Row{"title": "Remote", "status": "DONE"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(c.Entities()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestWatch_CustomReconciler(t *testing.T) {
	gw := testutil.NewFakeGateway()
	signals := make(chan gateway.ChangeSignal, 4)
	c, err := New(reportBoard(), gw, Options{
		Reconciler: ReconcilerFunc(func(_ context.Context, _ *Controller, sig gateway.ChangeSignal) error {
			signals <- sig
			return nil
		}),
	})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Watch(context.Background()))
	require.NoError(t, gw.Hub.Publish(context.Background(), "reports"))

	select {
	case sig := <-signals:
		assert.Equal(t, "reports", sig.Table)
	case <-time.After(time.Second):
		t.Fatal("reconciler not invoked")
	}
	assert.Equal(t, 0, gw.Calls().FetchAll)
}

func TestClose(t *testing.T) {
	c, gw, _ := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	ctx := context.Background()
	require.NoError(t, c.Load(ctx))
	require.NoError(t, c.Watch(ctx))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 0, gw.Hub.Subscribers("reports"))

	assert.NoError(t, c.Load(ctx))
	assert.NoError(t, c.MoveStage("r1", "nope"))
	assert.NoError(t, c.DeleteEntity("r1"))
	assert.NoError(t, c.Watch(ctx))
	c.Wait()
	assert.Equal(t, 1, gw.Calls().FetchAll)
	assert.Equal(t, 0, gw.Calls().Delete)
	assert.Equal(t, "TODO", stageOf(t, c, "r1"))
}

func TestClose_DropsLateLoad(t *testing.T) {
	c, gw, events := newTestController(t, reportBoard(), row("r1", "Write report", "TODO", 1))
	gate := testutil.NewGate()
	gw.Hooks.FetchAll = gate.Hold(1)

	done := make(chan error, 1)
	go func() { done <- c.Load(context.Background()) }()
	<-gate.Entered()
	require.NoError(t, c.Close())
	gate.Release()

	require.NoError(t, <-done)
	assert.Empty(t, c.Entities())
	assert.Empty(t, events.kinds())
}

func ExampleController_Partition() {
	gw := testutil.NewFakeGateway()
	gw.Seed("tasks",
		gateway.Row{"id": "1", "title": "Write report", "status": domain.TaskTodo},
		gateway.Row{"id": "2", "title": "Deploy", "status": domain.TaskDone},
	)
	c, _ := New(domain.TasksBoard(), gw, Options{})
	_ = c.Load(context.Background())
	_ = c.MoveStage("1", domain.TaskInProgress)
	c.Wait()

	for _, col := range c.Columns() {
		fmt.Println(col.Stage.Label, len(col.Entities))
	}
	// Output:
	// To Do 0
	// In Progress 1
	// Done 1
}
