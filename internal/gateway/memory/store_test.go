package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/feed"
	"github.com/h0rv/opsdash/internal/gateway"
)

var newestFirst = domain.Order{Column: "updated_at", Desc: true}

func seedNotes(s *Store, n int) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.Seed(domain.NotesTable, gateway.Row{
			"id":         fmt.Sprintf("n%02d", i),
			"title":      fmt.Sprintf("Note %d", i),
			"content":    "body",
			"tags":       []any{"work"},
			"updated_at": gateway.Timestamp(base.Add(time.Duration(i) * time.Minute)),
		})
	}
}

func TestStore_FetchAllOrder(t *testing.T) {
	s := New(nil)
	seedNotes(s, 3)

	rows, err := s.FetchAll(context.Background(), domain.NotesTable, newestFirst)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "n02", rows[0].ID())
	assert.Equal(t, "n00", rows[2].ID())

	rows, err = s.FetchAll(context.Background(), "missing", newestFirst)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_FetchAllOrdersTimestampsByInstant(t *testing.T) {
	s := New(nil)
	s.Seed("tasks",
		gateway.Row{"id": "a", "title": "older", "created_at": "2025-06-01T09:00:00Z"},
		gateway.Row{"id": "b", "title": "newer", "created_at": "2025-06-01T09:00:00.5Z"},
		gateway.Row{"id": "c", "title": "newest", "created_at": gateway.Timestamp(time.Date(2025, 6, 1, 9, 0, 1, 0, time.UTC))},
	)

	rows, err := s.FetchAll(context.Background(), "tasks", domain.Order{Column: "created_at", Desc: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "newest", rows[0]["title"])
	assert.Equal(t, "newer", rows[1]["title"])
	assert.Equal(t, "older", rows[2]["title"])
}

func TestStore_FetchPage(t *testing.T) {
	s := New(nil)
	seedNotes(s, 57)
	ctx := context.Background()

	rows, total, err := s.FetchPage(ctx, domain.NotesTable, gateway.Filter{}, newestFirst, 0, 30)
	require.NoError(t, err)
	assert.Equal(t, 57, total)
	assert.Len(t, rows, 30)
	assert.Equal(t, "n56", rows[0].ID())

	rows, total, err = s.FetchPage(ctx, domain.NotesTable, gateway.Filter{}, newestFirst, 30, 30)
	require.NoError(t, err)
	assert.Equal(t, 57, total)
	assert.Len(t, rows, 27)

	rows, _, err = s.FetchPage(ctx, domain.NotesTable, gateway.Filter{}, newestFirst, 60, 30)
	require.NoError(t, err)
	assert.Empty(t, rows)

	filter := gateway.Filter{Text: "note 1", TextColumns: []string{"title"}}
	rows, total, err = s.FetchPage(ctx, domain.NotesTable, filter, newestFirst, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, 11, total, "Note 1 and Note 10-19; count spans the whole filtered set")
	assert.Len(t, rows, 5)
}

func TestStore_Writes(t *testing.T) {
	hub := feed.NewHub()
	s := New(hub)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "tasks")
	require.NoError(t, err)
	defer sub.Close()

	row, err := s.Insert(ctx, "tasks", gateway.Row{"title": "Write report", "status": "TODO"})
	require.NoError(t, err)
	id := row.ID()
	assert.NotEmpty(t, id)
	assert.NotEmpty(t, row["created_at"])
	<-sub.C

	require.NoError(t, s.Update(ctx, "tasks", id, gateway.Row{"status": "DONE"}))
	assert.Equal(t, "DONE", s.Get("tasks", id)["status"])
	assert.Equal(t, "Write report", s.Get("tasks", id)["title"])
	<-sub.C

	require.NoError(t, s.Delete(ctx, "tasks", id))
	assert.Equal(t, 0, s.Len("tasks"))
	<-sub.C

	err = s.Update(ctx, "tasks", id, gateway.Row{"status": "TODO"})
	assert.ErrorIs(t, err, gateway.ErrPersistence)
	assert.ErrorIs(t, err, gateway.ErrRowNotFound)

	err = s.Delete(ctx, "tasks", id)
	assert.ErrorIs(t, err, gateway.ErrPersistence)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New(nil)
	s.Seed("tasks", gateway.Row{"id": "t1", "title": "original"})

	rows, err := s.FetchAll(context.Background(), "tasks", domain.Order{})
	require.NoError(t, err)
	rows[0]["title"] = "mutated"

	assert.Equal(t, "original", s.Get("tasks", "t1")["title"])
}
