package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/feed"
	"github.com/h0rv/opsdash/internal/gateway"
)

func openTestStore(t *testing.T, pub feed.Publisher) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "opsdash.db"), pub)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func notesFilter(text, tag string) gateway.Filter {
	return gateway.Filter{
		Text:        text,
		TextColumns: []string{domain.NoteTitleColumn, domain.NoteContentColumn},
		Tag:         tag,
		TagColumn:   domain.NoteTagsColumn,
	}
}

func TestStore_InsertAndFetch(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := s.Insert(ctx, "tasks", gateway.Row{
			"title":      fmt.Sprintf("Task %d", i),
			"status":     domain.TaskTodo,
			"created_at": gateway.Timestamp(base.Add(time.Duration(i) * time.Hour)),
		})
		require.NoError(t, err)
	}

	rows, err := s.FetchAll(ctx, "tasks", domain.Order{Column: "created_at", Desc: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Task 2", rows[0]["title"])
	assert.Equal(t, "Task 0", rows[2]["title"])
	assert.NotEmpty(t, rows[0].ID())

	rows, err = s.FetchAll(ctx, "content_items", domain.Order{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_FetchAllOrdersTimestampsByInstant(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	for _, r := range []gateway.Row{
		{"title": "older", "created_at": "2025-06-01T09:00:00Z"},
		{"title": "newer", "created_at": "2025-06-01T09:00:00.5Z"},
		{"title": "undated"},
	} {
		_, err := s.Insert(ctx, "tasks", r)
		require.NoError(t, err)
	}
	_, err := s.db.ExecContext(ctx, "UPDATE rows SET data = json_remove(data, '$.created_at') WHERE json_extract(data, '$.title') = 'undated'")
	require.NoError(t, err)

	rows, err := s.FetchAll(ctx, "tasks", domain.Order{Column: "created_at", Desc: true})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "newer", rows[0]["title"])
	assert.Equal(t, "older", rows[1]["title"])
	assert.Equal(t, "undated", rows[2]["title"], "missing timestamps sort first ascending, last descending")
}

func TestStore_FetchPageFoldsUnicode(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	_, err := s.Insert(ctx, domain.NotesTable, gateway.Row{"title": "Über Notiz", "content": "ÄRGER im Büro", "tags": []string{}})
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.NotesTable, gateway.Row{"title": "Plain", "content": "ascii only", "tags": []string{}})
	require.NoError(t, err)

	for _, q := range []string{"über", "ÜBER", "ärger", "büro"} {
		rows, total, err := s.FetchPage(ctx, domain.NotesTable, notesFilter(q, ""), domain.Order{}, 0, 10)
		require.NoError(t, err, q)
		assert.Equal(t, 1, total, q)
		require.Len(t, rows, 1, q)
		assert.Equal(t, "Über Notiz", rows[0]["title"], q)
	}
}

func TestStore_FetchPageFilters(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	notes := []gateway.Row{
		{"title": "Deploy notes", "content": "ship it", "tags": []string{"work"}},
		{"title": "Groceries", "content": "eggs, 100% juice", "tags": []string{"personal", "work"}},
		{"title": "Ideas", "content": "deploy a blog", "tags": []string{}},
	}
	for _, n := range notes {
		_, err := s.Insert(ctx, domain.NotesTable, n)
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter gateway.Filter
		want   int
	}{
		{"no filter", notesFilter("", ""), 3},
		{"substring in title or content", notesFilter("DEPLOY", ""), 2},
		{"percent is literal", notesFilter("100%", ""), 1},
		{"tag membership", notesFilter("", "work"), 2},
		{"tag not substring", notesFilter("", "wor"), 0},
		{"text AND tag", notesFilter("deploy", "work"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, total, err := s.FetchPage(ctx, domain.NotesTable, tt.filter, domain.NoteOrder, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, total)
			assert.Len(t, rows, tt.want)
		})
	}

	rows, total, err := s.FetchPage(ctx, domain.NotesTable, notesFilter("", ""), domain.NoteOrder, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total, "count covers the whole filtered set, not the page")
	assert.Len(t, rows, 1)
}

func TestStore_UpdateDelete(t *testing.T) {
	hub := feed.NewHub()
	s := openTestStore(t, hub)
	ctx := context.Background()

	sub, err := hub.Subscribe(ctx, "tasks")
	require.NoError(t, err)
	defer sub.Close()

	row, err := s.Insert(ctx, "tasks", gateway.Row{"title": "Write report", "status": domain.TaskTodo})
	require.NoError(t, err)
	<-sub.C

	require.NoError(t, s.Update(ctx, "tasks", row.ID(), gateway.Row{"status": domain.TaskInProgress}))
	<-sub.C

	rows, err := s.FetchAll(ctx, "tasks", domain.Order{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.TaskInProgress, rows[0]["status"])
	assert.Equal(t, "Write report", rows[0]["title"], "update is a merge patch")

	require.NoError(t, s.Delete(ctx, "tasks", row.ID()))
	<-sub.C

	err = s.Delete(ctx, "tasks", row.ID())
	assert.ErrorIs(t, err, gateway.ErrPersistence)
	assert.ErrorIs(t, err, gateway.ErrRowNotFound)

	err = s.Update(ctx, "tasks", "missing", gateway.Row{"status": domain.TaskDone})
	assert.ErrorIs(t, err, gateway.ErrPersistence)
}

func TestStore_RejectsUnsafeColumns(t *testing.T) {
	s := openTestStore(t, nil)

	_, err := s.FetchAll(context.Background(), "tasks", domain.Order{Column: "x'); DROP TABLE rows; --"})
	assert.ErrorIs(t, err, gateway.ErrTransport)
}
