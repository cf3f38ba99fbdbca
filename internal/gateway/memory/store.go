// Package memory is an in-process gateway backend. Rows live in maps keyed by table; writes
// are announced through an optional feed.Publisher.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/feed"
	"github.com/h0rv/opsdash/internal/gateway"
)

// Store holds rows in memory. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	tables map[string][]gateway.Row // insertion order
	pub    feed.Publisher
	now    func() time.Time
}

// New creates an empty store. pub may be nil.
func New(pub feed.Publisher) *Store {
	return &Store{
		tables: make(map[string][]gateway.Row),
		pub:    pub,
		now:    time.Now,
	}
}

// SetClock replaces the time source used for server-assigned timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Seed inserts rows as-is without publishing a change. Missing ids are generated.
func (s *Store) Seed(table string, rows ...gateway.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], s.assign(r))
	}
}

// assign fills id and timestamps the way the remote store does on insert.
func (s *Store) assign(row gateway.Row) gateway.Row {
	r := maps.Clone(row)
	if r == nil {
		r = gateway.Row{}
	}
	now := gateway.Timestamp(s.now())
	if r.ID() == "" {
		r["id"] = uuid.NewString()
	}
	if _, ok := r["created_at"]; !ok {
		r["created_at"] = now
	}
	if _, ok := r["updated_at"]; !ok {
		r["updated_at"] = now
	}
	return r
}

// FetchAll returns copies of every row of table in order.
func (s *Store) FetchAll(_ context.Context, table string, order domain.Order) ([]gateway.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sorted(s.tables[table], order), nil
}

// FetchPage returns one page of the filtered, ordered rows and the filtered count.
func (s *Store) FetchPage(_ context.Context, table string, filter gateway.Filter, order domain.Order, offset, limit int) ([]gateway.Row, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []gateway.Row
	for _, r := range s.tables[table] {
		if filter.Match(r) {
			matched = append(matched, r)
		}
	}
	all := sorted(matched, order)
	total := len(all)
	if offset >= total {
		return []gateway.Row{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

// Insert stores a new row and returns it with id and timestamps assigned.
func (s *Store) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	s.mu.Lock()
	r := s.assign(row)
	s.tables[table] = append(s.tables[table], r)
	s.mu.Unlock()

	s.publish(ctx, table)
	return maps.Clone(r), nil
}

// Update merges patch into the row with the given id.
func (s *Store) Update(ctx context.Context, table, id string, patch gateway.Row) error {
	s.mu.Lock()
	idx := s.index(table, id)
	if idx < 0 {
		s.mu.Unlock()
		return gateway.Write("update", table, id, gateway.ErrRowNotFound)
	}
	r := maps.Clone(s.tables[table][idx])
	maps.Copy(r, patch)
	r["id"] = id
	if _, ok := patch["updated_at"]; !ok {
		r["updated_at"] = gateway.Timestamp(s.now())
	}
	s.tables[table][idx] = r
	s.mu.Unlock()

	s.publish(ctx, table)
	return nil
}

// Delete removes the row with the given id.
func (s *Store) Delete(ctx context.Context, table, id string) error {
	s.mu.Lock()
	idx := s.index(table, id)
	if idx < 0 {
		s.mu.Unlock()
		return gateway.Write("delete", table, id, gateway.ErrRowNotFound)
	}
	s.tables[table] = slices.Delete(s.tables[table], idx, idx+1)
	s.mu.Unlock()

	s.publish(ctx, table)
	return nil
}

// Len returns the number of rows in table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// Get returns a copy of one row, or nil.
func (s *Store) Get(table, id string) gateway.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.index(table, id); idx >= 0 {
		return maps.Clone(s.tables[table][idx])
	}
	return nil
}

func (s *Store) index(table, id string) int {
	return slices.IndexFunc(s.tables[table], func(r gateway.Row) bool { return r.ID() == id })
}

func (s *Store) publish(ctx context.Context, table string) {
	if s.pub != nil {
		_ = s.pub.Publish(ctx, table)
	}
}

// sorted returns cloned rows ordered by order.Column. Ties keep insertion order.
func sorted(rows []gateway.Row, order domain.Order) []gateway.Row {
	out := make([]gateway.Row, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	if order.Column == "" {
		return out
	}
	slices.SortStableFunc(out, func(a, b gateway.Row) int {
		c := gateway.Compare(a[order.Column], b[order.Column])
		if order.Desc {
			return -c
		}
		return c
	})
	return out
}
