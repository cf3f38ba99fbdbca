// Package feed implements table-scoped change feeds. A feed publishes payload-less wake
// signals; subscribers re-read the table when one arrives.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/h0rv/opsdash/internal/gateway"
)

// Publisher announces that a table changed. Local backends call it after every write.
type Publisher interface {
	Publish(ctx context.Context, table string) error
}

// Hub is an in-process feed. Each subscriber holds at most one pending signal.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan gateway.ChangeSignal
	now    func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[int]chan gateway.ChangeSignal),
		now:  time.Now,
	}
}

// Publish wakes every subscriber of table.
func (h *Hub) Publish(_ context.Context, table string) error {
	sig := gateway.ChangeSignal{Table: table, At: h.now()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[table] {
		gateway.Signal(ch, sig)
	}
	return nil
}

// Subscribe registers a subscriber for table. The subscription ends on Close or when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, table string) (*gateway.Subscription, error) {
	ch := make(chan gateway.ChangeSignal, 1)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[table] == nil {
		h.subs[table] = make(map[int]chan gateway.ChangeSignal)
	}
	h.subs[table][id] = ch
	h.mu.Unlock()

	remove := func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[table], id)
		if len(h.subs[table]) == 0 {
			delete(h.subs, table)
		}
		return nil
	}

	sub := gateway.NewSubscription(ch, remove)
	context.AfterFunc(ctx, func() { _ = sub.Close() })
	return sub, nil
}

// Subscribers returns the number of live subscriptions for table.
func (h *Hub) Subscribers(table string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[table])
}
