// Package testutil provides a gateway for controller tests. It serves rows from the memory
// backend, publishes changes through an in-process hub, and lets tests hold or fail any call.
package testutil

import (
	"context"
	"sync/atomic"

	"github.com/h0rv/opsdash/internal/domain"
	"github.com/h0rv/opsdash/internal/feed"
	"github.com/h0rv/opsdash/internal/gateway"
	"github.com/h0rv/opsdash/internal/gateway/memory"
)

// Hook intercepts the n-th call (starting at 1) of one gateway operation. Returning an error
// fails the call; blocking holds it open. Read hooks run after the snapshot is taken, so a held
// read returns the data as it was when the call was issued. Write hooks run before the write.
type Hook func(ctx context.Context, call int) error

// Hooks holds one optional Hook per operation.
type Hooks struct {
	FetchAll  Hook
	FetchPage Hook
	Insert    Hook
	Update    Hook
	Delete    Hook
}

// FakeGateway implements gateway.Gateway for tests.
type FakeGateway struct {
	*memory.Store
	Hub *feed.Hub

	// Hooks must be set before the gateway is shared with a controller.
	Hooks Hooks

	fetchAll, fetchPage, insert, update, del atomic.Int32
}

// NewFakeGateway creates an empty fake whose writes publish change signals.
func NewFakeGateway() *FakeGateway {
	hub := feed.NewHub()
	return &FakeGateway{Store: memory.New(hub), Hub: hub}
}

func run(ctx context.Context, h Hook, n int32) error {
	if h == nil {
		return nil
	}
	return h(ctx, int(n))
}

// FetchAll implements gateway.Reader.
func (f *FakeGateway) FetchAll(ctx context.Context, table string, order domain.Order) ([]gateway.Row, error) {
	n := f.fetchAll.Add(1)
	rows, err := f.Store.FetchAll(ctx, table, order)
	if err != nil {
		return nil, err
	}
	if err := run(ctx, f.Hooks.FetchAll, n); err != nil {
		return nil, gateway.Read("fetch all", table, err)
	}
	return rows, nil
}

// FetchPage implements gateway.Reader.
func (f *FakeGateway) FetchPage(ctx context.Context, table string, filter gateway.Filter, order domain.Order, offset, limit int) ([]gateway.Row, int, error) {
	n := f.fetchPage.Add(1)
	rows, total, err := f.Store.FetchPage(ctx, table, filter, order, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	if err := run(ctx, f.Hooks.FetchPage, n); err != nil {
		return nil, 0, gateway.Read("fetch page", table, err)
	}
	return rows, total, nil
}

// Insert implements gateway.Writer.
func (f *FakeGateway) Insert(ctx context.Context, table string, row gateway.Row) (gateway.Row, error) {
	if err := run(ctx, f.Hooks.Insert, f.insert.Add(1)); err != nil {
		return nil, gateway.Write("insert", table, "", err)
	}
	return f.Store.Insert(ctx, table, row)
}

// Update implements gateway.Writer.
func (f *FakeGateway) Update(ctx context.Context, table, id string, patch gateway.Row) error {
	if err := run(ctx, f.Hooks.Update, f.update.Add(1)); err != nil {
		return gateway.Write("update", table, id, err)
	}
	return f.Store.Update(ctx, table, id, patch)
}

// Delete implements gateway.Writer.
func (f *FakeGateway) Delete(ctx context.Context, table, id string) error {
	if err := run(ctx, f.Hooks.Delete, f.del.Add(1)); err != nil {
		return gateway.Write("delete", table, id, err)
	}
	return f.Store.Delete(ctx, table, id)
}

// Subscribe implements gateway.Feed.
func (f *FakeGateway) Subscribe(ctx context.Context, table string) (*gateway.Subscription, error) {
	return f.Hub.Subscribe(ctx, table)
}

// Calls reports how many times each operation was invoked.
func (f *FakeGateway) Calls() Calls {
	return Calls{
		FetchAll:  int(f.fetchAll.Load()),
		FetchPage: int(f.fetchPage.Load()),
		Insert:    int(f.insert.Load()),
		Update:    int(f.update.Load()),
		Delete:    int(f.del.Load()),
	}
}

// Calls is a snapshot of FakeGateway call counters.
type Calls struct {
	FetchAll, FetchPage, Insert, Update, Delete int
}

// Gate is a Hook helper that holds matching calls until Release.
type Gate struct {
	ch      chan struct{}
	entered chan int
}

// NewGate creates a closed gate.
func NewGate() *Gate {
	return &Gate{ch: make(chan struct{}), entered: make(chan int, 16)}
}

// Hold returns a Hook that blocks call number n until the gate is released. Other calls pass.
func (g *Gate) Hold(n int) Hook {
	return func(ctx context.Context, call int) error {
		if call != n {
			return nil
		}
		g.entered <- call
		select {
		case <-g.ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Entered returns a channel receiving the call number each time a held call reaches the gate.
func (g *Gate) Entered() <-chan int { return g.entered }

// Release lets held calls continue.
func (g *Gate) Release() { close(g.ch) }

// Fail returns a Hook that fails every call with err.
func Fail(err error) Hook {
	return func(context.Context, int) error { return err }
}
