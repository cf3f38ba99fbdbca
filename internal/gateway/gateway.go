// Package gateway defines the contract to the remote relational store: whole-table and paged
// reads, single-row writes, and a payload-less change feed. Backends live in subpackages.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/h0rv/opsdash/internal/domain"
)

// Row is one record as the remote store encodes it, keyed by column name.
// Every row carries an opaque string "id".
type Row map[string]any

// ID returns the row's identifier, or "" if absent.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Reader retrieves rows.
type Reader interface {
	// FetchAll returns every row of table in the given order.
	FetchAll(ctx context.Context, table string, order domain.Order) ([]Row, error)

	// FetchPage returns rows [offset, offset+limit) of the filtered, ordered result and the
	// number of rows matching filter across the whole table.
	FetchPage(ctx context.Context, table string, filter Filter, order domain.Order, offset, limit int) ([]Row, int, error)
}

// Writer mutates single rows. A failed write leaves the remote row unchanged.
type Writer interface {
	// Insert creates a row and returns it with server-assigned fields filled in.
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table, id string, patch Row) error
	Delete(ctx context.Context, table, id string) error
}

// Store is a backend that can read and write rows.
type Store interface {
	Reader
	Writer
}

// Feed delivers change signals for a table.
type Feed interface {
	Subscribe(ctx context.Context, table string) (*Subscription, error)
}

// Gateway is the full remote contract consumed by the board and search controllers.
type Gateway interface {
	Store
	Feed
}

// Compose joins a row store and a change feed into a Gateway.
func Compose(store Store, feed Feed) Gateway {
	return composed{Store: store, Feed: feed}
}

type composed struct {
	Store
	Feed
}

// ChangeSignal means "table has at least one inserted, updated or deleted row since the
// previous signal". It carries no row data.
type ChangeSignal struct {
	Table string
	At    time.Time
}

// Subscription is a live change feed for one table. Signals arrive on C in publish order;
// bursts are coalesced into a single pending signal. Close releases the feed; no signals are
// delivered afterwards and C is never closed by Close, so readers should also watch their context.
type Subscription struct {
	C <-chan ChangeSignal

	once    sync.Once
	closeFn func() error
	err     error
}

// NewSubscription wraps a signal channel and the function that releases it.
func NewSubscription(c <-chan ChangeSignal, closeFn func() error) *Subscription {
	return &Subscription{C: c, closeFn: closeFn}
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
	})
	return s.err
}

// Signal delivers sig on ch without blocking. If a signal is already pending the new one is
// dropped: the pending signal already means "re-check this table".
func Signal(ch chan ChangeSignal, sig ChangeSignal) {
	select {
	case ch <- sig:
	default:
	}
}
