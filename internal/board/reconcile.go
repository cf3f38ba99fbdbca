package board

import (
	"context"

	"github.com/h0rv/opsdash/internal/gateway"
)

// Reconciler resynchronizes a controller after a change signal for its table.
type Reconciler interface {
	Reconcile(ctx context.Context, c *Controller, sig gateway.ChangeSignal) error
}

// ReconcilerFunc adapts a function to Reconciler.
type ReconcilerFunc func(ctx context.Context, c *Controller, sig gateway.ChangeSignal) error

// Reconcile calls f.
func (f ReconcilerFunc) Reconcile(ctx context.Context, c *Controller, sig gateway.ChangeSignal) error {
	return f(ctx, c, sig)
}

// FullReload reloads the whole table on every signal. It never discards confirmed server
// state and converges within one round trip, but it can overwrite an optimistic move whose
// write has not been committed yet.
type FullReload struct{}

// Reconcile implements Reconciler.
func (FullReload) Reconcile(ctx context.Context, c *Controller, _ gateway.ChangeSignal) error {
	return c.Load(ctx)
}
