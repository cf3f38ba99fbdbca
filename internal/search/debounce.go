package search

import (
	"time"

	"github.com/h0rv/opsdash/internal/clock"
)

// debouncer is the query input state machine: idle, or pending(query, deadline). Arming while
// pending replaces the query and resets the deadline. A fired timer whose token is no longer
// current is ignored. Callers serialize access.
type debouncer struct {
	clock clock.Clock
	delay time.Duration

	token   uint64
	timer   *clock.Timer
	pending string
	armed   bool
}

// arm enters pending(query, now+delay) and schedules fire with the new token.
func (d *debouncer) arm(query string, fire func(token uint64)) {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.token++
	tok := d.token
	d.pending = query
	d.armed = true
	d.timer = d.clock.AfterFunc(d.delay, func() { fire(tok) })
}

// take returns the pending query and returns to idle if token is current.
func (d *debouncer) take(token uint64) (string, bool) {
	if !d.armed || token != d.token {
		return "", false
	}
	d.armed = false
	d.timer = nil
	return d.pending, true
}

// stop cancels a pending deadline.
func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = nil
	d.armed = false
	d.token++
}
