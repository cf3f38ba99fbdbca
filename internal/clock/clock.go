// Package clock abstracts the time operations the controllers depend on so tests can drive
// debounce deadlines deterministically. Production code injects Real(); tests inject Fake().
package clock

import "time"

// Clock provides the current time and one-shot timers.
type Clock interface {
	Now() time.Time

	// AfterFunc waits for d, then calls f in its own goroutine (Real) or synchronously
	// inside Advance (Fake). The returned Timer cancels the pending call.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a scheduled call created by AfterFunc.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the call from running. It reports false if the call already ran or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
