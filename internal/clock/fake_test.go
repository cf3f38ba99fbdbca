package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClock_AfterFunc(t *testing.T) {
	c := Fake(epoch)
	var fired []string

	c.AfterFunc(200*time.Millisecond, func() { fired = append(fired, "late") })
	c.AfterFunc(100*time.Millisecond, func() { fired = append(fired, "early") })
	assert.Equal(t, 2, c.Pending())

	c.Advance(99 * time.Millisecond)
	assert.Empty(t, fired)

	c.Advance(time.Second)
	assert.Equal(t, []string{"early", "late"}, fired)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, epoch.Add(1099*time.Millisecond), c.Now())
}

func TestFakeClock_Stop(t *testing.T) {
	c := Fake(epoch)
	fired := false

	timer := c.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports inactive")

	c.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeClock_ImmediateCall(t *testing.T) {
	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(0, func() { fired = true })
	assert.True(t, fired)
	assert.False(t, timer.Stop())
}

func TestRealClock(t *testing.T) {
	c := Real()
	done := make(chan struct{})
	c.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
	assert.False(t, c.Now().IsZero())
}
