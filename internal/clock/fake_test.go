package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	c := NewFake(start)
	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(time.Minute, func() { fired = append(fired, "late") })
	assert.Equal(t, 3, c.Pending())

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, c.Pending())
	assert.Equal(t, start.Add(5*time.Second), c.Now())
}

func TestFakeFiresTimersArmedByCallback(t *testing.T) {
	c := NewFake(start)
	var at []time.Time
	c.AfterFunc(time.Minute, func() {
		at = append(at, c.Now())
		c.AfterFunc(2*time.Second, func() { at = append(at, c.Now()) })
	})

	c.Advance(time.Minute + 2*time.Second)
	assert.Equal(t, []time.Time{start.Add(time.Minute), start.Add(time.Minute + 2*time.Second)}, at)
	assert.Equal(t, 0, c.Pending())
}

func TestFakeStop(t *testing.T) {
	c := NewFake(start)
	called := false
	tm := c.AfterFunc(time.Second, func() { called = true })
	assert.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	assert.Equal(t, 0, c.Pending())

	c.Advance(time.Minute)
	assert.False(t, called)

	tm = c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, tm.Stop())
}

func TestRealAfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback did not run")
	}
}
